package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// Listen binds preferred, or the first candidate that can be bound when
// preferred is taken and autoFallback is set.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying candidates", "preferred", preferred, "error", err)
	}

	var lastErr error
	for _, addr := range candidates {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		slog.Debug("bind candidate unavailable", "addr", addr, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		return nil, errors.New("no available bind addresses")
	}
	return nil, fmt.Errorf("no available bind addresses: %w", lastErr)
}
