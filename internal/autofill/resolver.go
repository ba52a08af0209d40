package autofill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Resolve polls for the first visible element matched by candidates. Within
// a tick candidates are tried in order, so a higher-priority locator always
// wins when several match. Handles listed in exclude are skipped.
func Resolve(ctx context.Context, doc Document, field Field, candidates []Locator, timeout, interval time.Duration, exclude ...Handle) (Node, error) {
	if len(candidates) == 0 {
		return Node{}, newError(KindNotFound, fmt.Sprintf("no locator candidates configured for the %s field", field), nil)
	}
	node, err := pollUntil(ctx, timeout, interval, func(ctx context.Context) (Node, bool) {
		return firstVisible(ctx, doc, candidates, exclude)
	})
	if err != nil {
		if errors.Is(err, errPollTimeout) {
			return Node{}, newError(KindNotFound, fmt.Sprintf("could not find the %s field within %s", field, timeout), nil)
		}
		return Node{}, err
	}
	return node, nil
}

func firstVisible(ctx context.Context, doc Document, candidates []Locator, exclude []Handle) (Node, bool) {
	for _, loc := range candidates {
		nodes, err := doc.Probe(ctx, loc)
		if err != nil {
			slog.Debug("autofill probe failed", "locator", loc.String(), "error", err)
			continue
		}
		for _, n := range nodes {
			if !n.Visible || n.Handle == "" || slices.Contains(exclude, n.Handle) {
				continue
			}
			slog.Debug("autofill locator matched", "locator", loc.String(), "handle", n.Handle)
			return n, true
		}
	}
	return Node{}, false
}
