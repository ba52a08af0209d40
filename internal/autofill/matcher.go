package autofill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// MatchAndSelect waits for a visible suggestion containing name and clicks it.
func MatchAndSelect(ctx context.Context, doc Document, name string, containers []Locator, timeout, interval time.Duration) (Node, error) {
	node, err := FindSuggestion(ctx, doc, name, containers, timeout, interval)
	if err != nil {
		return Node{}, err
	}
	if err := SelectSuggestion(ctx, doc, node); err != nil {
		return Node{}, err
	}
	return node, nil
}

// FindSuggestion polls the suggestion containers for the first visible entry
// whose trimmed text contains name, ignoring case. Containment is the only
// rule: "Bob" also matches "Bobby [2]".
func FindSuggestion(ctx context.Context, doc Document, name string, containers []Locator, timeout, interval time.Duration) (Node, error) {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return Node{}, newError(KindMatchNotFound, "no recipient name to match", nil)
	}
	node, err := pollUntil(ctx, timeout, interval, func(ctx context.Context) (Node, bool) {
		for _, loc := range containers {
			nodes, err := doc.Probe(ctx, loc)
			if err != nil {
				slog.Debug("autofill suggestion probe failed", "locator", loc.String(), "error", err)
				continue
			}
			for _, n := range nodes {
				if n.Visible && n.Handle != "" && suggestionMatches(n.Text, target) {
					return n, true
				}
			}
		}
		return Node{}, false
	})
	if err != nil {
		if errors.Is(err, errPollTimeout) {
			return Node{}, newError(KindMatchNotFound, fmt.Sprintf("no suggestion matching %q appeared within %s", name, timeout), nil)
		}
		return Node{}, err
	}
	return node, nil
}

// SelectSuggestion clicks a suggestion found by FindSuggestion.
func SelectSuggestion(ctx context.Context, doc Document, n Node) error {
	if err := doc.Click(ctx, n.Handle); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(KindMatchNotFound, fmt.Sprintf("selecting suggestion %q failed", n.Text), err)
	}
	return nil
}

func suggestionMatches(text, target string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(text)), target)
}
