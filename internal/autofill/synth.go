package autofill

import (
	"context"
	"log/slog"
	"time"
)

// TypeOptions tunes TypeInto.
type TypeOptions struct {
	KeystrokeDelay time.Duration
	SettleDelay    time.Duration
	PointerFocus   bool
}

// TypeInto enters text one character at a time so reactive listeners see
// every change. Page-side failures are logged and typing carries on; only
// cancellation of ctx is returned.
func TypeInto(ctx context.Context, doc Document, h Handle, text string, opts TypeOptions) error {
	if err := doc.Focus(ctx, h, opts.PointerFocus); err != nil {
		slog.Warn("autofill focus failed", "handle", h, "error", err)
	}
	if err := doc.Clear(ctx, h); err != nil {
		slog.Warn("autofill clear failed", "handle", h, "error", err)
	}
	for _, r := range text {
		if err := doc.Keystroke(ctx, h, string(r)); err != nil {
			slog.Warn("autofill keystroke failed", "handle", h, "error", err)
		}
		if err := wait(ctx, opts.KeystrokeDelay); err != nil {
			return err
		}
	}
	if err := doc.Commit(ctx, h); err != nil {
		slog.Warn("autofill commit failed", "handle", h, "error", err)
	}
	return wait(ctx, opts.SettleDelay)
}

// SetValue assigns text in one step. Use it for fields without reactive
// listeners.
func SetValue(ctx context.Context, doc Document, h Handle, text string) error {
	return doc.SetValue(ctx, h, text)
}
