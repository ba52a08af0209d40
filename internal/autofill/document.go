package autofill

import "context"

// Handle names a live element registered on the page for the current run.
type Handle string

// Node is one element reported by a probe. Handle is empty for nodes that
// are not visible.
type Node struct {
	Handle  Handle `json:"handle,omitempty"`
	Visible bool   `json:"visible"`
	Text    string `json:"text,omitempty"`
}

// Document is the engine's view of the live page. Each method is a single
// round trip; ordering, polling and decisions stay with the engine.
type Document interface {
	// Probe returns every element matched by loc in document order.
	Probe(ctx context.Context, loc Locator) ([]Node, error)
	// FindText returns, in document order, the texts of the innermost
	// elements owning a text node that contains phrase, case-insensitively.
	FindText(ctx context.Context, phrase string) ([]string, error)
	// Focus scrolls the element into view and focuses it, optionally after
	// a pointer sequence on it.
	Focus(ctx context.Context, h Handle, pointer bool) error
	Clear(ctx context.Context, h Handle) error
	// Keystroke appends ch to the value and emits keydown, input and keyup.
	Keystroke(ctx context.Context, h Handle, ch string) error
	// Commit emits change.
	Commit(ctx context.Context, h Handle) error
	// SetValue focuses, assigns text as the whole value and emits input and change.
	SetValue(ctx context.Context, h Handle, text string) error
	// Click dispatches a pointer click at the element centre.
	Click(ctx context.Context, h Handle) error
	// Release drops every handle handed out so far.
	Release(ctx context.Context) error
}

// Warner shows a message to the person at the page.
type Warner interface {
	Display(ctx context.Context, message string) error
}

// WarnerFunc adapts a function to Warner.
type WarnerFunc func(ctx context.Context, message string) error

func (f WarnerFunc) Display(ctx context.Context, message string) error { return f(ctx, message) }
