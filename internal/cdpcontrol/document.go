package cdpcontrol

import (
	"context"
	"sync"

	"github.com/dgnsrekt/bankfill/internal/autofill"
)

// pageDriver is the slice of Client a Document needs.
type pageDriver interface {
	evalOnPage(ctx context.Context, targetID, js string, out any) error
	clickOnPage(ctx context.Context, targetID string, x, y float64) error
	typeCharOnPage(ctx context.Context, targetID, ch string) error
	insertTextOnPage(ctx context.Context, targetID, text string) error
}

// Document exposes one bank page to the autofill engine. Handles it hands
// out are remembered so Release can drop exactly those.
type Document struct {
	driver   pageDriver
	targetID string
	mode     InputMode

	mu      sync.Mutex
	handles map[autofill.Handle]struct{}
}

var _ autofill.Document = (*Document)(nil)

// Document returns a fresh per-run view of the page.
func (c *Client) Document(targetID string, mode InputMode) *Document {
	return newDocument(c, targetID, mode)
}

func newDocument(driver pageDriver, targetID string, mode InputMode) *Document {
	if mode == "" {
		mode = InputSynthetic
	}
	return &Document{
		driver:   driver,
		targetID: targetID,
		mode:     mode,
		handles:  make(map[autofill.Handle]struct{}),
	}
}

func (d *Document) TargetID() string { return d.targetID }

func (d *Document) Probe(ctx context.Context, loc autofill.Locator) ([]autofill.Node, error) {
	kind, expr, err := loc.Query()
	if err != nil {
		return nil, newError(CodeValidation, "invalid locator", err)
	}
	var out struct {
		Nodes []autofill.Node `json:"nodes"`
	}
	if err := d.driver.evalOnPage(ctx, d.targetID, jsProbe(kind, expr), &out); err != nil {
		return nil, err
	}
	d.mu.Lock()
	for _, n := range out.Nodes {
		if n.Handle != "" {
			d.handles[n.Handle] = struct{}{}
		}
	}
	d.mu.Unlock()
	return out.Nodes, nil
}

func (d *Document) FindText(ctx context.Context, phrase string) ([]string, error) {
	var out struct {
		Texts []string `json:"texts"`
	}
	if err := d.driver.evalOnPage(ctx, d.targetID, jsFindText(phrase), &out); err != nil {
		return nil, err
	}
	return out.Texts, nil
}

func (d *Document) Focus(ctx context.Context, h autofill.Handle, pointer bool) error {
	if pointer && d.mode == InputTrusted {
		if err := d.Click(ctx, h); err != nil {
			return err
		}
		pointer = false
	}
	return d.driver.evalOnPage(ctx, d.targetID, jsFocus(string(h), pointer), nil)
}

func (d *Document) Clear(ctx context.Context, h autofill.Handle) error {
	return d.driver.evalOnPage(ctx, d.targetID, jsClear(string(h)), nil)
}

// Keystroke types ch. In trusted mode the element must already have focus.
func (d *Document) Keystroke(ctx context.Context, h autofill.Handle, ch string) error {
	if d.mode == InputTrusted {
		return d.driver.typeCharOnPage(ctx, d.targetID, ch)
	}
	return d.driver.evalOnPage(ctx, d.targetID, jsKeystroke(string(h), ch), nil)
}

func (d *Document) Commit(ctx context.Context, h autofill.Handle) error {
	return d.driver.evalOnPage(ctx, d.targetID, jsCommit(string(h)), nil)
}

func (d *Document) SetValue(ctx context.Context, h autofill.Handle, text string) error {
	if d.mode != InputTrusted {
		return d.driver.evalOnPage(ctx, d.targetID, jsSetValue(string(h), text), nil)
	}
	if err := d.driver.evalOnPage(ctx, d.targetID, jsSelectAll(string(h)), nil); err != nil {
		return err
	}
	if err := d.driver.insertTextOnPage(ctx, d.targetID, text); err != nil {
		return err
	}
	return d.Commit(ctx, h)
}

func (d *Document) Click(ctx context.Context, h autofill.Handle) error {
	if d.mode != InputTrusted {
		return d.driver.evalOnPage(ctx, d.targetID, jsPointerClick(string(h)), nil)
	}
	var at struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := d.driver.evalOnPage(ctx, d.targetID, jsCenter(string(h)), &at); err != nil {
		return err
	}
	return d.driver.clickOnPage(ctx, d.targetID, at.X, at.Y)
}

func (d *Document) Release(ctx context.Context) error {
	d.mu.Lock()
	ids := make([]string, 0, len(d.handles))
	for h := range d.handles {
		ids = append(ids, string(h))
	}
	d.handles = make(map[autofill.Handle]struct{})
	d.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	return d.driver.evalOnPage(ctx, d.targetID, jsRelease(ids), nil)
}
