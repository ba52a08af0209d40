package autofill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type fakeElement struct {
	handle  Handle
	visible bool
	text    string
	value   string
}

// fakeDoc is an in-memory page. Elements are keyed by the locator that finds
// them; every mutating call is appended to calls.
type fakeDoc struct {
	mu        sync.Mutex
	elements  map[Locator][]*fakeElement
	texts     []string
	probeErr  map[Locator]error
	setErr    error
	calls     []string
	released  bool
	onCommit  func(d *fakeDoc)
	probeHits int
}

func newFakeDoc() *fakeDoc {
	return &fakeDoc{
		elements: make(map[Locator][]*fakeElement),
		probeErr: make(map[Locator]error),
	}
}

func (d *fakeDoc) add(loc Locator, el *fakeElement) *fakeElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[loc] = append(d.elements[loc], el)
	return el
}

func (d *fakeDoc) find(h Handle) (*fakeElement, error) {
	for _, els := range d.elements {
		for _, el := range els {
			if el.handle == h {
				return el, nil
			}
		}
	}
	return nil, fmt.Errorf("stale handle %s", h)
}

func (d *fakeDoc) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDoc) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDoc) indexOf(prefix string) int {
	for i, c := range d.callLog() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (d *fakeDoc) Probe(_ context.Context, loc Locator) ([]Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probeHits++
	if err := d.probeErr[loc]; err != nil {
		return nil, err
	}
	var nodes []Node
	for _, el := range d.elements[loc] {
		n := Node{Visible: el.visible, Text: el.text}
		if el.visible {
			n.Handle = el.handle
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (d *fakeDoc) FindText(_ context.Context, phrase string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, t := range d.texts {
		if strings.Contains(strings.ToLower(t), strings.ToLower(phrase)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (d *fakeDoc) Focus(_ context.Context, h Handle, pointer bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("focus:%s:%t", h, pointer)
	_, err := d.find(h)
	return err
}

func (d *fakeDoc) Clear(_ context.Context, h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("clear:%s", h)
	el, err := d.find(h)
	if err != nil {
		return err
	}
	el.value = ""
	return nil
}

func (d *fakeDoc) Keystroke(_ context.Context, h Handle, ch string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("key:%s:%s", h, ch)
	el, err := d.find(h)
	if err != nil {
		return err
	}
	el.value += ch
	return nil
}

func (d *fakeDoc) Commit(_ context.Context, h Handle) error {
	d.mu.Lock()
	d.record("commit:%s", h)
	hook := d.onCommit
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *fakeDoc) SetValue(_ context.Context, h Handle, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("set:%s:%s", h, text)
	if d.setErr != nil {
		return d.setErr
	}
	el, err := d.find(h)
	if err != nil {
		return err
	}
	el.value = text
	return nil
}

func (d *fakeDoc) Click(_ context.Context, h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("click:%s", h)
	_, err := d.find(h)
	return err
}

func (d *fakeDoc) Release(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	return nil
}

type recordingWarner struct {
	mu       sync.Mutex
	messages []string
}

func (w *recordingWarner) Display(_ context.Context, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, message)
	return nil
}

func (w *recordingWarner) all() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

var errProbe = errors.New("probe exploded")

var (
	testRecipient   = CSS("#recipient")
	testAmount      = CSS("#amount")
	testSuggestions = CSS("li.suggestion")
)

func testConfig() Config {
	return Config{
		SelectorTimeout:     200 * time.Millisecond,
		PollInterval:        5 * time.Millisecond,
		AutocompleteTimeout: 200 * time.Millisecond,
		BalancePollTimeout:  200 * time.Millisecond,
		BalancePhrase:       "balance",
		BalancePolicy:       BalanceFirst,
		PointerFocus:        true,
		Locators: map[Field][]Locator{
			FieldRecipient:   {testRecipient},
			FieldAmount:      {testAmount},
			FieldSuggestions: {testSuggestions},
		},
	}
}

// bankPage builds the happy-path page: the suggestion appears once the name
// has been committed.
func bankPage(balanceText string) (*fakeDoc, *fakeElement, *fakeElement) {
	doc := newFakeDoc()
	name := doc.add(testRecipient, &fakeElement{handle: "h-name", visible: true})
	amount := doc.add(testAmount, &fakeElement{handle: "h-amount", visible: true})
	doc.texts = []string{"Faction bank", balanceText}
	doc.onCommit = func(d *fakeDoc) {
		d.add(testSuggestions, &fakeElement{handle: "h-sugg", visible: true, text: "  OgBob [12345] "})
	}
	return doc, name, amount
}
