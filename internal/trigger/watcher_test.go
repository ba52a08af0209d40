package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"

	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
)

type stubLister struct {
	pages []cdpcontrol.PageInfo
	err   error
}

func (s *stubLister) ListPages(context.Context) ([]cdpcontrol.PageInfo, error) {
	return s.pages, s.err
}

func TestSyncAttachesNewPagesAndDetachesGoneOnes(t *testing.T) {
	rec := newRunRecorder()
	s := NewScheduler(5*time.Millisecond, rec.run)
	defer s.Stop()

	lister := &stubLister{pages: []cdpcontrol.PageInfo{{TargetID: "tab-1"}, {TargetID: "tab-2"}}}
	w := NewWatcher("http://127.0.0.1:9220", lister, s, time.Hour)
	canceled := map[string]bool{}
	w.attach = func(id string) (context.CancelFunc, error) {
		if id == "tab-2" {
			return nil, errors.New("attach refused")
		}
		return func() { canceled[id] = true }, nil
	}

	w.sync(context.Background())
	if got := w.Attached(); got != 1 {
		t.Fatalf("Attached() = %d, want 1", got)
	}
	waitStarted(t, rec)
	if got := rec.snapshot(); len(got) != 1 || got[0] != "tab-1:attach" {
		t.Fatalf("runs = %v, want [tab-1:attach]", got)
	}

	// A second sync does not re-trigger attached pages.
	w.sync(context.Background())
	time.Sleep(20 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("runs after resync = %v", got)
	}

	lister.pages = nil
	w.sync(context.Background())
	if !canceled["tab-1"] || w.Attached() != 0 {
		t.Fatalf("tab-1 not detached: canceled=%v attached=%d", canceled, w.Attached())
	}
}

func TestSyncKeepsTabsWhenListingFails(t *testing.T) {
	s := NewScheduler(time.Hour, func(context.Context, string, string) {})
	defer s.Stop()
	lister := &stubLister{pages: []cdpcontrol.PageInfo{{TargetID: "tab-1"}}}
	w := NewWatcher("", lister, s, 0)
	w.attach = func(string) (context.CancelFunc, error) { return func() {}, nil }

	w.sync(context.Background())
	lister.err = errors.New("cdp down")
	w.sync(context.Background())
	if got := w.Attached(); got != 1 {
		t.Fatalf("Attached() = %d, want 1", got)
	}
}

func TestEventHandlerMapsPageEvents(t *testing.T) {
	rec := newRunRecorder()
	s := NewScheduler(5*time.Millisecond, rec.run)
	defer s.Stop()
	w := NewWatcher("", &stubLister{}, s, 0)
	handle := w.eventHandler("tab-1")

	handle(&page.EventFrameNavigated{Frame: &cdp.Frame{ParentID: "parent", URL: "https://example.com/iframe"}})
	time.Sleep(20 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("child frame navigation triggered runs: %v", got)
	}

	handle(&page.EventNavigatedWithinDocument{URL: "https://www.torn.com/factions.php#/tab=controls&name=OgBob&amount=5"})
	waitStarted(t, rec)
	if got := rec.snapshot(); len(got) != 1 || got[0] != "tab-1:fragment" {
		t.Fatalf("runs = %v, want [tab-1:fragment]", got)
	}
}
