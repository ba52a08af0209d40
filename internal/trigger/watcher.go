package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
)

// PageLister reports the bank pages currently open.
type PageLister interface {
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
}

// Watcher attaches to every bank page and turns page readiness and fragment
// changes into scheduler triggers.
type Watcher struct {
	cdpURL string
	pages  PageLister
	sched  *Scheduler
	rescan time.Duration

	allocCtx context.Context

	mu   sync.Mutex
	tabs map[string]context.CancelFunc

	// attach is replaced in tests.
	attach func(targetID string) (context.CancelFunc, error)
}

func NewWatcher(cdpURL string, pages PageLister, sched *Scheduler, rescan time.Duration) *Watcher {
	if rescan <= 0 {
		rescan = 5 * time.Second
	}
	w := &Watcher{
		cdpURL: cdpURL,
		pages:  pages,
		sched:  sched,
		rescan: rescan,
		tabs:   make(map[string]context.CancelFunc),
	}
	w.attach = w.attachTab
	return w
}

// Run watches until ctx ends. New bank tabs are picked up on every rescan.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("trigger watcher start", "cdp_url", w.cdpURL, "rescan", w.rescan)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), w.cdpURL)
	defer allocCancel()
	w.allocCtx = allocCtx

	w.sync(ctx)
	ticker := time.NewTicker(w.rescan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.detachAll()
			slog.Info("trigger watcher stopped")
			return nil
		case <-ticker.C:
			w.sync(ctx)
		}
	}
}

func (w *Watcher) sync(ctx context.Context) {
	pages, err := w.pages.ListPages(ctx)
	if err != nil {
		slog.Warn("trigger watcher page list failed", "error", err)
		return
	}

	seen := make(map[string]bool, len(pages))
	for _, p := range pages {
		seen[p.TargetID] = true
		w.mu.Lock()
		_, attached := w.tabs[p.TargetID]
		w.mu.Unlock()
		if attached {
			continue
		}

		cancel, err := w.attach(p.TargetID)
		if err != nil {
			slog.Error("trigger watcher attach failed", "target_id", p.TargetID, "url", p.URL, "error", err)
			continue
		}
		w.mu.Lock()
		w.tabs[p.TargetID] = cancel
		w.mu.Unlock()
		slog.Info("trigger watcher attached", "target_id", p.TargetID, "url", p.URL)
		w.sched.Trigger(p.TargetID, "attach")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, cancel := range w.tabs {
		if seen[id] {
			continue
		}
		cancel()
		delete(w.tabs, id)
		w.sched.Forget(id)
		slog.Info("trigger watcher detached", "target_id", id)
	}
}

// Attached returns how many pages are being watched.
func (w *Watcher) Attached() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tabs)
}

func (w *Watcher) detachAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, cancel := range w.tabs {
		cancel()
		delete(w.tabs, id)
	}
}

func (w *Watcher) attachTab(targetID string) (context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(w.allocCtx, chromedp.WithTargetID(target.ID(targetID)))
	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("enable page domain: %w", err)
	}
	chromedp.ListenTarget(tabCtx, w.eventHandler(targetID))
	return tabCancel, nil
}

// eventHandler runs on chromedp's event goroutine and must not block.
func (w *Watcher) eventHandler(targetID string) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *page.EventLoadEventFired:
			w.sched.Trigger(targetID, "load")
		case *page.EventNavigatedWithinDocument:
			slog.Debug("trigger fragment change", "target_id", targetID, "url", truncateURL(e.URL))
			w.sched.Trigger(targetID, "fragment")
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				slog.Debug("trigger top frame navigated", "target_id", targetID, "url", truncateURL(e.Frame.URL))
				w.sched.Trigger(targetID, "navigate")
			}
		}
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
