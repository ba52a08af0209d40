package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type runRecorder struct {
	mu      sync.Mutex
	runs    []string
	active  atomic.Int32
	maxSeen atomic.Int32
	block   chan struct{}
	started chan struct{}
}

func newRunRecorder() *runRecorder {
	return &runRecorder{started: make(chan struct{}, 16)}
}

func (r *runRecorder) run(ctx context.Context, targetID, reason string) {
	n := r.active.Add(1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	r.mu.Lock()
	r.runs = append(r.runs, targetID+":"+reason)
	block := r.block
	r.mu.Unlock()
	r.started <- struct{}{}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	r.active.Add(-1)
}

func (r *runRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func waitStarted(t *testing.T, r *runRecorder) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}
}

func TestTriggersWithinDebounceCoalesce(t *testing.T) {
	rec := newRunRecorder()
	s := NewScheduler(30*time.Millisecond, rec.run)
	defer s.Stop()

	s.Trigger("tab-1", "attach")
	s.Trigger("tab-1", "load")
	s.Trigger("tab-1", "fragment")
	waitStarted(t, rec)
	time.Sleep(80 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "tab-1:fragment" {
		t.Fatalf("runs = %v, want [tab-1:fragment]", got)
	}
}

func TestTriggerDuringRunIsHeldAndLatestWins(t *testing.T) {
	rec := newRunRecorder()
	rec.block = make(chan struct{})
	s := NewScheduler(5*time.Millisecond, rec.run)
	defer s.Stop()

	s.Trigger("tab-1", "attach")
	waitStarted(t, rec)

	s.Trigger("tab-1", "load")
	time.Sleep(20 * time.Millisecond)
	s.Trigger("tab-1", "fragment")
	time.Sleep(20 * time.Millisecond)

	rec.mu.Lock()
	close(rec.block)
	rec.block = nil
	rec.mu.Unlock()
	waitStarted(t, rec)
	time.Sleep(30 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 || got[1] != "tab-1:fragment" {
		t.Fatalf("runs = %v, want attach then fragment", got)
	}
	if m := rec.maxSeen.Load(); m != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", m)
	}
}

func TestPagesRunIndependently(t *testing.T) {
	rec := newRunRecorder()
	rec.block = make(chan struct{})
	s := NewScheduler(5*time.Millisecond, rec.run)

	s.Trigger("tab-1", "load")
	s.Trigger("tab-2", "load")
	waitStarted(t, rec)
	waitStarted(t, rec)
	if m := rec.maxSeen.Load(); m != 2 {
		t.Fatalf("max concurrent runs = %d, want 2", m)
	}

	// Stop cancels the blocked runs and waits for them.
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
	if n := rec.active.Load(); n != 0 {
		t.Fatalf("active runs after Stop = %d", n)
	}
}

func TestForgetDropsPendingTrigger(t *testing.T) {
	rec := newRunRecorder()
	s := NewScheduler(30*time.Millisecond, rec.run)
	defer s.Stop()

	s.Trigger("tab-1", "load")
	s.Forget("tab-1")
	time.Sleep(60 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("runs = %v, want none", got)
	}

	s.Stop()
	s.Trigger("tab-1", "load")
	time.Sleep(60 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("runs after Stop = %v, want none", got)
	}
}
