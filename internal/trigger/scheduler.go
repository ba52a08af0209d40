package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunFunc performs one run against a page. reason names the trigger that
// caused it ("attach", "load", "fragment", "navigate").
type RunFunc func(ctx context.Context, targetID, reason string)

// Scheduler debounces triggers per page and never runs two jobs for the same
// page at once. A trigger that arrives during a run is held and executed
// after the run finishes; later triggers replace earlier held ones.
type Scheduler struct {
	debounce time.Duration
	run      RunFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	pages   map[string]*pageState
}

type pageState struct {
	timer   *time.Timer
	reason  string
	pending bool
	running bool
}

func NewScheduler(debounce time.Duration, run RunFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		debounce: debounce,
		run:      run,
		ctx:      ctx,
		cancel:   cancel,
		pages:    make(map[string]*pageState),
	}
}

// Trigger schedules a run for targetID once the debounce window passes
// without further triggers for that page.
func (s *Scheduler) Trigger(targetID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	st := s.pages[targetID]
	if st == nil {
		st = &pageState{}
		s.pages[targetID] = st
	}
	st.reason = reason
	st.pending = true
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(s.debounce, func() { s.fire(targetID, st) })
	slog.Debug("trigger scheduled", "target_id", targetID, "reason", reason, "running", st.running)
}

// Forget drops held work for a page that went away. A run already in
// progress finishes normally.
func (s *Scheduler) Forget(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pages[targetID]
	if st == nil {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.pending = false
	if !st.running {
		delete(s.pages, targetID)
	}
}

func (s *Scheduler) fire(targetID string, st *pageState) {
	s.mu.Lock()
	if s.stopped || s.pages[targetID] != st {
		s.mu.Unlock()
		return
	}
	st.timer = nil
	if st.running || !st.pending {
		s.mu.Unlock()
		return
	}
	reason := st.reason
	st.pending = false
	st.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(targetID, st, reason)
}

func (s *Scheduler) loop(targetID string, st *pageState, reason string) {
	defer s.wg.Done()
	for {
		slog.Info("trigger run start", "target_id", targetID, "reason", reason)
		s.run(s.ctx, targetID, reason)

		s.mu.Lock()
		// A held trigger whose debounce has already elapsed runs now; one
		// still waiting on its timer starts when the timer fires.
		if !s.stopped && st.pending && st.timer == nil {
			reason = st.reason
			st.pending = false
			s.mu.Unlock()
			continue
		}
		st.running = false
		if !st.pending && s.pages[targetID] == st {
			delete(s.pages, targetID)
		}
		s.mu.Unlock()
		return
	}
}

// Stop cancels in-flight runs, discards held triggers and waits for the
// run goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, st := range s.pages {
		if st.timer != nil {
			st.timer.Stop()
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
