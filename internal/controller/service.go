package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/bankfill/internal/autofill"
	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
	"github.com/dgnsrekt/bankfill/internal/notify"
	"github.com/dgnsrekt/bankfill/internal/relay"
	"github.com/dgnsrekt/bankfill/internal/snapshot"
)

const defaultHistorySize = 50

// ErrRunNotFound is returned for run IDs no longer in the history.
var ErrRunNotFound = errors.New("run not found")

// Browser is the part of cdpcontrol.Client the service needs.
type Browser interface {
	ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error)
	ResolvePage(ctx context.Context, targetID string) (cdpcontrol.PageInfo, error)
	Location(ctx context.Context, targetID string) (string, error)
	ShowWarning(ctx context.Context, targetID, message string) error
	CaptureScreenshot(ctx context.Context, targetID string) ([]byte, error)
}

// Journal receives one record per finished run.
type Journal interface {
	Write(record any) error
}

// RunRecord is a finished run together with the page it ran on.
type RunRecord struct {
	TargetID   string           `json:"target_id"`
	URL        string           `json:"url"`
	Trigger    string           `json:"trigger"`
	SnapshotID string           `json:"snapshot_id,omitempty"`
	Outcome    autofill.Outcome `json:"outcome"`
}

type transitionEvent struct {
	RunID    string `json:"run_id"`
	TargetID string `json:"target_id"`
	autofill.Transition
}

// Service runs the autofill engine against bank pages and records results.
type Service struct {
	browser Browser
	docs    func(targetID string) autofill.Document
	cfg     autofill.Config

	snaps    *snapshot.Store
	journal  Journal
	broker   *relay.Broker
	notifier *notify.Notifier

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	historyMu   sync.RWMutex
	history     []RunRecord
	historySize int
}

type Option func(*Service)

func WithSnapshots(store *snapshot.Store) Option {
	return func(s *Service) { s.snaps = store }
}

func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

func WithBroker(b *relay.Broker) Option {
	return func(s *Service) { s.broker = b }
}

// WithNotifier forwards every displayed warning to ntfy as well.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithHistorySize bounds how many finished runs RecentRuns keeps.
func WithHistorySize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// NewService drives pages through client using the given input mode.
func NewService(client *cdpcontrol.Client, mode cdpcontrol.InputMode, cfg autofill.Config, opts ...Option) *Service {
	docs := func(targetID string) autofill.Document { return client.Document(targetID, mode) }
	return newService(client, docs, cfg, opts...)
}

func newService(browser Browser, docs func(string) autofill.Document, cfg autofill.Config, opts ...Option) *Service {
	s := &Service{
		browser:     browser,
		docs:        docs,
		cfg:         cfg,
		locks:       make(map[string]*sync.Mutex),
		historySize: defaultHistorySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListPages(ctx context.Context) ([]cdpcontrol.PageInfo, error) {
	return s.browser.ListPages(ctx)
}

// StartRun fills the form on targetID (or the first bank page) using the
// request in source. An empty source reads the page's current URL. It fails
// with BUSY when a run is already active on that page.
func (s *Service) StartRun(ctx context.Context, targetID, source string) (RunRecord, error) {
	info, err := s.browser.ResolvePage(ctx, targetID)
	if err != nil {
		return RunRecord{}, err
	}

	lock := s.pageLock(info.TargetID)
	if !lock.TryLock() {
		return RunRecord{}, &cdpcontrol.CodedError{Code: cdpcontrol.CodeBusy, Message: "a run is already in progress on page " + info.TargetID}
	}
	defer lock.Unlock()

	if strings.TrimSpace(source) == "" {
		if source, err = s.browser.Location(ctx, info.TargetID); err != nil {
			return RunRecord{}, err
		}
	}
	return s.execute(ctx, info, source, "api"), nil
}

// RunFromTrigger is the trigger scheduler's RunFunc. It waits for any API
// run on the page to finish and reads the request from the live URL.
func (s *Service) RunFromTrigger(ctx context.Context, targetID, reason string) {
	info, err := s.browser.ResolvePage(ctx, targetID)
	if err != nil {
		slog.Warn("controller trigger page lookup failed", "target_id", targetID, "reason", reason, "error", err)
		return
	}

	lock := s.pageLock(info.TargetID)
	lock.Lock()
	defer lock.Unlock()

	source, err := s.browser.Location(ctx, info.TargetID)
	if err != nil {
		slog.Warn("controller trigger location read failed", "target_id", targetID, "reason", reason, "error", err)
		return
	}
	s.execute(ctx, info, source, reason)
}

func (s *Service) execute(ctx context.Context, info cdpcontrol.PageInfo, source, trigger string) RunRecord {
	targetID := info.TargetID
	warner := autofill.WarnerFunc(func(ctx context.Context, message string) error {
		s.sendNotification(ctx, message)
		return s.browser.ShowWarning(ctx, targetID, message)
	})

	engine := autofill.NewEngine(s.cfg, warner, autofill.WithObserver(func(runID string, t autofill.Transition) {
		if s.broker != nil {
			s.broker.PublishJSON(relay.FeedTransition, transitionEvent{RunID: runID, TargetID: targetID, Transition: t})
		}
	}))

	out := engine.Run(ctx, s.docs(targetID), source)
	rec := RunRecord{TargetID: targetID, URL: info.URL, Trigger: trigger, Outcome: out}

	if out.State == autofill.StateAborted && out.Kind != autofill.KindParamsMissing && out.Kind != autofill.KindCanceled {
		rec.SnapshotID = s.captureAbort(ctx, rec)
	}

	s.record(rec)
	return rec
}

func (s *Service) sendNotification(ctx context.Context, message string) {
	if s.notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.notifier.Send(sendCtx, message); err != nil {
		slog.Warn("controller ntfy send failed", "error", err)
	}
}

// captureAbort stores a screenshot of the page as it looked when the run
// gave up. Failures are logged; the run record is still kept.
func (s *Service) captureAbort(ctx context.Context, rec RunRecord) string {
	if s.snaps == nil {
		return ""
	}
	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	img, err := s.browser.CaptureScreenshot(capCtx, rec.TargetID)
	if err != nil {
		slog.Warn("controller abort screenshot failed", "run_id", rec.Outcome.RunID, "error", err)
		return ""
	}
	meta, err := s.snaps.Save(snapshot.SnapshotMeta{
		ID:       snapshot.NewID(),
		RunID:    rec.Outcome.RunID,
		TargetID: rec.TargetID,
		Reason:   string(rec.Outcome.Kind),
		Message:  rec.Outcome.Message,
		Format:   "png",
	}, img)
	if err != nil {
		slog.Warn("controller abort snapshot save failed", "run_id", rec.Outcome.RunID, "error", err)
		return ""
	}
	slog.Info("controller abort snapshot saved", "run_id", rec.Outcome.RunID, "snapshot_id", meta.ID, "size_bytes", meta.SizeBytes)
	return meta.ID
}

func (s *Service) record(rec RunRecord) {
	s.historyMu.Lock()
	s.history = append(s.history, rec)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.historyMu.Unlock()

	if s.journal != nil {
		if err := s.journal.Write(rec); err != nil {
			slog.Warn("controller journal write failed", "run_id", rec.Outcome.RunID, "error", err)
		}
	}
	if s.broker != nil {
		s.broker.PublishJSON(relay.FeedOutcome, rec)
	}
}

// RecentRuns returns up to limit finished runs, newest first. limit <= 0
// returns the whole history.
func (s *Service) RecentRuns(limit int) []RunRecord {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]RunRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// GetRun looks a run up in the in-memory history.
func (s *Service) GetRun(runID string) (RunRecord, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Outcome.RunID == runID {
			return s.history[i], nil
		}
	}
	return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

func (s *Service) ListSnapshots(runID string) ([]snapshot.SnapshotMeta, error) {
	if s.snaps == nil {
		return []snapshot.SnapshotMeta{}, nil
	}
	return s.snaps.List(runID)
}

func (s *Service) GetSnapshot(id string) (snapshot.SnapshotMeta, error) {
	if s.snaps == nil {
		return snapshot.SnapshotMeta{}, errSnapshotsDisabled
	}
	return s.snaps.Get(id)
}

func (s *Service) ReadSnapshotImage(id string) ([]byte, string, error) {
	if s.snaps == nil {
		return nil, "", errSnapshotsDisabled
	}
	return s.snaps.ReadImage(id)
}

var errSnapshotsDisabled = fmt.Errorf("snapshots are disabled: %w", snapshot.ErrNotFound)

func (s *Service) pageLock(targetID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m := s.locks[targetID]
	if m == nil {
		m = &sync.Mutex{}
		s.locks[targetID] = m
	}
	return m
}
