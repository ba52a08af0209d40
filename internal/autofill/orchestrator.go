package autofill

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// State is a step of a run.
type State string

const (
	StateIdle                  State = "Idle"
	StateParsingRequest        State = "ParsingRequest"
	StateResolvingNameField    State = "ResolvingNameField"
	StateTypingName            State = "TypingName"
	StateAwaitingAutocomplete  State = "AwaitingAutocomplete"
	StateSelectingAutocomplete State = "SelectingAutocomplete"
	StateReadingBalance        State = "ReadingBalance"
	StateGuardingBalance       State = "GuardingBalance"
	StateResolvingAmountField  State = "ResolvingAmountField"
	StateWritingAmount         State = "WritingAmount"
	StateDone                  State = "Done"
	StateAborted               State = "Aborted"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Transition is one entry of a run's state log.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Outcome summarises a finished run.
type Outcome struct {
	RunID       string       `json:"run_id"`
	Source      string       `json:"source"`
	Request     *Request     `json:"request,omitempty"`
	State       State        `json:"state"`
	Kind        Kind         `json:"kind,omitempty"`
	Message     string       `json:"message,omitempty"`
	Balance     *int64       `json:"balance,omitempty"`
	Suggestion  string       `json:"suggestion,omitempty"`
	Transitions []Transition `json:"transitions"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

func (o Outcome) Succeeded() bool { return o.State == StateDone }

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers fn to receive every transition as it happens.
func WithObserver(fn func(runID string, t Transition)) Option {
	return func(e *Engine) { e.observer = fn }
}

// WithClock replaces time.Now for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs the fill pipeline against a Document.
type Engine struct {
	cfg      Config
	warner   Warner
	observer func(runID string, t Transition)
	now      func() time.Time
	newID    func() string
}

// NewEngine returns an engine using cfg. warner may be nil, in which case
// failures are only logged.
func NewEngine(cfg Config, warner Warner, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		warner: warner,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Run executes one complete run for the request carried by source, a
// fragment or a full URL. It always returns a terminal outcome.
func (e *Engine) Run(ctx context.Context, doc Document, source string) Outcome {
	r := &run{
		engine: e,
		doc:    doc,
		out: Outcome{
			RunID:     e.newID(),
			Source:    source,
			State:     StateIdle,
			StartedAt: e.now(),
		},
	}
	r.exec(ctx)
	r.out.FinishedAt = e.now()

	slog.Info("autofill run finished",
		"run_id", r.out.RunID,
		"state", r.out.State,
		"kind", r.out.Kind,
		"duration", r.out.FinishedAt.Sub(r.out.StartedAt).String(),
	)
	return r.out
}

type run struct {
	engine *Engine
	doc    Document
	out    Outcome
}

func (r *run) exec(ctx context.Context) {
	cfg := r.engine.cfg

	r.enter(StateParsingRequest, "")
	req, err := ParseRequest(r.out.Source)
	if err != nil {
		r.abort(ctx, err)
		return
	}
	r.out.Request = &req

	// Handles exist only once the page has been probed.
	defer r.release(ctx)

	r.enter(StateResolvingNameField, "")
	nameField, err := Resolve(ctx, r.doc, FieldRecipient, cfg.Locators[FieldRecipient], cfg.SelectorTimeout, cfg.PollInterval)
	if err != nil {
		r.abort(ctx, err)
		return
	}

	r.enter(StateTypingName, req.Recipient)
	err = TypeInto(ctx, r.doc, nameField.Handle, req.Recipient, TypeOptions{
		KeystrokeDelay: cfg.KeystrokeDelay,
		SettleDelay:    cfg.SettleDelay,
		PointerFocus:   cfg.PointerFocus,
	})
	if err != nil {
		r.abort(ctx, err)
		return
	}

	r.enter(StateAwaitingAutocomplete, "")
	suggestion, err := FindSuggestion(ctx, r.doc, req.Recipient, cfg.Locators[FieldSuggestions], cfg.AutocompleteTimeout, cfg.PollInterval)
	if err != nil {
		r.abort(ctx, err)
		return
	}

	r.enter(StateSelectingAutocomplete, suggestion.Text)
	if err := SelectSuggestion(ctx, r.doc, suggestion); err != nil {
		r.abort(ctx, err)
		return
	}
	r.out.Suggestion = suggestion.Text
	if err := wait(ctx, cfg.SettleDelay); err != nil {
		r.abort(ctx, err)
		return
	}

	r.enter(StateReadingBalance, "")
	balance, err := ReadBalance(ctx, r.doc, cfg.BalancePhrase, cfg.BalancePolicy, cfg.BalancePollTimeout, cfg.PollInterval)
	if err != nil {
		r.abort(ctx, err)
		return
	}
	r.out.Balance = &balance

	r.enter(StateGuardingBalance, fmt.Sprintf("requested=%d available=%d", req.Amount, balance))
	if err := Guard(req.Amount, balance); err != nil {
		r.abort(ctx, err)
		return
	}

	r.enter(StateResolvingAmountField, "")
	amountField, err := Resolve(ctx, r.doc, FieldAmount, cfg.Locators[FieldAmount], cfg.SelectorTimeout, cfg.PollInterval, nameField.Handle)
	if err != nil {
		r.abort(ctx, err)
		return
	}

	r.enter(StateWritingAmount, "")
	if err := SetValue(ctx, r.doc, amountField.Handle, strconv.FormatInt(req.Amount, 10)); err != nil {
		if ctx.Err() != nil {
			r.abort(ctx, ctx.Err())
			return
		}
		r.abort(ctx, newError(KindPageUnavailable, "writing the amount failed", err))
		return
	}

	r.enter(StateDone, "")
}

func (r *run) enter(to State, detail string) {
	t := Transition{From: r.out.State, To: to, At: r.engine.now(), Detail: detail}
	r.out.State = to
	r.out.Transitions = append(r.out.Transitions, t)

	slog.Info("autofill transition", "run_id", r.out.RunID, "from", t.From, "to", t.To, "detail", detail)
	if r.engine.observer != nil {
		r.engine.observer(r.out.RunID, t)
	}
}

func (r *run) abort(ctx context.Context, err error) {
	kind := KindOf(err)
	r.out.Kind = kind
	r.out.Message = messageOf(err)
	r.enter(StateAborted, string(kind))

	slog.Warn("autofill run aborted", "run_id", r.out.RunID, "kind", kind, "error", err)

	if kind == KindParamsMissing || kind == KindCanceled || r.engine.warner == nil {
		return
	}
	displayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if werr := r.engine.warner.Display(displayCtx, r.out.Message); werr != nil {
		slog.Warn("autofill warning display failed", "run_id", r.out.RunID, "error", werr)
	}
}

func (r *run) release(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.doc.Release(releaseCtx); err != nil {
		slog.Debug("autofill handle release failed", "run_id", r.out.RunID, "error", err)
	}
}
