package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/bankfill/internal/autofill"
	"github.com/dgnsrekt/bankfill/internal/cdpcontrol"
	"github.com/dgnsrekt/bankfill/internal/notify"
	"github.com/dgnsrekt/bankfill/internal/relay"
	"github.com/dgnsrekt/bankfill/internal/snapshot"
)

type stubBrowser struct {
	mu          sync.Mutex
	location    string
	warnings    []string
	screenshots int
	resolveErr  error
}

func (b *stubBrowser) ListPages(context.Context) ([]cdpcontrol.PageInfo, error) {
	return []cdpcontrol.PageInfo{{TargetID: "tab-1", URL: b.location}}, nil
}

func (b *stubBrowser) ResolvePage(_ context.Context, targetID string) (cdpcontrol.PageInfo, error) {
	if b.resolveErr != nil {
		return cdpcontrol.PageInfo{}, b.resolveErr
	}
	if targetID == "" {
		targetID = "tab-1"
	}
	return cdpcontrol.PageInfo{TargetID: targetID, URL: "https://www.torn.com/factions.php"}, nil
}

func (b *stubBrowser) Location(context.Context, string) (string, error) {
	return b.location, nil
}

func (b *stubBrowser) ShowWarning(_ context.Context, _ string, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warnings = append(b.warnings, message)
	return nil
}

func (b *stubBrowser) CaptureScreenshot(context.Context, string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.screenshots++
	return []byte("\x89PNG"), nil
}

// bankDoc is a bank page whose fields are always rendered.
type bankDoc struct {
	mu      sync.Mutex
	balance string
	values  map[autofill.Handle]string
	touched bool
}

func newBankDoc(balance string) *bankDoc {
	return &bankDoc{balance: balance, values: map[autofill.Handle]string{}}
}

func (d *bankDoc) Probe(_ context.Context, loc autofill.Locator) ([]autofill.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touched = true
	switch loc.Value {
	case "#name":
		return []autofill.Node{{Handle: "name", Visible: true}}, nil
	case "#amount":
		return []autofill.Node{{Handle: "amount", Visible: true}}, nil
	case ".suggestion":
		return []autofill.Node{{Handle: "s1", Visible: true, Text: "OgBob [12345]"}}, nil
	}
	return nil, nil
}

func (d *bankDoc) FindText(context.Context, string) ([]string, error) {
	return []string{d.balance}, nil
}

func (d *bankDoc) Focus(context.Context, autofill.Handle, bool) error { return nil }

func (d *bankDoc) Clear(_ context.Context, h autofill.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[h] = ""
	return nil
}

func (d *bankDoc) Keystroke(_ context.Context, h autofill.Handle, ch string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[h] += ch
	return nil
}

func (d *bankDoc) Commit(context.Context, autofill.Handle) error { return nil }

func (d *bankDoc) SetValue(_ context.Context, h autofill.Handle, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[h] = text
	return nil
}

func (d *bankDoc) Click(context.Context, autofill.Handle) error { return nil }
func (d *bankDoc) Release(context.Context) error                { return nil }

func (d *bankDoc) value(h autofill.Handle) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[h]
}

type memJournal struct {
	mu      sync.Mutex
	records []any
}

func (j *memJournal) Write(record any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, record)
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testConfig() autofill.Config {
	cfg := autofill.DefaultConfig()
	cfg.SelectorTimeout = 200 * time.Millisecond
	cfg.AutocompleteTimeout = 200 * time.Millisecond
	cfg.BalancePollTimeout = 200 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.KeystrokeDelay = 0
	cfg.SettleDelay = 0
	cfg.Locators = map[autofill.Field][]autofill.Locator{
		autofill.FieldRecipient:   {autofill.CSS("#name")},
		autofill.FieldAmount:      {autofill.CSS("#amount")},
		autofill.FieldSuggestions: {autofill.CSS(".suggestion")},
	}
	return cfg
}

func TestStartRunFillsFormAndRecordsOutcome(t *testing.T) {
	browser := &stubBrowser{}
	doc := newBankDoc("Faction balance: $1,000")
	journal := &memJournal{}
	broker := relay.NewBroker()
	_, events := broker.Subscribe()

	svc := newService(browser, func(string) autofill.Document { return doc }, testConfig(),
		WithJournal(journal), WithBroker(broker))

	rec, err := svc.StartRun(context.Background(), "", "#name=OgBob&amount=1000")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if rec.Outcome.State != autofill.StateDone {
		t.Fatalf("state = %s (%s: %s), want Done", rec.Outcome.State, rec.Outcome.Kind, rec.Outcome.Message)
	}
	if rec.TargetID != "tab-1" || rec.Trigger != "api" || rec.SnapshotID != "" {
		t.Fatalf("record = %+v", rec)
	}
	if got := doc.value("name"); got != "OgBob" {
		t.Fatalf("name field = %q, want OgBob", got)
	}
	if got := doc.value("amount"); got != "1000" {
		t.Fatalf("amount field = %q, want 1000", got)
	}
	if len(browser.warnings) != 0 {
		t.Fatalf("warnings = %v, want none", browser.warnings)
	}
	if len(journal.records) != 1 {
		t.Fatalf("journal records = %d, want 1", len(journal.records))
	}

	var feeds []string
	for len(events) > 0 {
		feeds = append(feeds, (<-events).Feed)
	}
	if len(feeds) < 2 || feeds[0] != relay.FeedTransition || feeds[len(feeds)-1] != relay.FeedOutcome {
		t.Fatalf("published feeds = %v", feeds)
	}

	recent := svc.RecentRuns(0)
	if len(recent) != 1 || recent[0].Outcome.RunID != rec.Outcome.RunID {
		t.Fatalf("RecentRuns() = %+v", recent)
	}
	if got, err := svc.GetRun(rec.Outcome.RunID); err != nil || got.Outcome.State != autofill.StateDone {
		t.Fatalf("GetRun() = %+v, %v", got, err)
	}
}

func TestInsufficientBalanceWarnsNotifiesAndSnapshots(t *testing.T) {
	browser := &stubBrowser{}
	doc := newBankDoc("Faction balance: $500,000")
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	var notified string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(r.Body)
		notified = string(body)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Header: make(http.Header)}, nil
	})}

	svc := newService(browser, func(string) autofill.Document { return doc }, testConfig(),
		WithSnapshots(store), WithNotifier(notify.New("http://ntfy.local/bank", notify.WithClient(client))))

	rec, err := svc.StartRun(context.Background(), "tab-1", "#name=OgBob&amount=1000000")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if rec.Outcome.State != autofill.StateAborted || rec.Outcome.Kind != autofill.KindInsufficientBalance {
		t.Fatalf("outcome = %s/%s, want Aborted/INSUFFICIENT_BALANCE", rec.Outcome.State, rec.Outcome.Kind)
	}
	if got := doc.value("amount"); got != "" {
		t.Fatalf("amount field = %q, want untouched", got)
	}
	if len(browser.warnings) != 1 || !strings.Contains(browser.warnings[0], "1,000,000") || !strings.Contains(browser.warnings[0], "500,000") {
		t.Fatalf("warnings = %v", browser.warnings)
	}
	if notified != browser.warnings[0] {
		t.Fatalf("ntfy body = %q, want %q", notified, browser.warnings[0])
	}

	if rec.SnapshotID == "" {
		t.Fatal("SnapshotID empty, want abort snapshot")
	}
	metas, err := svc.ListSnapshots(rec.Outcome.RunID)
	if err != nil || len(metas) != 1 {
		t.Fatalf("ListSnapshots() = %+v, %v", metas, err)
	}
	if metas[0].Reason != string(autofill.KindInsufficientBalance) || metas[0].TargetID != "tab-1" {
		t.Fatalf("snapshot meta = %+v", metas[0])
	}
	data, format, err := svc.ReadSnapshotImage(rec.SnapshotID)
	if err != nil || format != "png" || string(data) != "\x89PNG" {
		t.Fatalf("ReadSnapshotImage() = %q, %q, %v", data, format, err)
	}
}

func TestParamsMissingTouchesNothing(t *testing.T) {
	browser := &stubBrowser{location: "https://www.torn.com/factions.php#/tab=controls&name=&amount=0"}
	doc := newBankDoc("balance $10")
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	svc := newService(browser, func(string) autofill.Document { return doc }, testConfig(), WithSnapshots(store))

	rec, err := svc.StartRun(context.Background(), "tab-1", "")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if rec.Outcome.Kind != autofill.KindParamsMissing {
		t.Fatalf("kind = %s, want PARAMS_MISSING", rec.Outcome.Kind)
	}
	if rec.Outcome.Source != browser.location {
		t.Fatalf("source = %q, want page location", rec.Outcome.Source)
	}
	if doc.touched || len(browser.warnings) != 0 || browser.screenshots != 0 || rec.SnapshotID != "" {
		t.Fatalf("params-missing run touched the page: doc=%v warnings=%v screenshots=%d", doc.touched, browser.warnings, browser.screenshots)
	}
}

func TestStartRunRejectsBusyPage(t *testing.T) {
	svc := newService(&stubBrowser{}, func(string) autofill.Document { return newBankDoc("") }, testConfig())
	lock := svc.pageLock("tab-1")
	lock.Lock()
	defer lock.Unlock()

	_, err := svc.StartRun(context.Background(), "tab-1", "#name=a&amount=1")
	var coded *cdpcontrol.CodedError
	if !errors.As(err, &coded) || coded.Code != cdpcontrol.CodeBusy {
		t.Fatalf("StartRun() error = %v, want BUSY", err)
	}
}

func TestStartRunPropagatesPageLookupError(t *testing.T) {
	lookupErr := &cdpcontrol.CodedError{Code: cdpcontrol.CodePageNotFound, Message: "page not found: x"}
	svc := newService(&stubBrowser{resolveErr: lookupErr}, nil, testConfig())
	if _, err := svc.StartRun(context.Background(), "x", ""); !errors.Is(err, lookupErr) {
		t.Fatalf("StartRun() error = %v, want %v", err, lookupErr)
	}
	// Trigger runs only log.
	svc.RunFromTrigger(context.Background(), "x", "load")
	if got := svc.RecentRuns(0); len(got) != 0 {
		t.Fatalf("RecentRuns() = %+v, want none", got)
	}
}

func TestRunFromTriggerReadsLiveLocation(t *testing.T) {
	browser := &stubBrowser{location: "https://www.torn.com/factions.php#/tab=controls&name=OgBob&amount=5"}
	doc := newBankDoc("balance $10")
	svc := newService(browser, func(string) autofill.Document { return doc }, testConfig())

	svc.RunFromTrigger(context.Background(), "tab-1", "fragment")
	recent := svc.RecentRuns(1)
	if len(recent) != 1 || recent[0].Trigger != "fragment" || recent[0].Outcome.State != autofill.StateDone {
		t.Fatalf("RecentRuns() = %+v", recent)
	}
}

func TestHistoryIsBoundedNewestFirst(t *testing.T) {
	svc := newService(&stubBrowser{}, func(string) autofill.Document { return newBankDoc("") }, testConfig(), WithHistorySize(2))
	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := svc.StartRun(context.Background(), "tab-1", "#amount=1")
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		ids = append(ids, rec.Outcome.RunID)
	}

	got := svc.RecentRuns(0)
	if len(got) != 2 || got[0].Outcome.RunID != ids[2] || got[1].Outcome.RunID != ids[1] {
		t.Fatalf("RecentRuns() = %+v, want last two newest first", got)
	}
	if _, err := svc.GetRun(ids[0]); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("GetRun(evicted) error = %v, want ErrRunNotFound", err)
	}
}

func TestSnapshotAccessorsWithoutStore(t *testing.T) {
	svc := newService(&stubBrowser{}, nil, testConfig())
	if metas, err := svc.ListSnapshots(""); err != nil || len(metas) != 0 {
		t.Fatalf("ListSnapshots() = %v, %v", metas, err)
	}
	if _, err := svc.GetSnapshot("123e4567-e89b-12d3-a456-426614174000"); !errors.Is(err, snapshot.ErrNotFound) {
		t.Fatalf("GetSnapshot() error = %v, want ErrNotFound", err)
	}
}
