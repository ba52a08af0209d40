package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/target"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func withDefaultHTTPClient(t *testing.T, transport http.RoundTripper) {
	t.Helper()
	origClient := http.DefaultClient
	t.Cleanup(func() {
		http.DefaultClient = origClient
	})
	http.DefaultClient = &http.Client{
		Transport: transport,
	}
}

func listResponse(t *testing.T, entries ...map[string]any) roundTripFunc {
	t.Helper()
	return func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/json/list" {
			return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(``))}, nil
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			t.Fatalf("json.Marshal() = %v", err)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(string(payload)))}, nil
	}
}

func TestSyncTabsLockedWrapsListTargetsError(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(strings.NewReader(`oops`)),
		}, nil
	}))

	c := &Client{
		cdp:  newRawCDP("http://example.com"),
		tabs: map[target.ID]*tabSession{},
	}

	err := c.syncTabsLocked(context.Background())
	if err == nil {
		t.Fatal("expected syncTabsLocked() to fail")
	}

	var codedErr *CodedError
	if !errors.As(err, &codedErr) {
		t.Fatalf("expected *CodedError, got %T", err)
	}
	if codedErr.Code != CodeCDPUnavailable {
		t.Fatalf("error code = %s; want %s", codedErr.Code, CodeCDPUnavailable)
	}
	if !strings.Contains(codedErr.Message, "failed to list targets") {
		t.Fatalf("error message = %q; want to contain %q", codedErr.Message, "failed to list targets")
	}
}

func TestSyncTabsLockedFiltersBankPages(t *testing.T) {
	withDefaultHTTPClient(t, listResponse(t,
		map[string]any{"id": "t-bank", "type": "page", "url": "https://www.torn.com/factions.php?step=your#/tab=controls", "title": "Faction"},
		map[string]any{"id": "t-other", "type": "page", "url": "https://www.torn.com/index.php"},
		map[string]any{"id": "t-worker", "type": "service_worker", "url": "https://www.torn.com/factions.php"},
	))

	c := NewClient("http://example.com", "Torn.com/Factions.php", 0)
	c.cdp = newRawCDP("http://example.com")
	c.tabs["t-gone"] = &tabSession{info: PageInfo{TargetID: "t-gone"}}

	if err := c.syncTabsLocked(context.Background()); err != nil {
		t.Fatalf("syncTabsLocked() = %v", err)
	}
	if len(c.tabs) != 1 {
		t.Fatalf("tabs = %v, want only t-bank", c.tabs)
	}
	if got := c.tabs["t-bank"]; got == nil || got.info.Title != "Faction" {
		t.Fatalf("t-bank session = %+v", got)
	}
}

func TestResolvePageReportsMissingPage(t *testing.T) {
	withDefaultHTTPClient(t, listResponse(t))

	c := NewClient("http://example.com", "factions.php", 0)
	c.cdp = newRawCDP("http://example.com")

	_, err := c.ResolvePage(context.Background(), "")
	if !c.asCode(err, CodePageNotFound) {
		t.Fatalf("ResolvePage() = %v, want %s", err, CodePageNotFound)
	}
	_, err = c.ResolvePage(context.Background(), "nope")
	if !c.asCode(err, CodePageNotFound) {
		t.Fatalf("ResolvePage(nope) = %v, want %s", err, CodePageNotFound)
	}
}

func TestTrustedInputHelpersWrapErrors(t *testing.T) {
	targetID := target.ID("target-1")
	withDefaultHTTPClient(t, listResponse(t,
		map[string]any{"id": string(targetID), "type": "page", "url": "https://www.torn.com/factions.php"},
	))

	c := &Client{
		cdp: newRawCDP("http://example.com"),
		tabs: map[target.ID]*tabSession{
			targetID: {
				sessionID: "session-1",
				info:      PageInfo{TargetID: string(targetID), URL: "https://www.torn.com/factions.php"},
			},
		},
	}

	tests := []struct {
		name   string
		run    func() error
		errMsg string
	}{
		{
			name:   "clickOnPage",
			run:    func() error { return c.clickOnPage(context.Background(), string(targetID), 10, 10) },
			errMsg: "failed to dispatch trusted mouse click",
		},
		{
			name:   "insertTextOnPage",
			run:    func() error { return c.insertTextOnPage(context.Background(), string(targetID), "1000") },
			errMsg: "failed to dispatch trusted text insertion",
		},
		{
			name:   "typeCharOnPage",
			run:    func() error { return c.typeCharOnPage(context.Background(), string(targetID), "a") },
			errMsg: "failed to dispatch trusted character input",
		},
		{
			name: "CaptureScreenshot",
			run: func() error {
				_, err := c.CaptureScreenshot(context.Background(), string(targetID))
				return err
			},
			errMsg: "failed to capture screenshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil {
				t.Fatalf("%s = nil; want error", tt.name)
			}
			var codedErr *CodedError
			if !errors.As(err, &codedErr) {
				t.Fatalf("%s returned %T; want *CodedError", tt.name, err)
			}
			if codedErr.Code != CodeEvalFailure {
				t.Fatalf("%s code = %s; want %s", tt.name, codedErr.Code, CodeEvalFailure)
			}
			if !strings.Contains(codedErr.Message, tt.errMsg) {
				t.Fatalf("%s message = %q; want to contain %q", tt.name, codedErr.Message, tt.errMsg)
			}
		})
	}
}

func TestShouldRetryClassifiesTransientCauses(t *testing.T) {
	c := &Client{}
	tests := []struct {
		err  error
		want bool
	}{
		{err: newError(CodeCDPUnavailable, "down", nil), want: true},
		{err: newError(CodeEvalFailure, "evaluation failed", errors.New("rawcdp: Runtime.evaluate: Session closed")), want: true},
		{err: newError(CodeEvalFailure, "evaluation failed", errors.New("ReferenceError: x is not defined")), want: false},
		{err: newError(CodeEvalFailure, "page script failed", nil), want: false},
		{err: newError(CodePageNotFound, "gone", nil), want: false},
		{err: newError(CodeStaleElement, "detached", nil), want: false},
		{err: errors.New("plain"), want: false},
	}
	for _, tt := range tests {
		if got := c.shouldRetry(tt.err); got != tt.want {
			t.Fatalf("shouldRetry(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}

func TestDecodeEnvelope(t *testing.T) {
	var out struct {
		Href string `json:"href"`
	}
	if err := decodeEnvelope(`{"ok":true,"data":{"href":"https://x/#a"}}`, &out); err != nil || out.Href != "https://x/#a" {
		t.Fatalf("decodeEnvelope ok = %v, %+v", err, out)
	}

	err := decodeEnvelope(`{"ok":false,"error_code":"STALE_ELEMENT","error_message":"gone"}`, nil)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeStaleElement || coded.Message != "gone" {
		t.Fatalf("decodeEnvelope stale = %v", err)
	}

	err = decodeEnvelope(`not json`, nil)
	if !errors.As(err, &coded) || coded.Code != CodeEvalFailure {
		t.Fatalf("decodeEnvelope invalid = %v", err)
	}
}

func TestParseInputMode(t *testing.T) {
	for in, want := range map[string]InputMode{"": InputSynthetic, "Synthetic": InputSynthetic, " trusted ": InputTrusted} {
		got, err := ParseInputMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseInputMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseInputMode("robot"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
