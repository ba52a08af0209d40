//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for the integration tests. They expect a running
// `bankfill serve` attached to a browser with a bank page open.
type Env struct {
	BaseURL  string
	Client   *http.Client
	TargetID string // discovered from /api/v1/pages
}

func (e *Env) discoverPage() error {
	resp, err := e.Client.Get(e.BaseURL + "/api/v1/pages")
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()

	var listing struct {
		Pages []struct {
			TargetID string `json:"target_id"`
		} `json:"pages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("decode pages: %w", err)
	}
	if len(listing.Pages) == 0 {
		return fmt.Errorf("no bank pages found at %s", e.BaseURL)
	}
	e.TargetID = listing.Pages[0].TargetID
	return nil
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("BANKFILL_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8190"
	}
	env = &Env{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
	if err := env.discoverPage(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "integration: using page %s at %s\n", env.TargetID, env.BaseURL)
	os.Exit(m.Run())
}

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("POST %s: marshal body: %v", path, err)
	}
	resp, err := e.Client.Post(e.BaseURL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}
