package cdpcontrol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var errNotConnected = errors.New("rawcdp: not connected")

// rawCDP speaks CDP over one browser-level WebSocket and multiplexes flat
// sessions on it. Only the handful of commands the form driver needs are
// implemented; no domains are enabled, so attaching leaves the page as it was.
type rawCDP struct {
	httpBase string

	mu   sync.Mutex
	link *wsLink
	seq  atomic.Int64
}

// wsLink is one WebSocket connection and the calls waiting on it. A
// reconnect gets a fresh link so a dying read loop only fails its own calls.
type wsLink struct {
	conn    net.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan json.RawMessage
}

// cdpMessage is both a response (ID set) and an event (Method set).
type cdpMessage struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *cdpError       `json:"error,omitempty"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cdpRequest struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	SessionID string `json:"sessionId,omitempty"`
	Params    any    `json:"params,omitempty"`
}

func newRawCDP(httpBase string) *rawCDP {
	return &rawCDP{httpBase: strings.TrimRight(httpBase, "/")}
}

func (r *rawCDP) connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link != nil {
		return nil
	}

	wsURL, err := r.browserWSURL(ctx)
	if err != nil {
		return fmt.Errorf("rawcdp: browser ws url: %w", err)
	}

	slog.Debug("rawcdp connecting", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("rawcdp: dial: %w", err)
	}

	link := &wsLink{conn: conn, pending: make(map[int64]chan json.RawMessage)}
	r.link = link
	go r.readLoop(link)
	return nil
}

func (r *rawCDP) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link != nil {
		_ = r.link.conn.Close()
		r.link = nil
	}
}

func (r *rawCDP) readLoop(link *wsLink) {
	defer link.failPending()
	for {
		data, err := wsutil.ReadServerText(link.conn)
		if err != nil {
			slog.Debug("rawcdp read loop exit", "error", err)
			r.mu.Lock()
			if r.link == link {
				r.link = nil
			}
			r.mu.Unlock()
			return
		}

		var msg cdpMessage
		if json.Unmarshal(data, &msg) != nil || msg.ID == 0 {
			// No domains are enabled, so anything unsolicited is dropped.
			continue
		}
		if ch, ok := link.take(msg.ID); ok {
			ch <- json.RawMessage(data)
		}
	}
}

func (l *wsLink) take(id int64) (chan json.RawMessage, bool) {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	ch, ok := l.pending[id]
	delete(l.pending, id)
	return ch, ok
}

func (l *wsLink) failPending() {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	for id, ch := range l.pending {
		close(ch)
		delete(l.pending, id)
	}
}

// call sends method on sessionID (empty for the browser session) and returns
// the command result.
func (r *rawCDP) call(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	r.mu.Lock()
	link := r.link
	r.mu.Unlock()
	if link == nil {
		return nil, errNotConnected
	}

	id := r.seq.Add(1)
	data, err := json.Marshal(cdpRequest{ID: id, Method: method, SessionID: sessionID, Params: params})
	if err != nil {
		return nil, fmt.Errorf("rawcdp: marshal %s: %w", method, err)
	}

	ch := make(chan json.RawMessage, 1)
	link.pendingMu.Lock()
	link.pending[id] = ch
	link.pendingMu.Unlock()

	link.writeMu.Lock()
	err = wsutil.WriteClientText(link.conn, data)
	link.writeMu.Unlock()
	if err != nil {
		link.take(id)
		return nil, fmt.Errorf("rawcdp: send %s: %w", method, err)
	}

	var raw json.RawMessage
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("rawcdp: %s: connection closed", method)
		}
		raw = resp
	case <-ctx.Done():
		link.take(id)
		return nil, ctx.Err()
	}

	var msg cdpMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("rawcdp: unmarshal %s: %w", method, err)
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("rawcdp: %s: %s", method, msg.Error.Message)
	}
	return msg.Result, nil
}

func (r *rawCDP) attachToTarget(ctx context.Context, targetID string) (string, error) {
	params := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}{TargetID: targetID, Flatten: true}

	raw, err := r.call(ctx, "", "Target.attachToTarget", params)
	if err != nil {
		return "", err
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("rawcdp: unmarshal attach: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("rawcdp: attach returned no session for %s", targetID)
	}
	return resp.SessionID, nil
}

func (r *rawCDP) detachFromTarget(ctx context.Context, sessionID string) error {
	params := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}
	_, err := r.call(ctx, "", "Target.detachFromTarget", params)
	return err
}

// evaluate runs js in the page and returns its string result. Page scripts
// return JSON text, so non-string values are passed through verbatim.
func (r *rawCDP) evaluate(ctx context.Context, sessionID, js string) (string, error) {
	params := struct {
		Expression    string `json:"expression"`
		ReturnByValue bool   `json:"returnByValue"`
		AwaitPromise  bool   `json:"awaitPromise"`
		UserGesture   bool   `json:"userGesture"`
	}{Expression: js, ReturnByValue: true, AwaitPromise: true, UserGesture: true}

	raw, err := r.call(ctx, sessionID, "Runtime.evaluate", params)
	if err != nil {
		return "", err
	}

	var resp struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("rawcdp: unmarshal eval: %w", err)
	}
	if resp.ExceptionDetails != nil {
		return "", fmt.Errorf("rawcdp: eval exception: %s", resp.ExceptionDetails.Text)
	}
	var s string
	if err := json.Unmarshal(resp.Result.Value, &s); err != nil {
		return string(resp.Result.Value), nil
	}
	return s, nil
}

// listTargets reads /json/list.
func (r *rawCDP) listTargets(ctx context.Context) ([]*target.Info, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := r.getJSON(listCtx, "/json/list")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("rawcdp: decode /json/list: %w", err)
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

func (r *rawCDP) browserWSURL(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := r.getJSON(ctx, "/json/version")
	if err != nil {
		return "", err
	}
	defer body.Close()

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", errors.New("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}

func (r *rawCDP) getJSON(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.httpBase+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("rawcdp: %s: HTTP %d", path, resp.StatusCode)
	}
	return resp.Body, nil
}

type mouseEvent struct {
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Button     string  `json:"button,omitempty"`
	Buttons    int     `json:"buttons,omitempty"`
	ClickCount int     `json:"clickCount,omitempty"`
}

// dispatchMouseClick moves to (x, y) and clicks there with trusted input.
func (r *rawCDP) dispatchMouseClick(ctx context.Context, sessionID string, x, y float64) error {
	steps := []mouseEvent{
		{Type: "mouseMoved", X: x, Y: y},
		{Type: "mousePressed", X: x, Y: y, Button: "left", Buttons: 1, ClickCount: 1},
		{Type: "mouseReleased", X: x, Y: y, Button: "left", ClickCount: 1},
	}
	for _, ev := range steps {
		if _, err := r.call(ctx, sessionID, "Input.dispatchMouseEvent", ev); err != nil {
			return fmt.Errorf("rawcdp: %s: %w", ev.Type, err)
		}
	}
	return nil
}

type keyEvent struct {
	Type           string `json:"type"`
	Key            string `json:"key,omitempty"`
	Text           string `json:"text,omitempty"`
	UnmodifiedText string `json:"unmodifiedText,omitempty"`
}

// dispatchCharInput types one character the way a keyboard would:
// rawKeyDown, then char (which inserts the text and fires input), then keyUp.
func (r *rawCDP) dispatchCharInput(ctx context.Context, sessionID, ch string) error {
	steps := []keyEvent{
		{Type: "rawKeyDown", Key: ch},
		{Type: "char", Key: ch, Text: ch, UnmodifiedText: ch},
		{Type: "keyUp", Key: ch},
	}
	for _, ev := range steps {
		if _, err := r.call(ctx, sessionID, "Input.dispatchKeyEvent", ev); err != nil {
			return fmt.Errorf("rawcdp: %s: %w", ev.Type, err)
		}
	}
	return nil
}

// insertText inserts text into the focused element in one step.
func (r *rawCDP) insertText(ctx context.Context, sessionID, text string) error {
	params := struct {
		Text string `json:"text"`
	}{Text: text}
	if _, err := r.call(ctx, sessionID, "Input.insertText", params); err != nil {
		return fmt.Errorf("rawcdp: insertText: %w", err)
	}
	return nil
}

// captureScreenshot returns the decoded image bytes of the visible viewport.
func (r *rawCDP) captureScreenshot(ctx context.Context, sessionID, format string) ([]byte, error) {
	params := struct {
		Format      string `json:"format"`
		FromSurface bool   `json:"fromSurface"`
	}{Format: format, FromSurface: true}

	raw, err := r.call(ctx, sessionID, "Page.captureScreenshot", params)
	if err != nil {
		return nil, fmt.Errorf("rawcdp: captureScreenshot: %w", err)
	}
	var resp struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("rawcdp: unmarshal screenshot: %w", err)
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("rawcdp: decode screenshot: %w", err)
	}
	return img, nil
}
