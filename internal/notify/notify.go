package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Notifier posts plain-text messages to an ntfy topic.
type Notifier struct {
	endpoint string
	client   *http.Client
	title    string
	priority string
	tags     []string
}

type Option func(*Notifier)

// WithClient overrides the HTTP client used for delivery.
func WithClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithTitle sets the ntfy Title header.
func WithTitle(title string) Option {
	return func(n *Notifier) { n.title = title }
}

// WithPriority sets the ntfy Priority header (min, low, default, high, urgent).
func WithPriority(p string) Option {
	return func(n *Notifier) { n.priority = p }
}

func WithTags(tags ...string) Option {
	return func(n *Notifier) { n.tags = tags }
}

// New returns nil when endpoint is empty; a nil Notifier sends nothing.
func New(endpoint string, opts ...Option) *Notifier {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	n := &Notifier{endpoint: endpoint, title: "bankfill"}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers message with the notifier's headers.
func (n *Notifier) Send(ctx context.Context, message string) error {
	if n == nil {
		return nil
	}
	header := make(http.Header)
	if n.title != "" {
		header.Set("Title", n.title)
	}
	if n.priority != "" {
		header.Set("Priority", n.priority)
	}
	if len(n.tags) > 0 {
		header.Set("Tags", strings.Join(n.tags, ","))
	}
	return post(ctx, n.client, n.endpoint, message, header)
}

// Send posts message to endpoint without any ntfy headers.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return post(ctx, client, endpoint, message, nil)
}

func post(ctx context.Context, client *http.Client, endpoint, message string, header http.Header) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
