package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/domain"
)

// Page is the list response of the service.
type Page struct {
	Notifications []*domain.Notification `json:"notifications"`
	Pagination    struct {
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		TotalPages int   `json:"totalPages"`
	} `json:"pagination"`
	UnreadCount int64 `json:"unreadCount"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "notification service returned " + strconv.Itoa(e.Code)
}

// Client talks to the notification service as one authenticated user.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	attempts uint
	delay    time.Duration
}

// NewClient creates a Client. Mutations are retried up to attempts times;
// they are idempotent on the server.
func NewClient(baseURL, token string, hc *http.Client, attempts uint, delay time.Duration) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if attempts == 0 {
		attempts = 3
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: hc, attempts: attempts, delay: delay}
}

// List fetches one page of the feed.
func (c *Client) List(ctx context.Context, page, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var p Page
	if err := c.do(ctx, http.MethodGet, "/notifications?"+q.Encode(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UnreadCount fetches the server's unread badge.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+id.String(), nil)
}

// MarkAllRead marks every notification as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/notifications/mark-all-read", nil)
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+id.String(), nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+c.token)

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("%s %s: %w", method, path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 300 {
				return &StatusError{Code: resp.StatusCode}
			}
			if out == nil {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("path", path).Msg("retrying notification request")
		}),
	)
}

// retryable reports whether err is worth another attempt: transport
// failures and 5xx responses are, client errors are not.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// Stream connects to the SSE endpoint and applies every event to v until
// ctx is cancelled or the server closes the stream. Connection attempts are
// retried; a dropped stream returns its error so callers can resync and
// reconnect.
func (c *Client) Stream(ctx context.Context, v *View) error {
	var resp *http.Response
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/notifications/stream", nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+c.token)
			req.Header.Set("Accept", "text/event-stream")

			r, err := c.http.Do(req)
			if err != nil {
				return err
			}
			if r.StatusCode != http.StatusOK {
				r.Body.Close()
				return &StatusError{Code: r.StatusCode}
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = readEvents(resp, v)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses SSE frames and applies the realtime kinds. Other event
// names, such as the initial "connected", are skipped.
func readEvents(resp *http.Response, v *View) error {
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var name string
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			dispatch(v, name, data.String())
			name = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}

func dispatch(v *View, name, data string) {
	switch domain.EventKind(name) {
	case domain.EventInsert, domain.EventUpdate, domain.EventDelete:
	default:
		return
	}
	var ev domain.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		log.Warn().Err(err).Str("event", name).Msg("undecodable stream event skipped")
		return
	}
	ev.Kind = domain.EventKind(name)
	v.Apply(ev)
}

// Feed couples a View with a Client so mutations update the view optimistically.
type Feed struct {
	View   *View
	Client *Client
}

// Load replaces the view with the first page and the server's unread count.
func Load(ctx context.Context, c *Client, limit int) (*Feed, error) {
	p, err := c.List(ctx, 1, limit)
	if err != nil {
		return nil, err
	}
	return &Feed{View: NewView(p.Notifications, p.UnreadCount), Client: c}, nil
}

// MarkRead marks id read locally, then on the server; rolls back on failure.
func (f *Feed) MarkRead(ctx context.Context, id uuid.UUID) error {
	return Optimistic[Snapshot](ctx, f.View, func() { f.View.MarkReadLocal(id) },
		func(ctx context.Context) error { return f.Client.MarkRead(ctx, id) })
}

// MarkAllRead marks everything read locally, then on the server.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	return Optimistic[Snapshot](ctx, f.View, f.View.MarkAllReadLocal, f.Client.MarkAllRead)
}

// Delete removes id locally, then on the server; rolls back on failure.
func (f *Feed) Delete(ctx context.Context, id uuid.UUID) error {
	return Optimistic[Snapshot](ctx, f.View, func() { f.View.RemoveLocal(id) },
		func(ctx context.Context) error { return f.Client.Delete(ctx, id) })
}

// Resync refetches the unread badge, used after a reconnect.
func (f *Feed) Resync(ctx context.Context) error {
	n, err := f.Client.UnreadCount(ctx)
	if err != nil {
		return err
	}
	f.View.SetUnread(n)
	return nil
}
