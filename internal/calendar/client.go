package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "studypilot/pkg/logx"
)

// ClientConfig configures the HTTP calendar client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // 0 means 30s
	RatePerSec float64       // 0 means 5 req/s
}

// Client talks to the calendar provider over HTTP. Requests pass through a
// token-bucket limiter so a large run cannot hammer the provider.
type Client struct {
	base    string
	token   string
	hc      *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

// NewClient builds a Client. The base URL must include the scheme.
func NewClient(cfg ClientConfig, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		hc:      &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:     log.With(logx.String("comp", "calendar")),
	}
}

func (c *Client) ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	var events []Event
	if err := c.do(ctx, http.MethodGet, "/calendar/events?"+q.Encode(), nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, userID string, d EventDraft) (EventRef, error) {
	body := struct {
		UserID string `json:"user_id"`
		EventDraft
	}{UserID: userID, EventDraft: d}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/calendar/events", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("calendar: create returned no event id")
	}
	return EventRef(created.ID), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		// Honor caller cancellation over the transport wrapper.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("provider call",
		logx.String("method", method),
		logx.String("path", strings.SplitN(path, "?", 2)[0]),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(started)))

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		return &TransportError{Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendar: provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("calendar: decode response: %w", err)
	}
	return nil
}
