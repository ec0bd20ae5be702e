package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atelic-ai/voceria/internal/resilience"
)

// Client talks to the scheduling webhook service that fronts the business
// calendar. Every request goes through a circuit breaker so a dead calendar
// backend fails calls fast instead of stalling tool workers.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	breaker   *resilience.Breaker
	log       *slog.Logger
}

// Event is one appointment as reported by the webhook service.
type Event struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Reason   string `json:"reason"`
	StartISO string `json:"start_time_iso"`
	EndISO   string `json:"end_time_iso"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithAuthToken sets the bearer token sent with every request.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) { c.authToken = token }
}

// NewClient creates a webhook client for the given base URL.
func NewClient(baseURL string, log *slog.Logger, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("calendar: webhook base URL must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 8 * time.Second},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "calendar-webhook"}, log),
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateEvent books an appointment and returns its event ID.
func (c *Client) CreateEvent(ctx context.Context, name, phone, reason, startISO, endISO string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.post(ctx, "/create-calendar-event", map[string]any{
		"name":       name,
		"phone":      phone,
		"reason":     reason,
		"start_time": startISO,
		"end_time":   endISO,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// EditEvent moves or renames an existing appointment. Optional fields are
// omitted when empty.
func (c *Client) EditEvent(ctx context.Context, eventID, newStartISO, newEndISO, newName, newReason, newPhone string) error {
	body := map[string]any{
		"event_id":           eventID,
		"new_start_time_iso": newStartISO,
		"new_end_time_iso":   newEndISO,
	}
	if newName != "" {
		body["new_name"] = newName
	}
	if newReason != "" {
		body["new_reason"] = newReason
	}
	if newPhone != "" {
		body["new_phone_for_description"] = newPhone
	}
	return c.post(ctx, "/edit-calendar-event", body, nil)
}

// DeleteEvent cancels an appointment.
func (c *Client) DeleteEvent(ctx context.Context, eventID, originalStartISO string) error {
	return c.post(ctx, "/delete-calendar-event", map[string]any{
		"event_id":                eventID,
		"original_start_time_iso": originalStartISO,
	}, nil)
}

// SearchByPhone returns the upcoming appointments registered under a phone
// number.
func (c *Client) SearchByPhone(ctx context.Context, phone string) ([]Event, error) {
	var resp struct {
		SearchResults []Event `json:"search_results"`
	}
	if err := c.post(ctx, "/search-calendar-event-by-phone", map[string]any{"phone": phone}, &resp); err != nil {
		return nil, err
	}
	return resp.SearchResults, nil
}

// BusyIntervals implements [BusyFetcher] over the webhook's availability
// feed.
func (c *Client) BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	var resp struct {
		Busy []Interval `json:"busy"`
	}
	err := c.post(ctx, "/busy-intervals", map[string]any{
		"time_min": from.Format(time.RFC3339),
		"time_max": to.Format(time.RFC3339),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Busy, nil
}

var _ BusyFetcher = (*Client)(nil)

// post sends one JSON request through the circuit breaker and decodes the
// response into out when non-nil.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("calendar: marshal request: %w", err)
	}

	return c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("calendar: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("calendar: %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return fmt.Errorf("calendar: %s: status %d: %s", path, resp.StatusCode, snippet)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("calendar: decode %s response: %w", path, err)
		}
		return nil
	})
}
