package api

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

	"github.com/goodtune/kassist/internal/reminder"
)

// Error is a non-2xx response from the API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Is maps a 404 onto reminder.ErrNotFound so callers can use errors.Is.
func (e *Error) Is(target error) bool {
	return target == reminder.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to a running kassist server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Schedule creates a reminder due delayMinutes from now.
func (c *Client) Schedule(ctx context.Context, text string, delayMinutes float64) (*ReminderResponse, error) {
	var resp ReminderResponse
	req := ScheduleRequest{Text: text, DelayMinutes: &delayMinutes}
	if err := c.do(ctx, http.MethodPost, "/api/reminders", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ScheduleCommand creates a reminder from a spoken phrase.
func (c *Client) ScheduleCommand(ctx context.Context, transcript string) (*ReminderResponse, error) {
	var resp ReminderResponse
	if err := c.do(ctx, http.MethodPost, "/api/reminders/command", CommandRequest{Transcript: transcript}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pending lists reminders that have not fired.
func (c *Client) Pending(ctx context.Context) ([]reminder.Reminder, error) {
	var resp ReminderList
	if err := c.do(ctx, http.MethodGet, "/api/reminders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Reminders, nil
}

// Fired lists recently fired reminders.
func (c *Client) Fired(ctx context.Context) ([]reminder.Firing, error) {
	var resp FiredList
	if err := c.do(ctx, http.MethodGet, "/api/reminders/fired", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fired, nil
}

// Cancel removes a pending reminder.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/reminders/"+url.PathEscape(id), nil, nil)
}

// Usage returns the usage report and ledger state.
func (c *Client) Usage(ctx context.Context) (*UsageResponse, error) {
	var resp UsageResponse
	if err := c.do(ctx, http.MethodGet, "/api/usage", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordUsage adds amount to a credential and/or category.
func (c *Client) RecordUsage(ctx context.Context, credential, category string, amount float64) (*UsageResponse, error) {
	var resp UsageResponse
	req := UsageRequest{Credential: credential, Category: category, Amount: &amount}
	if err := c.do(ctx, http.MethodPost, "/api/usage", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordSynthesis charges seconds of speech to the active key.
func (c *Client) RecordSynthesis(ctx context.Context, seconds float64) (*SynthesisResponse, error) {
	var resp SynthesisResponse
	if err := c.do(ctx, http.MethodPost, "/api/usage/synthesis", SynthesisRequest{Seconds: &seconds}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordQuery counts one language-model query.
func (c *Client) RecordQuery(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/usage/query", nil, nil)
}

// CurrentKey describes the active key.
func (c *Client) CurrentKey(ctx context.Context) (*KeyResponse, error) {
	var resp KeyResponse
	if err := c.do(ctx, http.MethodGet, "/api/keys/current", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rotate moves the server to the next key.
func (c *Client) Rotate(ctx context.Context) (*KeyResponse, error) {
	var resp KeyResponse
	if err := c.do(ctx, http.MethodPost, "/api/keys/rotate", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil {
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
