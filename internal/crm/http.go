package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/leadline-ai/switchboard/internal/model"
)

// HTTPClient talks to a REST CRM API with bearer-key auth.
//
// Transient failures (5xx, 429, transport errors) are retried with jittered
// exponential backoff. 4xx responses other than 429 are permanent and
// returned immediately.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a CRM client for the given API base URL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, maxRetries int, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type contactResponse struct {
	Contact struct {
		Tags []string `json:"tags"`
	} `json:"contact"`
}

// ContactTags fetches the contact's current tag set.
func (c *HTTPClient) ContactTags(ctx context.Context, contactID string) ([]string, error) {
	var tags []string
	err := c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/contacts/"+url.PathEscape(contactID), nil)
		if err != nil {
			return permanentError{err}
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if err := checkStatus(resp); err != nil {
			return err
		}

		var body contactResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return permanentError{fmt.Errorf("decode contact: %w", err)}
		}
		tags = body.Contact.Tags
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("crm: get contact %s: %w", contactID, err)
	}
	return tags, nil
}

type applyActionsRequest struct {
	Actions []model.Action `json:"actions"`
}

// ApplyActions posts the ordered batch as one request so the CRM applies it
// as one unit. The batch is never split client-side.
func (c *HTTPClient) ApplyActions(ctx context.Context, contactID string, batch []model.Action) error {
	if len(batch) == 0 {
		return nil
	}
	payload, err := json.Marshal(applyActionsRequest{Actions: batch})
	if err != nil {
		return fmt.Errorf("crm: marshal actions: %w", err)
	}

	err = c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/contacts/"+url.PathEscape(contactID)+"/actions", bytes.NewReader(payload))
		if err != nil {
			return permanentError{err}
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		return checkStatus(resp)
	})
	if err != nil {
		return fmt.Errorf("crm: apply actions for %s: %w", contactID, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

// permanentError wraps errors that must not be retried.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err // retriable
	}
	return permanentError{err}
}

// withRetry executes fn, retrying transient failures with jittered
// exponential backoff.
func (c *HTTPClient) withRetry(ctx context.Context, fn func() error) error {
	baseDelay := 200 * time.Millisecond
	var err error
	for attempt := range c.maxRetries + 1 {
		err = fn()
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return err
		}
		if attempt == c.maxRetries {
			break
		}
		c.logger.Warn("crm: retrying after transient failure", "attempt", attempt+1, "error", err)
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}
