// Package switchboard is the Go client for the Switchboard routing API.
//
// The client signs webhook submissions with the shared channel secret and
// authenticates operator endpoints by exchanging an API key for a short-lived
// token, refreshing it transparently before expiry.
package switchboard

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const signatureHeader = "X-Webhook-Signature"

// Config configures a Client.
type Config struct {
	// BaseURL is the Switchboard server address, e.g. "http://localhost:8080".
	BaseURL string
	// OperatorID and APIKey authenticate operator endpoints. Optional when
	// only SendEvent is used.
	OperatorID string
	APIKey     string
	// WebhookSecret signs event submissions. Optional when the server runs
	// with signature verification disabled.
	WebhookSecret string
	// HTTPClient is the underlying client. Defaults to one with Timeout.
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client talks to a Switchboard server.
type Client struct {
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
	tokenMgr      *tokenManager
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("switchboard: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("switchboard: invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		webhookSecret: cfg.WebhookSecret,
		httpClient:    httpClient,
	}
	if cfg.OperatorID != "" && cfg.APIKey != "" {
		c.tokenMgr = newTokenManager(c.baseURL, cfg.OperatorID, cfg.APIKey, httpClient)
	}
	return c, nil
}

// Health reports the server's status and version.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendEvent submits an inbound conversational event to the webhook ingress.
// A missing MessageID is filled with a generated one so the server's
// duplicate suppression has a stable key. The body is signed with the
// configured webhook secret.
func (c *Client) SendEvent(ctx context.Context, event InboundEvent) (*EventOutcome, error) {
	if event.ContactID == "" {
		return nil, fmt.Errorf("switchboard: contact ID is required")
	}
	if event.MessageID == "" {
		event.MessageID = uuid.NewString()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("switchboard: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/events", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("switchboard: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.webhookSecret != "" {
		req.Header.Set(signatureHeader, signBody(c.webhookSecret, body))
	}

	var out EventOutcome
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContactState returns a contact's current routing state.
func (c *Client) ContactState(ctx context.Context, contactID string) (*ContactState, error) {
	var out ContactState
	path := "/v1/contacts/" + url.PathEscape(contactID) + "/state"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContactHistory returns a contact's message history and recorded handoffs.
func (c *Client) ContactHistory(ctx context.Context, contactID string) (*ContactHistory, error) {
	var out ContactHistory
	path := "/v1/contacts/" + url.PathEscape(contactID) + "/history"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReactivateContact clears opt-out and deactivation tags so routing resumes.
// Requires an admin operator.
func (c *Client) ReactivateContact(ctx context.Context, contactID string) (*ContactState, error) {
	var out ContactState
	path := "/v1/contacts/" + url.PathEscape(contactID) + "/reactivate"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, authed bool, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("switchboard: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("switchboard: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		if c.tokenMgr == nil {
			return fmt.Errorf("switchboard: operator credentials are not configured")
		}
		token, err := c.tokenMgr.getToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("switchboard: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("switchboard: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("switchboard: decode response envelope: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("switchboard: decode response data: %w", err)
	}
	return nil
}

func parseErrorResponse(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		return &Error{StatusCode: status, Code: "unknown", Message: http.StatusText(status)}
	}
	return &Error{StatusCode: status, Code: envelope.Error.Code, Message: envelope.Error.Message}
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
