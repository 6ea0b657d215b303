package switchboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// expiryMargin refreshes tokens slightly before the server-side expiry so
// in-flight requests never carry a token that expires mid-request.
const expiryMargin = 30 * time.Second

type tokenManager struct {
	baseURL    string
	operatorID string
	apiKey     string
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, operatorID, apiKey string, httpClient *http.Client) *tokenManager {
	return &tokenManager{
		baseURL:    baseURL,
		operatorID: operatorID,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// getToken returns a valid token, refreshing it if expired or missing.
func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-expiryMargin)) {
		return tm.token, nil
	}
	if err := tm.refresh(ctx); err != nil {
		return "", err
	}
	return tm.token, nil
}

type authRequest struct {
	OperatorID string `json:"operator_id"`
	APIKey     string `json:"api_key"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// refresh exchanges the operator API key for a fresh token. Callers must
// hold tm.mu.
func (tm *tokenManager) refresh(ctx context.Context) error {
	body, err := json.Marshal(authRequest{OperatorID: tm.operatorID, APIKey: tm.apiKey})
	if err != nil {
		return fmt.Errorf("switchboard: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("switchboard: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("switchboard: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("switchboard: read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.StatusCode, respBody)
	}

	var envelope struct {
		Data authResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("switchboard: decode auth response: %w", err)
	}
	if envelope.Data.Token == "" {
		return fmt.Errorf("switchboard: auth response missing token")
	}

	tm.token = envelope.Data.Token
	tm.expiresAt = envelope.Data.ExpiresAt
	return nil
}
