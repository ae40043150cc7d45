// internal/provider/mpesa/client.go
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client talks to the Daraja API for one or more tenants. It owns no tenant
// state of its own; every call receives the resolved tenant credentials.
type Client struct {
	httpClient *http.Client
	tokens     *TokenCache
	logger     *zap.Logger
}

func NewClient(tokens *TokenCache, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     logger,
	}
}

// postJSON sends a bearer-authed JSON POST and decodes the response body
// into out. A non-nil error is a transport or decode failure; provider
// application errors come back inside out (errorCode/errorMessage fields).
func (c *Client) postJSON(ctx context.Context, token, url string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
