package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/weiawesome/wes-io-live/viewer/internal/transport"
)

// TokenClient fetches room join credentials from the backend token endpoint.
type TokenClient struct {
	baseURL     string
	path        string
	accessToken string
	httpClient  *http.Client
}

// NewTokenClient creates a new token endpoint client.
func NewTokenClient(baseURL, path, accessToken string, timeout time.Duration) *TokenClient {
	if path == "" {
		path = "/api/livekit/token"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		path:        path,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchToken requests a credential for req.
func (c *TokenClient) FetchToken(ctx context.Context, req transport.TokenRequest) (*transport.Credential, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cred transport.Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &cred, nil
}
