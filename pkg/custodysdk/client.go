package custodysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the tag custody service. The relay authenticates
// with a bearer token issued by the platform identity provider.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a custody service client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.get(ctx, "/livez", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetReadiness checks if the service is ready.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.get(ctx, "/readyz", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// RegisterToken provisions a new token.
func (c *Client) RegisterToken(ctx context.Context, req RegisterTokenRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.post(ctx, "/v1/tokens", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// BeginAuth opens a mutual-authentication session.
func (c *Client) BeginAuth(ctx context.Context, req AuthBeginRequest) (*AuthBeginResponse, error) {
	var out AuthBeginResponse
	if err := c.post(ctx, "/v1/auth/begin", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContinueAuth advances the handshake with the card's raw response.
func (c *Client) ContinueAuth(ctx context.Context, req AuthContinueRequest) (*AuthContinueResponse, error) {
	var out AuthContinueResponse
	if err := c.post(ctx, "/v1/auth/continue", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteCard requests the WriteData frame sequence for an authenticated session.
func (c *Client) WriteCard(ctx context.Context, req CardWriteRequest) (*CardFramesResponse, error) {
	var out CardFramesResponse
	if err := c.post(ctx, "/v1/card/write", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangeKey requests ChangeKey cryptogram frames for a server-minted key.
func (c *Client) ChangeKey(ctx context.Context, req ChangeKeyRequest) (*ChangeKeyResponse, error) {
	var out ChangeKeyResponse
	if err := c.post(ctx, "/v1/card/change-key", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadCard requests ReadData frames for write verification.
func (c *Client) ReadCard(ctx context.Context, req CardReadRequest) (*CardReadResponse, error) {
	var out CardReadResponse
	if err := c.post(ctx, "/v1/card/read", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateTransfer opens a legacy pending transfer.
func (c *Client) InitiateTransfer(ctx context.Context, req InitiateTransferRequest) (*InitiateTransferResponse, error) {
	var out InitiateTransferResponse
	if err := c.post(ctx, "/v1/transfers/initiate", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinalizeTransfer completes a legacy transfer in the caller's favor.
func (c *Client) FinalizeTransfer(ctx context.Context, req FinalizeTransferRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.post(ctx, "/v1/transfers/finalize", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// StageTransfer prepares a two-phase transfer.
func (c *Client) StageTransfer(ctx context.Context, req StageTransferRequest) (*StageTransferResponse, error) {
	var out StageTransferResponse
	if err := c.post(ctx, "/v1/transfers/stage", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CommitTransfer applies a staged transfer.
func (c *Client) CommitTransfer(ctx context.Context, req CommitTransferRequest) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.post(ctx, "/v1/transfers/commit", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// RollbackTransfer discards a staged transfer.
func (c *Client) RollbackTransfer(ctx context.Context, req RollbackTransferRequest) error {
	return c.post(ctx, "/v1/transfers/rollback", req, nil, http.StatusNoContent)
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, target, http.StatusOK)
}

func (c *Client) post(ctx context.Context, path string, body, target any, expectedStatus int) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target, expectedStatus)
}

func (c *Client) do(req *http.Request, target any, expectedStatus int) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
