package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Meterline platform.
type Config struct {
	APIURL   string // Base URL, e.g. "http://localhost:8080"
	APIKey   string // API key, e.g. "mk_..."
	TenantID string // Tenant the key belongs to, e.g. "tnt_..."
}

// MeterlineClient is a pure HTTP client for the Meterline platform API.
type MeterlineClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewMeterlineClient creates a new client for the Meterline platform.
func NewMeterlineClient(cfg Config) *MeterlineClient {
	return &MeterlineClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *MeterlineClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetWallet returns the tenant's wallet state.
func (c *MeterlineClient) GetWallet(ctx context.Context) (json.RawMessage, error) {
	path := "/v1/tenants/" + c.cfg.TenantID + "/wallet"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// GetLedger returns recent ledger entries for the tenant.
func (c *MeterlineClient) GetLedger(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/tenants/" + c.cfg.TenantID + "/ledger"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// PreviewAction prices an action without charging for it.
func (c *MeterlineClient) PreviewAction(ctx context.Context, actionKind string, tokenCount int64) (json.RawMessage, error) {
	body := map[string]any{
		"action_kind": actionKind,
		"token_count": tokenCount,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/actions/preview", nil, body)
}

// GetPricing returns the active pricing rules.
func (c *MeterlineClient) GetPricing(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/pricing", nil, nil)
}

// CheckAction asks whether the feature gate currently allows an action kind.
func (c *MeterlineClient) CheckAction(ctx context.Context, actionKind string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("action_kind", actionKind)
	return c.doRequest(ctx, http.MethodGet, "/v1/actions/check", q, nil)
}
