package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	applog "biciadmin/internal/log"
)

// Client is the authenticated façade every pipeline component calls through.
// It attaches the bearer token, performs exactly one refresh-and-replay on a
// 401, and surfaces every other non-2xx as *APIError. Retry policy beyond
// that single replay belongs to callers.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  *TokenStore
}

func NewClient(tokens *TokenStore, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Tokens:  tokens,
	}
}

// Request performs an authenticated call and returns the response body.
// body may be nil; headers override the defaults (Content-Type is
// application/json unless overridden).
func (c *Client) Request(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	token, err := c.Tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	status, respBody, err := c.send(ctx, method, path, body, headers, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		// One refresh, one replay. A second failure of any kind here means
		// the credential is bad.
		if _, err := c.Tokens.Refresh(ctx); err != nil {
			applog.Error(nil, "ml.client.refresh", err, map[string]any{"path": path})
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		token, err = c.Tokens.EnsureValid(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		status, respBody, err = c.send(ctx, method, path, body, headers, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, ErrAuthenticationFailed
		}
	}

	if status < 200 || status > 299 {
		return nil, &APIError{Status: status, Body: respBody}
	}
	return respBody, nil
}

// GetJSON performs a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.Request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// PostJSON marshals in, performs a POST and decodes the response into out
// (out may be nil).
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.Request(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, headers map[string]string, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}
