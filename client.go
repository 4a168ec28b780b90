package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/layer-3/forum/core"
)

// HTTPClient signs in to a forum server and keeps its cookies between calls
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying client. A cookie jar is added when it has none.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) Nonce(ctx context.Context) (string, error) {
	var resp struct {
		Nonce string `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/nonce", nil, &resp); err != nil {
		return "", err
	}
	return resp.Nonce, nil
}

func (c *HTTPClient) CompleteAuth(ctx context.Context, payload SignedPayload, nonce string, skipVerification bool) (*LoginResult, error) {
	req := map[string]any{
		"payload":          payload,
		"nonce":            nonce,
		"skipVerification": skipVerification,
	}
	return c.login(ctx, "/api/complete-siwe", req)
}

func (c *HTTPClient) CreateSession(ctx context.Context, address string) (*LoginResult, error) {
	return c.login(ctx, "/api/create-session", map[string]string{"address": address})
}

func (c *HTTPClient) Session(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
}

func (c *HTTPClient) login(ctx context.Context, path string, body any) (*LoginResult, error) {
	var resp struct {
		Address       string `json:"address"`
		Verified      bool   `json:"verified"`
		SessionIssued *bool  `json:"sessionIssued"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &LoginResult{
		Address:       resp.Address,
		Verified:      resp.Verified,
		SessionIssued: resp.SessionIssued == nil || *resp.SessionIssued,
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error   string      `json:"error"`
			Reason  core.Reason `json:"reason"`
			Message string      `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &APIError{
			StatusCode: resp.StatusCode,
			Reason:     failure.Reason,
			Message:    failure.Error,
			Hint:       failure.Message,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
