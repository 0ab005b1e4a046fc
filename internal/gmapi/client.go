// Package gmapi is the HTTP client for gm-server.
package gmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"gm-dapp/internal/model"
)

type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    *url.URL

	mu    sync.RWMutex
	token string
}

func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid ServerURL scheme %q", baseURL.Scheme)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// Challenge asks for the message the wallet must sign to register account.
func (c *Client) Challenge(ctx context.Context, account string) (ChallengeResponse, error) {
	var resp ChallengeResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/identity/challenge", map[string]string{"account": account}, &resp); err != nil {
		return ChallengeResponse{}, fmt.Errorf("request challenge: %w", err)
	}
	return resp, nil
}

// Register submits a signed challenge. The returned token is kept for
// WatchUpdates.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/identity", req, &resp); err != nil {
		return RegisterResponse{}, fmt.Errorf("register identity: %w", err)
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// Notify sends a notification through gm-server. When the server answers with
// a client error, the decoded body is returned alongside the *APIError.
func (c *Client) Notify(ctx context.Context, req model.SendRequest) (NotifyResponse, error) {
	var resp NotifyResponse
	err := c.doRequest(ctx, http.MethodPost, "/notify", req, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			_ = json.Unmarshal(apiErr.Body, &resp)
			if resp.Message == "" {
				resp.Message = apiErr.Message
			}
			resp.Success = false
			return resp, err
		}
		return NotifyResponse{}, fmt.Errorf("notify: %w", err)
	}
	return resp, nil
}

// Subscriber returns the subscriber record for account, or nil when none exists.
func (c *Client) Subscriber(ctx context.Context, account string) (*model.Subscriber, error) {
	var resp subscriberResponse
	q := url.Values{"account": []string{account}}
	if err := c.doRequestWithQuery(ctx, http.MethodGet, "/subscriber", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return resp.Subscriber, nil
}

func (c *Client) Subscribe(ctx context.Context, account string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/subscribe", map[string]string{"account": account}, nil); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (c *Client) UpdateSubscriber(ctx context.Context, account string, hasBeenWelcomed bool) error {
	body := map[string]any{"account": account, "hasBeenWelcomed": hasBeenWelcomed}
	if err := c.doRequest(ctx, http.MethodPost, "/update-subscriber", body, nil); err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	return nil
}

// DeliverWebhook posts a subscription event the way the notification service does.
func (c *Client) DeliverWebhook(ctx context.Context, ev model.WebhookEvent) error {
	if err := c.doRequest(ctx, http.MethodPost, "/webhook", ev, nil); err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	return nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) doRequestWithQuery(ctx context.Context, method, path string, queryParams url.Values, reqBody, respBody any) error {
	u := &url.URL{Path: path}
	if len(queryParams) > 0 {
		u.RawQuery = queryParams.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodyBytes}
		var eb errorBody
		if json.Unmarshal(bodyBytes, &eb) == nil {
			apiErr.Message = eb.Message
			if apiErr.Message == "" {
				apiErr.Message = eb.Error
			}
		}
		return apiErr
	}

	if respBody != nil && len(bytes.TrimSpace(bodyBytes)) > 0 {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody any) error {
	return c.doRequestWithQuery(ctx, method, path, nil, reqBody, respBody)
}
