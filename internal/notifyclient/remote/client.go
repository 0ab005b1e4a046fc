// Package remote talks to a hosted notification service. Identity goes
// through gm-server; subscription and inbox calls go to the relay's REST API
// authenticated with the identity token.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gm-dapp/internal/gmapi"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

type Config struct {
	// RelayURL is the notification service base URL. ws and wss schemes are
	// mapped to http and https.
	RelayURL  string
	ProjectID string
	Timeout   time.Duration
}

func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

type Client struct {
	api        *gmapi.Client
	httpClient *http.Client
	baseURL    *url.URL
	projectID  string
}

var _ notifyclient.Client = (*Client)(nil)

// Error is returned for relay responses the adapter cannot map to a
// notifyclient error.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay error (%d)", e.StatusCode)
}

func New(config Config, api *gmapi.Client) (*Client, error) {
	config.SetDefaults()

	if api == nil {
		return nil, fmt.Errorf("gm-server client is required")
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("ProjectID is required")
	}
	baseURL, err := url.Parse(config.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid RelayURL: %w", err)
	}
	switch baseURL.Scheme {
	case "ws":
		baseURL.Scheme = "http"
	case "wss":
		baseURL.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("invalid RelayURL scheme %q", baseURL.Scheme)
	}
	baseURL.Path = strings.TrimSuffix(baseURL.Path, "/")

	return &Client{
		api:        api,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
		projectID:  config.ProjectID,
	}, nil
}

func (c *Client) RequestChallenge(ctx context.Context, account string) (notifyclient.Challenge, error) {
	resp, err := c.api.Challenge(ctx, account)
	if err != nil {
		return notifyclient.Challenge{}, err
	}
	return notifyclient.Challenge{Message: resp.Challenge, ExpiresAt: time.UnixMilli(resp.ExpiresAt)}, nil
}

func (c *Client) SubmitIdentity(ctx context.Context, account, publicKey, signature string) (notifyclient.Identity, error) {
	resp, err := c.api.Register(ctx, gmapi.RegisterRequest{Account: account, PublicKey: publicKey, Signature: signature})
	if err != nil {
		var apiErr *gmapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			if strings.Contains(strings.ToLower(apiErr.Message), "challenge") {
				return notifyclient.Identity{}, fmt.Errorf("%w: %s", notifyclient.ErrChallengeExpired, apiErr.Message)
			}
			return notifyclient.Identity{}, fmt.Errorf("%w: %s", notifyclient.ErrInvalidSignature, apiErr.Message)
		}
		return notifyclient.Identity{}, err
	}
	return notifyclient.Identity{Account: resp.Account, IdentityKey: resp.IdentityKey, Token: resp.Token}, nil
}

// SetToken restores a previously issued identity token.
func (c *Client) SetToken(token string) {
	c.api.SetToken(token)
}

type subscriptionBody struct {
	Account    string                 `json:"account"`
	Subscribed bool                   `json:"subscribed"`
	Scopes     map[string]model.Scope `json:"scopes"`
}

func (b subscriptionBody) subscription() notifyclient.Subscription {
	return notifyclient.Subscription{Account: b.Account, Subscribed: b.Subscribed, Scopes: b.Scopes}
}

type messagesBody struct {
	Messages []model.NotificationMessage `json:"messages"`
	HasMore  bool                        `json:"hasMore"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) Subscribe(ctx context.Context, account string) (notifyclient.Subscription, error) {
	var resp subscriptionBody
	if err := c.doRequest(ctx, http.MethodPost, c.path("subscriptions"), nil, map[string]string{"account": account}, &resp); err != nil {
		return notifyclient.Subscription{}, fmt.Errorf("subscribe: %w", err)
	}
	return resp.subscription(), nil
}

func (c *Client) Unsubscribe(ctx context.Context, account string) error {
	if err := c.doRequest(ctx, http.MethodDelete, c.path("subscriptions", account), nil, nil, nil); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// Subscription reports Subscribed false when the relay has no subscription
// for account.
func (c *Client) Subscription(ctx context.Context, account string) (notifyclient.Subscription, error) {
	var resp subscriptionBody
	err := c.doRequest(ctx, http.MethodGet, c.path("subscriptions", account), nil, nil, &resp)
	if errors.Is(err, notifyclient.ErrNoSubscription) {
		return notifyclient.Subscription{Account: account}, nil
	}
	if err != nil {
		return notifyclient.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return resp.subscription(), nil
}

func (c *Client) UpdateScopes(ctx context.Context, account string, enabled []string) (notifyclient.Subscription, error) {
	if enabled == nil {
		enabled = []string{}
	}
	var resp subscriptionBody
	body := map[string][]string{"enabled": enabled}
	if err := c.doRequest(ctx, http.MethodPut, c.path("subscriptions", account, "scopes"), nil, body, &resp); err != nil {
		return notifyclient.Subscription{}, fmt.Errorf("update scopes: %w", err)
	}
	return resp.subscription(), nil
}

func (c *Client) Messages(ctx context.Context, account string, limit int, before int64) (notifyclient.MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	var resp messagesBody
	if err := c.doRequest(ctx, http.MethodGet, c.path("messages", account), q, nil, &resp); err != nil {
		return notifyclient.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	return notifyclient.MessagePage{Messages: resp.Messages, HasMore: resp.HasMore}, nil
}

func (c *Client) DeleteMessage(ctx context.Context, account string, id int64) error {
	if err := c.doRequest(ctx, http.MethodDelete, c.path("messages", account, strconv.FormatInt(id, 10)), nil, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (c *Client) MarkRead(ctx context.Context, account string, ids []int64) error {
	if err := c.doRequest(ctx, http.MethodPost, c.path("messages", account, "read"), nil, map[string][]int64{"ids": ids}, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (c *Client) path(segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, url.PathEscape(c.projectID))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return c.baseURL.Path + "/" + strings.Join(escaped, "/")
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, reqBody, respBody any) error {
	token := c.api.Token()
	if token == "" {
		return notifyclient.ErrNotRegistered
	}

	u := *c.baseURL
	u.RawPath = ""
	u.Path, _ = url.PathUnescape(path)
	u.RawPath = path
	u.RawQuery = query.Encode()

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

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
		return decodeError(resp.StatusCode, bodyBytes)
	}
	if respBody != nil && len(bytes.TrimSpace(bodyBytes)) > 0 {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	var sentinel error
	switch eb.Error {
	case "not_registered":
		sentinel = notifyclient.ErrNotRegistered
	case "no_subscription":
		sentinel = notifyclient.ErrNoSubscription
	case "unknown_scope":
		sentinel = notifyclient.ErrUnknownScope
	case "message_not_found":
		sentinel = notifyclient.ErrMessageNotFound
	}
	if sentinel == nil && status == http.StatusUnauthorized {
		sentinel = notifyclient.ErrNotRegistered
	}
	if sentinel != nil {
		if eb.Message != "" {
			return fmt.Errorf("%w: %s", sentinel, eb.Message)
		}
		return sentinel
	}
	return &Error{StatusCode: status, Code: eb.Error, Message: eb.Message}
}
