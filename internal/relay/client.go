// Package relay forwards notifications to the cast relay that delivers them
// to subscribed wallets.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"gm-dapp/internal/model"
)

type Config struct {
	// BaseURL of the relay, e.g. https://cast.walletconnect.com
	BaseURL       string
	ProjectID     string
	ProjectSecret string
	Timeout       time.Duration
}

func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://cast.walletconnect.com"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Failure describes one account the relay could not deliver to.
type Failure struct {
	Account string `json:"account"`
	Reason  string `json:"reason"`
}

// UnmarshalJSON accepts both a bare account string and an {account, reason} object.
func (f *Failure) UnmarshalJSON(data []byte) error {
	var account string
	if err := json.Unmarshal(data, &account); err == nil {
		*f = Failure{Account: account}
		return nil
	}
	type plain Failure
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Failure(p)
	return nil
}

// Result is the relay's per-account delivery report.
type Result struct {
	Sent     []string  `json:"sent"`
	Failed   []Failure `json:"failed"`
	NotFound []string  `json:"not_found"`
	// StatusCode is the relay's HTTP status.
	StatusCode int `json:"-"`
}

// Delivered reports whether account is in the sent set.
func (r Result) Delivered(account string) bool {
	return slices.Contains(r.Sent, account)
}

// Reason explains why account was not delivered, or "" when unknown.
func (r Result) Reason(account string) string {
	for _, f := range r.Failed {
		if f.Account == account && f.Reason != "" {
			return f.Reason
		}
	}
	if slices.Contains(r.NotFound, account) {
		return "account not subscribed to this dapp"
	}
	return ""
}

type Client struct {
	config     Config
	httpClient *http.Client
	notifyURL  string
}

func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ProjectID == "" {
		return nil, fmt.Errorf("ProjectID is required")
	}
	if config.ProjectSecret == "" {
		return nil, fmt.Errorf("ProjectSecret is required")
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	notifyURL := baseURL.JoinPath(config.ProjectID, "notify")

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		notifyURL:  notifyURL.String(),
	}, nil
}

// Notify posts req to the relay. A non-nil error means the relay could not be
// reached or answered with something other than a delivery report.
func (c *Client) Notify(ctx context.Context, req model.SendRequest) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.notifyURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.ProjectSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read relay response: %w", err)
	}

	result := Result{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			if resp.StatusCode >= 400 {
				return result, nil
			}
			return Result{}, fmt.Errorf("failed to parse relay response: %w", err)
		}
	}
	return result, nil
}
