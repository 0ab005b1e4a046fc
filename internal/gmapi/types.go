package gmapi

import (
	"fmt"
	"time"

	"gm-dapp/internal/model"
)

type Config struct {
	// ServerURL is the base URL of gm-server, e.g. http://localhost:3000
	ServerURL string
	Timeout   time.Duration
}

func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

type ChallengeResponse struct {
	Challenge string `json:"challenge"`
	ExpiresAt int64  `json:"expiresAt"`
}

type RegisterRequest struct {
	Account   string `json:"account"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

type RegisterResponse struct {
	Account     string `json:"account"`
	IdentityKey string `json:"identityKey"`
	Token       string `json:"token"`
}

// NotifyResponse is the body of /notify.
type NotifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type subscriberResponse struct {
	Subscriber *model.Subscriber `json:"subscriber"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// APIError is returned for any response with status >= 400.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (%d)", e.StatusCode)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
