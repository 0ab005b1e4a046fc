// Package notifyclient defines the contract between the subscription
// lifecycle and the remote notification service.
package notifyclient

import (
	"context"
	"errors"
	"time"

	"gm-dapp/internal/model"
)

var (
	// ErrNotRegistered is returned for account operations before the account
	// completed identity registration.
	ErrNotRegistered = errors.New("notifyclient: identity not registered")
	// ErrNoSubscription is returned for scope and inbox operations on an
	// account without a subscription.
	ErrNoSubscription = errors.New("notifyclient: no subscription")
	ErrInvalidSignature = errors.New("notifyclient: invalid signature")
	ErrChallengeExpired = errors.New("notifyclient: challenge expired or missing")
	ErrUnknownScope     = errors.New("notifyclient: unknown scope")
	ErrMessageNotFound  = errors.New("notifyclient: message not found")
)

type Challenge struct {
	Message   string
	ExpiresAt time.Time
}

type Identity struct {
	Account     string
	IdentityKey string
	Token       string
}

// Subscription is the remote view of an account's subscription.
type Subscription struct {
	Account    string
	Subscribed bool
	Scopes     map[string]model.Scope
}

type MessagePage struct {
	Messages []model.NotificationMessage
	HasMore  bool
}

// Client is implemented by every notification service adapter.
type Client interface {
	RequestChallenge(ctx context.Context, account string) (Challenge, error)
	SubmitIdentity(ctx context.Context, account, publicKey, signature string) (Identity, error)

	Subscribe(ctx context.Context, account string) (Subscription, error)
	Unsubscribe(ctx context.Context, account string) error
	Subscription(ctx context.Context, account string) (Subscription, error)
	UpdateScopes(ctx context.Context, account string, enabled []string) (Subscription, error)

	// Messages returns up to limit messages with ids below before, newest
	// first. before <= 0 starts at the newest message.
	Messages(ctx context.Context, account string, limit int, before int64) (MessagePage, error)
	DeleteMessage(ctx context.Context, account string, id int64) error
	MarkRead(ctx context.Context, account string, ids []int64) error
}

// Backend is the dApp backend that sends notifications and owns subscriber records.
type Backend interface {
	Notify(ctx context.Context, req model.SendRequest) (SendOutcome, error)
	Subscriber(ctx context.Context, account string) (*model.Subscriber, error)
}

// SendOutcome is the backend's verdict on one notify request.
type SendOutcome struct {
	Success bool
	Message string
}
