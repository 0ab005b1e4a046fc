package model

import "time"

const (
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	// EventUpdated and EventSnapshot are only emitted on the updates stream.
	EventUpdated  = "updated"
	EventSnapshot = "snapshot"
)

// Subscriber is the durable record kept for every account subscribed to the dApp.
type Subscriber struct {
	Account         string    `json:"account" gorm:"column:account;primaryKey;size:255"`
	HasBeenWelcomed bool      `json:"hasBeenWelcomed" gorm:"column:has_been_welcomed;not null;default:false"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}

func (Subscriber) TableName() string { return "gm_users" }

type Challenge struct {
	Account   string `json:"account"`
	Message   string `json:"challenge"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// IdentityRecord binds a wallet account to the messaging key it registered.
type IdentityRecord struct {
	Account     string `json:"account"`
	PublicKey   string `json:"publicKey"`
	IdentityKey string `json:"identityKey"`
	CreatedAt   int64  `json:"createdAt"`
}

type Scope struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

type NotificationMessage struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url,omitempty"`
	Icon   string `json:"icon,omitempty"`
	Type   string `json:"type"`
	Read   bool   `json:"read"`
	SentAt int64  `json:"sentAt"`
}

type Notification struct {
	Title string `json:"title" validate:"required"`
	Body  string `json:"body" validate:"required"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
	Type  string `json:"type" validate:"required"`
}

// SendRequest is the outbound notify command; it is never persisted.
type SendRequest struct {
	Accounts     []string     `json:"accounts" validate:"required,min=1,dive,caip10"`
	Notification Notification `json:"notification"`
	// FriendlyType names the notification type in user-facing failure messages.
	FriendlyType string `json:"-"`
}

type WebhookEvent struct {
	ID      string `json:"id"`
	Event   string `json:"event" validate:"required"`
	Account string `json:"account" validate:"required,caip10"`
	DappURL string `json:"dappUrl"`
}
