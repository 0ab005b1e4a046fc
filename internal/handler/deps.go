package handler

import (
	"context"

	"gm-dapp/internal/model"
	"gm-dapp/internal/relay"
)

// SubscriberStore is the durable subscriber table.
type SubscriberStore interface {
	Get(ctx context.Context, account string) (model.Subscriber, error)
	Subscribe(ctx context.Context, account string) (bool, error)
	Unsubscribe(ctx context.Context, account string) (bool, error)
	SetWelcomed(ctx context.Context, account string, welcomed bool) (model.Subscriber, error)
}

// Notifier delivers a notification through the relay.
type Notifier interface {
	Notify(ctx context.Context, req model.SendRequest) (relay.Result, error)
}

func failure(message string) map[string]any {
	return map[string]any{"success": false, "message": message}
}
