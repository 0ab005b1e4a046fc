package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

type SubscriptionState struct {
	Subscribed bool
	Pending    bool
}

// SubscriptionManager tracks the subscription of the registered identity.
// Subscribe, Unsubscribe and Refresh share one in-flight slot.
type SubscriptionManager struct {
	client    notifyclient.Client
	registrar *Registrar
	log       *zap.Logger

	mu         sync.Mutex
	gen        uint64
	epoch      uint64
	subscribed bool
	pending    bool
	scopes     map[string]model.Scope
}

func NewSubscriptionManager(client notifyclient.Client, registrar *Registrar) *SubscriptionManager {
	return &SubscriptionManager{
		client:    client,
		registrar: registrar,
		log:       logger.WithModule("subscription"),
	}
}

// syncLocked drops state that belongs to a previous identity.
func (m *SubscriptionManager) syncLocked(gen uint64) {
	if m.gen == gen {
		return
	}
	m.gen = gen
	m.epoch++
	m.subscribed = false
	m.scopes = nil
}

// begin claims the in-flight slot for the registered identity.
func (m *SubscriptionManager) begin(op string) (Identity, uint64, error) {
	id, gen := m.registrar.snapshot()
	if !id.Registered() {
		return Identity{}, 0, fmt.Errorf("%s: %w: identity not registered", op, ErrPreconditionFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncLocked(gen)
	if m.pending {
		return Identity{}, 0, fmt.Errorf("%s: %w", op, ErrAlreadyInProgress)
	}
	m.pending = true
	return id, gen, nil
}

// finish releases the slot and applies fn when the identity is unchanged and
// ctx is still live. Applying fn starts a new subscription epoch.
func (m *SubscriptionManager) finish(ctx context.Context, gen uint64, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false
	if fn != nil && m.gen == gen && ctx.Err() == nil {
		fn()
		m.epoch++
	}
}

// currentEpoch changes whenever the identity or the subscription state is replaced.
func (m *SubscriptionManager) currentEpoch() uint64 {
	_, gen := m.registrar.snapshot()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncLocked(gen)
	return m.epoch
}

func (m *SubscriptionManager) Subscribe(ctx context.Context) error {
	id, gen, err := m.begin("subscribe")
	if err != nil {
		return err
	}

	m.mu.Lock()
	already := m.subscribed
	m.mu.Unlock()
	if already {
		m.finish(ctx, gen, nil)
		return nil
	}

	sub, err := m.client.Subscribe(ctx, id.Account)
	if err != nil {
		m.finish(ctx, gen, nil)
		m.log.Warn("subscribe failed", zap.String("account", id.Account), zap.Error(err))
		return classify("subscribe", err)
	}
	m.finish(ctx, gen, func() {
		m.subscribed = true
		m.scopes = copyScopes(sub.Scopes)
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	m.log.Info("subscribed", zap.String("account", id.Account))
	return nil
}

// Unsubscribe removes the subscription. A subscription the remote no longer
// knows is treated as removed.
func (m *SubscriptionManager) Unsubscribe(ctx context.Context) error {
	id, gen, err := m.begin("unsubscribe")
	if err != nil {
		return err
	}

	m.mu.Lock()
	subscribed := m.subscribed
	m.mu.Unlock()
	if !subscribed {
		m.finish(ctx, gen, nil)
		return fmt.Errorf("unsubscribe: %w: not subscribed", ErrPreconditionFailed)
	}

	err = m.client.Unsubscribe(ctx, id.Account)
	if err != nil && !errors.Is(err, notifyclient.ErrNoSubscription) {
		m.finish(ctx, gen, nil)
		m.log.Warn("unsubscribe failed", zap.String("account", id.Account), zap.Error(err))
		return classify("unsubscribe", err)
	}
	m.finish(ctx, gen, func() {
		m.subscribed = false
		m.scopes = nil
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	m.log.Info("unsubscribed", zap.String("account", id.Account))
	return nil
}

// Refresh reloads the subscription from the remote service.
func (m *SubscriptionManager) Refresh(ctx context.Context) error {
	id, gen, err := m.begin("refresh subscription")
	if err != nil {
		return err
	}

	sub, err := m.client.Subscription(ctx, id.Account)
	if err != nil {
		m.finish(ctx, gen, nil)
		return classify("refresh subscription", err)
	}
	m.finish(ctx, gen, func() {
		m.subscribed = sub.Subscribed
		m.scopes = copyScopes(sub.Scopes)
	})
	return ctx.Err()
}

func (m *SubscriptionManager) State() SubscriptionState {
	_, gen := m.registrar.snapshot()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncLocked(gen)
	return SubscriptionState{Subscribed: m.subscribed, Pending: m.pending}
}

// cachedScopes returns the scope set seen by the last subscribe or refresh.
func (m *SubscriptionManager) cachedScopes() map[string]model.Scope {
	_, gen := m.registrar.snapshot()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncLocked(gen)
	if m.scopes == nil {
		return nil
	}
	return copyScopes(m.scopes)
}

func (m *SubscriptionManager) setScopes(gen uint64, scopes map[string]model.Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen && m.subscribed {
		m.scopes = copyScopes(scopes)
	}
}

func copyScopes(in map[string]model.Scope) map[string]model.Scope {
	if in == nil {
		return nil
	}
	out := make(map[string]model.Scope, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
