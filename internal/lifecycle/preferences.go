package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

// Preferences reads and replaces the enabled scope set of the subscription.
type Preferences struct {
	client        notifyclient.Client
	registrar     *Registrar
	subscriptions *SubscriptionManager
	log           *zap.Logger

	mu     sync.Mutex
	gen    uint64
	epoch  uint64
	scopes map[string]model.Scope
}

func NewPreferences(client notifyclient.Client, registrar *Registrar, subscriptions *SubscriptionManager) *Preferences {
	return &Preferences{
		client:        client,
		registrar:     registrar,
		subscriptions: subscriptions,
		log:           logger.WithModule("preferences"),
	}
}

// Scopes fetches the scope set of the current subscription.
func (p *Preferences) Scopes(ctx context.Context) (map[string]model.Scope, error) {
	id, gen := p.registrar.snapshot()
	if !id.Registered() {
		return nil, fmt.Errorf("scopes: %w: identity not registered", ErrPreconditionFailed)
	}
	epoch := p.subscriptions.currentEpoch()

	sub, err := p.client.Subscription(ctx, id.Account)
	if err != nil {
		return nil, classify("scopes", err)
	}
	if !sub.Subscribed {
		return nil, fmt.Errorf("scopes: %w: not subscribed", ErrPreconditionFailed)
	}
	p.store(gen, epoch, sub.Scopes)
	return copyScopes(sub.Scopes), nil
}

// UpdateScopes enables exactly the keys in enabled and disables every other
// scope. It reports false on any failure, including keys outside the fetched
// scope set, and leaves the cached set untouched in that case.
func (p *Preferences) UpdateScopes(ctx context.Context, enabled []string) bool {
	id, gen := p.registrar.snapshot()
	if !id.Registered() {
		p.log.Warn("scope update without registered identity")
		return false
	}

	epoch := p.subscriptions.currentEpoch()
	known := p.known(gen, epoch)
	if known == nil {
		var err error
		if known, err = p.Scopes(ctx); err != nil {
			p.log.Warn("scope fetch failed", zap.String("account", id.Account), zap.Error(err))
			return false
		}
	}

	want := make(map[string]bool, len(enabled))
	for _, key := range enabled {
		if _, ok := known[key]; !ok {
			p.log.Warn("unknown scope", zap.String("account", id.Account), zap.String("scope", key))
			return false
		}
		want[key] = true
	}

	keys := make([]string, 0, len(want))
	for key := range want {
		keys = append(keys, key)
	}
	sub, err := p.client.UpdateScopes(ctx, id.Account, keys)
	if err != nil {
		p.log.Warn("scope update failed", zap.String("account", id.Account), zap.Error(classify("update scopes", err)))
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	next := copyScopes(sub.Scopes)
	if next == nil {
		next = known
	}
	for key, sc := range next {
		sc.Enabled = want[key]
		next[key] = sc
	}
	p.store(gen, epoch, next)
	p.subscriptions.setScopes(gen, next)
	return true
}

// known returns the cached scope set when it belongs to the current identity
// and subscription epoch.
func (p *Preferences) known(gen, epoch uint64) map[string]model.Scope {
	p.mu.Lock()
	if p.gen == gen && p.epoch == epoch && p.scopes != nil {
		out := copyScopes(p.scopes)
		p.mu.Unlock()
		return out
	}
	p.mu.Unlock()
	return p.subscriptions.cachedScopes()
}

func (p *Preferences) store(gen, epoch uint64, scopes map[string]model.Scope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen = gen
	p.epoch = epoch
	p.scopes = copyScopes(scopes)
}
