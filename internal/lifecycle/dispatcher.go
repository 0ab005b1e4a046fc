package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
	"gm-dapp/internal/validator"
)

// NotSubscribedMessage is the result message for sends to an account without
// a subscription.
const NotSubscribedMessage = "NotSubscribed"

type SendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Dispatcher sends notifications through the dApp backend. One send may be in
// flight at a time.
type Dispatcher struct {
	backend       notifyclient.Backend
	registrar     *Registrar
	subscriptions *SubscriptionManager
	chain         string
	log           *zap.Logger

	mu       sync.Mutex
	inflight bool
}

func NewDispatcher(backend notifyclient.Backend, registrar *Registrar, subscriptions *SubscriptionManager) *Dispatcher {
	return &Dispatcher{
		backend:       backend,
		registrar:     registrar,
		subscriptions: subscriptions,
		chain:         registrar.chain,
		log:           logger.WithModule("dispatcher"),
	}
}

// Send delivers req to its first target account. Delivery failures are
// reported in the result; errors are reserved for invalid requests, missing
// preconditions and transport failures. A target without a subscription
// yields a NotSubscribed result together with ErrNotSubscribed.
func (d *Dispatcher) Send(ctx context.Context, req model.SendRequest) (SendResult, error) {
	req, err := d.normalize(req)
	if err != nil {
		return SendResult{}, err
	}

	id := d.registrar.Identity()
	if !id.Registered() {
		return SendResult{}, fmt.Errorf("send: %w: identity not registered", ErrPreconditionFailed)
	}

	d.mu.Lock()
	if d.inflight {
		d.mu.Unlock()
		return SendResult{}, fmt.Errorf("send: %w", ErrAlreadyInProgress)
	}
	d.inflight = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inflight = false
		d.mu.Unlock()
	}()

	target := req.Accounts[0]
	subscribed, err := d.targetSubscribed(ctx, id, target)
	if err != nil {
		return SendResult{}, err
	}
	if !subscribed {
		return SendResult{Message: NotSubscribedMessage}, fmt.Errorf("send to %s: %w", target, ErrNotSubscribed)
	}

	out, err := d.backend.Notify(ctx, req)
	if err != nil {
		d.log.Warn("notify failed", zap.String("account", target), zap.Error(err))
		return SendResult{}, classify("send", err)
	}
	if out.Success {
		return SendResult{Success: true}, nil
	}
	if out.Message == NotSubscribedMessage {
		return SendResult{Message: NotSubscribedMessage}, fmt.Errorf("send to %s: %w", target, ErrNotSubscribed)
	}

	msg := out.Message
	if msg == "" {
		msg = fmt.Sprintf("Message failed. Is %s enabled in your preferences ?", req.FriendlyType)
	}
	d.log.Info("notification not delivered", zap.String("account", target), zap.String("reason", msg))
	return SendResult{Message: msg}, nil
}

// targetSubscribed answers from local state for the session account and from
// the backend's subscriber record for anyone else.
func (d *Dispatcher) targetSubscribed(ctx context.Context, id Identity, target string) (bool, error) {
	if target == id.Account {
		return d.subscriptions.State().Subscribed, nil
	}
	rec, err := d.backend.Subscriber(ctx, target)
	if err != nil {
		return false, classify("lookup subscriber", err)
	}
	return rec != nil, nil
}

func (d *Dispatcher) normalize(req model.SendRequest) (model.SendRequest, error) {
	if len(req.Accounts) == 0 || req.Accounts[0] == "" {
		return req, fmt.Errorf("send: %w: missing target account", ErrInvalidRequest)
	}

	accounts := make([]string, len(req.Accounts))
	for i, a := range req.Accounts {
		account, err := model.QualifyAccount(d.chain, a)
		if err != nil {
			return req, fmt.Errorf("send: %w: %v", ErrInvalidRequest, err)
		}
		accounts[i] = account
	}
	req.Accounts = accounts

	if req.Notification.Type == "" {
		req.Notification.Type = model.TypeManual
	}
	if req.FriendlyType == "" {
		req.FriendlyType = d.friendlyType(req.Notification.Type)
	}
	if err := validator.Struct(req); err != nil {
		return req, fmt.Errorf("send: %w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

func (d *Dispatcher) friendlyType(key string) string {
	if sc, ok := d.subscriptions.cachedScopes()[key]; ok && sc.Description != "" {
		return sc.Description
	}
	if sc, ok := model.DefaultScopes()[key]; ok {
		return sc.Description
	}
	return key
}
