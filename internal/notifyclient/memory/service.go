// Package memory is an in-process notification service. It backs gmctl's
// offline mode and the lifecycle tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

// Operation names accepted by FailNext, SetGate and Calls.
const (
	OpChallenge    = "challenge"
	OpRegister     = "register"
	OpSubscribe    = "subscribe"
	OpUnsubscribe  = "unsubscribe"
	OpSubscription = "subscription"
	OpUpdateScopes = "update_scopes"
	OpMessages     = "messages"
	OpDelete       = "delete"
	OpMarkRead     = "mark_read"
	OpNotify       = "notify"
	OpSubscriber   = "subscriber"
)

type identity struct {
	publicKey   string
	identityKey string
}

type Service struct {
	mu sync.Mutex

	dappURL      string
	scopes       map[string]model.Scope
	webhook      func(context.Context, model.WebhookEvent) error
	now          func() time.Time
	challengeTTL time.Duration
	log          *zap.Logger

	challenges map[string]notifyclient.Challenge
	identities map[string]identity
	subs       map[string]map[string]model.Scope
	inbox      map[string][]model.NotificationMessage
	nextID     int64

	calls    map[string]int
	failures map[string]error
	gates    map[string]<-chan struct{}
}

type Option func(*Service)

// WithScopes sets the scope set a new subscription starts with.
func WithScopes(scopes map[string]model.Scope) Option {
	return func(s *Service) {
		if len(scopes) > 0 {
			s.scopes = copyScopes(scopes)
		}
	}
}

// WithWebhook registers the callback fired after subscribe and unsubscribe.
func WithWebhook(fn func(context.Context, model.WebhookEvent) error) Option {
	return func(s *Service) { s.webhook = fn }
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
	}
}

func WithDappURL(u string) Option {
	return func(s *Service) { s.dappURL = u }
}

func New(opts ...Option) *Service {
	s := &Service{
		dappURL:      "https://gm.walletconnect.com",
		scopes:       model.DefaultScopes(),
		now:          time.Now,
		challengeTTL: 5 * time.Minute,
		log:          logger.WithModule("notify-memory"),
		challenges:   make(map[string]notifyclient.Challenge),
		identities:   make(map[string]identity),
		subs:         make(map[string]map[string]model.Scope),
		inbox:        make(map[string][]model.NotificationMessage),
		calls:        make(map[string]int),
		failures:     make(map[string]error),
		gates:        make(map[string]<-chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ notifyclient.Client  = (*Service)(nil)
	_ notifyclient.Backend = (*Service)(nil)
)

// SetScopes replaces the scope set offered to subscriptions created from now
// on. Existing subscriptions keep theirs.
func (s *Service) SetScopes(scopes map[string]model.Scope) {
	s.mu.Lock()
	s.scopes = copyScopes(scopes)
	s.mu.Unlock()
}

// FailNext makes the next call of op return err.
func (s *Service) FailNext(op string, err error) {
	s.mu.Lock()
	s.failures[op] = err
	s.mu.Unlock()
}

// SetGate blocks calls of op until gate is closed. A nil gate removes it.
func (s *Service) SetGate(op string, gate <-chan struct{}) {
	s.mu.Lock()
	if gate == nil {
		delete(s.gates, op)
	} else {
		s.gates[op] = gate
	}
	s.mu.Unlock()
}

// Calls reports how many times op was invoked.
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Service) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	gate := s.gates[op]
	err := s.failures[op]
	delete(s.failures, op)
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *Service) RequestChallenge(ctx context.Context, account string) (notifyclient.Challenge, error) {
	if err := s.enter(ctx, OpChallenge); err != nil {
		return notifyclient.Challenge{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if ch, ok := s.challenges[account]; ok && ch.ExpiresAt.After(now) {
		return ch, nil
	}
	ch := notifyclient.Challenge{
		Message:   fmt.Sprintf("Register %s with the gm notification service.\n\nNonce: %s", account, uuid.NewString()),
		ExpiresAt: now.Add(s.challengeTTL),
	}
	s.challenges[account] = ch
	return ch, nil
}

func (s *Service) SubmitIdentity(ctx context.Context, account, publicKey, signature string) (notifyclient.Identity, error) {
	if err := s.enter(ctx, OpRegister); err != nil {
		return notifyclient.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[account]
	if !ok || !ch.ExpiresAt.After(s.now()) {
		return notifyclient.Identity{}, notifyclient.ErrChallengeExpired
	}
	if err := auth.VerifyAddress(publicKey, model.AccountAddress(account)); err != nil {
		return notifyclient.Identity{}, fmt.Errorf("%w: %v", notifyclient.ErrInvalidSignature, err)
	}
	if err := auth.VerifySignatureDetailed(publicKey, ch.Message, signature); err != nil {
		return notifyclient.Identity{}, fmt.Errorf("%w: %v", notifyclient.ErrInvalidSignature, err)
	}

	id, ok := s.identities[account]
	if ok && id.publicKey != "" && id.publicKey != publicKey {
		return notifyclient.Identity{}, fmt.Errorf("%w: account is bound to another key", notifyclient.ErrInvalidSignature)
	}
	delete(s.challenges, account)
	if !ok {
		id = identity{identityKey: uuid.NewString()}
	}
	id.publicKey = publicKey
	s.identities[account] = id
	return notifyclient.Identity{Account: account, IdentityKey: id.identityKey, Token: "mem-" + id.identityKey}, nil
}

// adopt registers an identity that was verified elsewhere.
func (s *Service) adopt(account, identityKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[account]; !ok {
		s.identities[account] = identity{identityKey: identityKey}
	}
}

func (s *Service) registeredLocked(account string) error {
	if _, ok := s.identities[account]; !ok {
		return notifyclient.ErrNotRegistered
	}
	return nil
}

func (s *Service) Subscribe(ctx context.Context, account string) (notifyclient.Subscription, error) {
	if err := s.enter(ctx, OpSubscribe); err != nil {
		return notifyclient.Subscription{}, err
	}

	s.mu.Lock()
	if err := s.registeredLocked(account); err != nil {
		s.mu.Unlock()
		return notifyclient.Subscription{}, err
	}
	scopes, existed := s.subs[account]
	if !existed {
		scopes = copyScopes(s.scopes)
		s.subs[account] = scopes
	}
	sub := notifyclient.Subscription{Account: account, Subscribed: true, Scopes: copyScopes(scopes)}
	s.mu.Unlock()

	if !existed {
		s.fireWebhook(ctx, model.EventSubscribed, account)
	}
	return sub, nil
}

func (s *Service) Unsubscribe(ctx context.Context, account string) error {
	if err := s.enter(ctx, OpUnsubscribe); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.registeredLocked(account); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.subs[account]; !ok {
		s.mu.Unlock()
		return notifyclient.ErrNoSubscription
	}
	delete(s.subs, account)
	delete(s.inbox, account)
	s.mu.Unlock()

	s.fireWebhook(ctx, model.EventUnsubscribed, account)
	return nil
}

func (s *Service) fireWebhook(ctx context.Context, event, account string) {
	if s.webhook == nil {
		return
	}
	ev := model.WebhookEvent{ID: uuid.NewString(), Event: event, Account: account, DappURL: s.dappURL}
	if err := s.webhook(ctx, ev); err != nil {
		s.log.Warn("webhook delivery failed", zap.String("event", event), zap.String("account", account), zap.Error(err))
	}
}

func (s *Service) Subscription(ctx context.Context, account string) (notifyclient.Subscription, error) {
	if err := s.enter(ctx, OpSubscription); err != nil {
		return notifyclient.Subscription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registeredLocked(account); err != nil {
		return notifyclient.Subscription{}, err
	}
	scopes, ok := s.subs[account]
	if !ok {
		return notifyclient.Subscription{Account: account}, nil
	}
	return notifyclient.Subscription{Account: account, Subscribed: true, Scopes: copyScopes(scopes)}, nil
}

// UpdateScopes enables exactly the listed scopes and disables the rest.
func (s *Service) UpdateScopes(ctx context.Context, account string, enabled []string) (notifyclient.Subscription, error) {
	if err := s.enter(ctx, OpUpdateScopes); err != nil {
		return notifyclient.Subscription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registeredLocked(account); err != nil {
		return notifyclient.Subscription{}, err
	}
	scopes, ok := s.subs[account]
	if !ok {
		return notifyclient.Subscription{}, notifyclient.ErrNoSubscription
	}

	want := make(map[string]bool, len(enabled))
	for _, key := range enabled {
		if _, known := scopes[key]; !known {
			return notifyclient.Subscription{}, fmt.Errorf("%w: %s", notifyclient.ErrUnknownScope, key)
		}
		want[key] = true
	}
	for key, sc := range scopes {
		sc.Enabled = want[key]
		scopes[key] = sc
	}
	return notifyclient.Subscription{Account: account, Subscribed: true, Scopes: copyScopes(scopes)}, nil
}

func (s *Service) Messages(ctx context.Context, account string, limit int, before int64) (notifyclient.MessagePage, error) {
	if err := s.enter(ctx, OpMessages); err != nil {
		return notifyclient.MessagePage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registeredLocked(account); err != nil {
		return notifyclient.MessagePage{}, err
	}
	if _, ok := s.subs[account]; !ok {
		return notifyclient.MessagePage{}, notifyclient.ErrNoSubscription
	}

	msgs := make([]model.NotificationMessage, 0, len(s.inbox[account]))
	for _, m := range s.inbox[account] {
		if before <= 0 || m.ID < before {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })

	if limit <= 0 || limit >= len(msgs) {
		return notifyclient.MessagePage{Messages: msgs}, nil
	}
	return notifyclient.MessagePage{Messages: msgs[:limit], HasMore: true}, nil
}

func (s *Service) DeleteMessage(ctx context.Context, account string, id int64) error {
	if err := s.enter(ctx, OpDelete); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registeredLocked(account); err != nil {
		return err
	}
	msgs := s.inbox[account]
	for i, m := range msgs {
		if m.ID == id {
			s.inbox[account] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return notifyclient.ErrMessageNotFound
}

func (s *Service) MarkRead(ctx context.Context, account string, ids []int64) error {
	if err := s.enter(ctx, OpMarkRead); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registeredLocked(account); err != nil {
		return err
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	msgs := s.inbox[account]
	for i := range msgs {
		if want[msgs[i].ID] {
			msgs[i].Read = true
		}
	}
	return nil
}

// Notify delivers to the first target the way gm-server and the relay would:
// unsubscribed targets get NotSubscribed, disabled scopes are not delivered.
func (s *Service) Notify(ctx context.Context, req model.SendRequest) (notifyclient.SendOutcome, error) {
	if err := s.enter(ctx, OpNotify); err != nil {
		return notifyclient.SendOutcome{}, err
	}
	if len(req.Accounts) == 0 {
		return notifyclient.SendOutcome{Message: "no target account"}, nil
	}

	_, ok := s.Deliver(req.Accounts[0], req.Notification)
	if !ok {
		s.mu.Lock()
		_, subscribed := s.subs[req.Accounts[0]]
		s.mu.Unlock()
		if !subscribed {
			return notifyclient.SendOutcome{Message: "NotSubscribed"}, nil
		}
		return notifyclient.SendOutcome{}, nil
	}
	return notifyclient.SendOutcome{Success: true}, nil
}

func (s *Service) Subscriber(ctx context.Context, account string) (*model.Subscriber, error) {
	if err := s.enter(ctx, OpSubscriber); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[account]; !ok {
		return nil, nil
	}
	return &model.Subscriber{Account: account}, nil
}

// Deliver appends n to the account's inbox when the account is subscribed and
// the notification's scope is enabled.
func (s *Service) Deliver(account string, n model.Notification) (model.NotificationMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scopes, ok := s.subs[account]
	if !ok {
		return model.NotificationMessage{}, false
	}
	if sc, known := scopes[n.Type]; !known || !sc.Enabled {
		return model.NotificationMessage{}, false
	}

	s.nextID++
	msg := model.NotificationMessage{
		ID:     s.nextID,
		Title:  n.Title,
		Body:   n.Body,
		URL:    n.URL,
		Icon:   n.Icon,
		Type:   n.Type,
		SentAt: s.now().UnixMilli(),
	}
	s.inbox[account] = append(s.inbox[account], msg)
	return msg, true
}

// Seed places msgs in the account's inbox as-is.
func (s *Service) Seed(account string, msgs ...model.NotificationMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if m.ID > s.nextID {
			s.nextID = m.ID
		}
	}
	s.inbox[account] = append(s.inbox[account], msgs...)
}

func copyScopes(in map[string]model.Scope) map[string]model.Scope {
	out := make(map[string]model.Scope, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
