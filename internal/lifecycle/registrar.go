package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

// Signer is the wallet capability the registrar needs. Any error returned by
// Sign is treated as the user declining.
type Signer interface {
	PublicKey() string
	Sign(ctx context.Context, message string) (string, error)
}

type Status int

const (
	StatusUnregistered Status = iota
	StatusRegistering
	StatusRegistered
)

func (s Status) String() string {
	switch s {
	case StatusRegistering:
		return "registering"
	case StatusRegistered:
		return "registered"
	default:
		return "unregistered"
	}
}

type Identity struct {
	Account     string
	Status      Status
	IdentityKey string
	Token       string
}

func (i Identity) Registered() bool {
	return i.Status == StatusRegistered
}

type pendingChallenge struct {
	account   string
	challenge notifyclient.Challenge
}

type Registrar struct {
	client notifyclient.Client
	signer Signer
	chain  string
	now    func() time.Time
	log    *zap.Logger

	mu        sync.Mutex
	identity  Identity
	gen       uint64
	challenge *pendingChallenge
	inflight  bool
}

func NewRegistrar(client notifyclient.Client, signer Signer, chain string) *Registrar {
	if chain == "" {
		chain = model.DefaultChain
	}
	return &Registrar{
		client: client,
		signer: signer,
		chain:  chain,
		now:    time.Now,
		log:    logger.WithModule("registrar"),
	}
}

// Identity returns the current identity.
func (r *Registrar) Identity() Identity {
	id, _ := r.snapshot()
	return id
}

// snapshot returns the identity with its generation. The generation changes
// whenever the identity is replaced or cleared.
func (r *Registrar) snapshot() (Identity, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity, r.gen
}

// Register binds address to a messaging identity. Registering an account that
// is already registered returns the cached identity without a network call.
func (r *Registrar) Register(ctx context.Context, address string) (Identity, error) {
	account, err := model.QualifyAccount(r.chain, address)
	if err != nil {
		return Identity{}, fmt.Errorf("register: %w: %v", ErrInvalidRequest, err)
	}

	r.mu.Lock()
	if r.identity.Registered() && r.identity.Account == account {
		id := r.identity
		r.mu.Unlock()
		return id, nil
	}
	if r.inflight {
		r.mu.Unlock()
		return Identity{}, fmt.Errorf("register: %w", ErrAlreadyInProgress)
	}
	r.inflight = true
	var challenge *notifyclient.Challenge
	if pc := r.challenge; pc != nil && pc.account == account && pc.challenge.ExpiresAt.After(r.now()) {
		c := pc.challenge
		challenge = &c
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inflight = false
		r.mu.Unlock()
	}()

	if challenge == nil {
		c, err := r.client.RequestChallenge(ctx, account)
		if err != nil {
			return Identity{}, classify("request challenge", err)
		}
		challenge = &c
		r.mu.Lock()
		r.challenge = &pendingChallenge{account: account, challenge: c}
		r.mu.Unlock()
	}

	r.setIdentity(Identity{Account: account, Status: StatusRegistering})

	signature, err := r.signer.Sign(ctx, challenge.Message)
	if err != nil {
		r.setIdentity(Identity{})
		if ctx.Err() != nil {
			return Identity{}, fmt.Errorf("sign challenge: %w", ctx.Err())
		}
		r.log.Info("signature declined", zap.String("account", account), zap.Error(err))
		return Identity{}, fmt.Errorf("sign challenge: %w: %v", ErrUserRejected, err)
	}

	submitted, err := r.client.SubmitIdentity(ctx, account, r.signer.PublicKey(), signature)
	if err != nil {
		r.mu.Lock()
		if errors.Is(err, notifyclient.ErrChallengeExpired) {
			r.challenge = nil
		}
		r.mu.Unlock()
		r.setIdentity(Identity{})
		return Identity{}, classify("submit identity", err)
	}
	if err := ctx.Err(); err != nil {
		r.setIdentity(Identity{})
		return Identity{}, fmt.Errorf("submit identity: %w", err)
	}

	id := Identity{
		Account:     account,
		Status:      StatusRegistered,
		IdentityKey: submitted.IdentityKey,
		Token:       submitted.Token,
	}
	r.mu.Lock()
	r.challenge = nil
	r.mu.Unlock()
	r.setIdentity(id)
	r.log.Info("identity registered", zap.String("account", account), zap.String("identity_key", id.IdentityKey))
	return id, nil
}

// Restore installs an identity registered in an earlier session.
func (r *Registrar) Restore(id Identity) error {
	if id.Account == "" || id.IdentityKey == "" {
		return fmt.Errorf("restore: %w: incomplete identity", ErrInvalidRequest)
	}
	id.Status = StatusRegistered
	r.setIdentity(id)
	return nil
}

// Reset clears the identity, as on wallet disconnect.
func (r *Registrar) Reset() {
	r.mu.Lock()
	r.challenge = nil
	r.mu.Unlock()
	r.setIdentity(Identity{})
}

func (r *Registrar) setIdentity(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id.Account != r.identity.Account || id.IdentityKey != r.identity.IdentityKey {
		r.gen++
	}
	r.identity = id
}
