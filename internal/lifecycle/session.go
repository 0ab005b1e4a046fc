package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

type Deps struct {
	Client  notifyclient.Client
	Backend notifyclient.Backend
	Signer  Signer
	// Chain qualifies bare addresses. Empty means model.DefaultChain.
	Chain string
	// PageSize is the default inbox page size. Zero means DefaultPageSize.
	PageSize int
	// Closers are closed with the session, e.g. an updates watcher.
	Closers []io.Closer
}

func (d Deps) validate() error {
	var err error
	if d.Client == nil {
		err = multierr.Append(err, errors.New("notification client is required"))
	}
	if d.Backend == nil {
		err = multierr.Append(err, errors.New("backend is required"))
	}
	if d.Signer == nil {
		err = multierr.Append(err, errors.New("signer is required"))
	}
	return err
}

// Session owns the lifecycle components for one wallet connection.
type Session struct {
	registrar     *Registrar
	subscriptions *SubscriptionManager
	dispatcher    *Dispatcher
	preferences   *Preferences
	inbox         *Inbox
	pageSize      int
	log           *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	address string
	closers []io.Closer
}

func NewSession(deps Deps) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	reg := NewRegistrar(deps.Client, deps.Signer, deps.Chain)
	subs := NewSubscriptionManager(deps.Client, reg)
	ctx, cancel := context.WithCancel(context.Background())

	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Session{
		registrar:     reg,
		subscriptions: subs,
		dispatcher:    NewDispatcher(deps.Backend, reg, subs),
		preferences:   NewPreferences(deps.Client, reg, subs),
		inbox:         NewInbox(deps.Client, reg),
		pageSize:      pageSize,
		log:           logger.WithModule("session"),
		ctx:           ctx,
		cancel:        cancel,
		closers:       append([]io.Closer(nil), deps.Closers...),
	}, nil
}

// opContext ties ctx to the session so Close cancels in-flight work.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Connect registers address and loads its subscription state.
func (s *Session) Connect(ctx context.Context, address string) (Identity, error) {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return Identity{}, err
	}
	defer done()

	id, err := s.registrar.Register(ctx, address)
	if err != nil {
		return Identity{}, err
	}
	s.mu.Lock()
	s.address = address
	s.mu.Unlock()

	if err := Absorb(s.subscriptions.Refresh(ctx)); err != nil {
		return id, err
	}
	return id, nil
}

// Resume restores a previously registered identity without signing again.
func (s *Session) Resume(ctx context.Context, id Identity) error {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := s.registrar.Restore(id); err != nil {
		return err
	}
	s.mu.Lock()
	s.address = id.Account
	s.mu.Unlock()
	return Absorb(s.subscriptions.Refresh(ctx))
}

// Disconnect clears the identity and every open pager.
func (s *Session) Disconnect() {
	s.registrar.Reset()
	s.inbox.Reset()
	s.mu.Lock()
	s.address = ""
	s.mu.Unlock()
}

// Reinit re-registers the connected address and reloads its state.
func (s *Session) Reinit(ctx context.Context) (Identity, error) {
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()
	if address == "" {
		return Identity{}, fmt.Errorf("reinit: %w: no connected address", ErrPreconditionFailed)
	}
	if s.isClosed() {
		return Identity{}, ErrClosed
	}

	s.registrar.Reset()
	s.inbox.Reset()
	return s.Connect(ctx, address)
}

// Close cancels in-flight operations and closes the session's resources.
// Every later call returns ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	s.cancel()
	s.registrar.Reset()
	s.inbox.Reset()

	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (s *Session) Identity() Identity {
	return s.registrar.Identity()
}

func (s *Session) SubscriptionState() SubscriptionState {
	return s.subscriptions.State()
}

// Subscribe absorbs guard errors; see Absorb.
func (s *Session) Subscribe(ctx context.Context) error {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer done()
	return Absorb(s.subscriptions.Subscribe(ctx))
}

func (s *Session) Unsubscribe(ctx context.Context) error {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer done()
	return Absorb(s.subscriptions.Unsubscribe(ctx))
}

func (s *Session) Refresh(ctx context.Context) error {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer done()
	return s.subscriptions.Refresh(ctx)
}

func (s *Session) Send(ctx context.Context, req model.SendRequest) (SendResult, error) {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return SendResult{}, err
	}
	defer done()
	return s.dispatcher.Send(ctx, req)
}

func (s *Session) Scopes(ctx context.Context) (map[string]model.Scope, error) {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.preferences.Scopes(ctx)
}

func (s *Session) UpdateScopes(ctx context.Context, enabled []string) bool {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return false
	}
	defer done()
	return s.preferences.UpdateScopes(ctx, enabled)
}

// Pager opens an inbox listing. pageSize <= 0 uses the session page size.
// It returns nil after Close.
func (s *Session) Pager(pageSize int) *Pager {
	if s.isClosed() {
		return nil
	}
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	return s.inbox.Pager(pageSize)
}

func (s *Session) DeleteMessage(ctx context.Context, id int64) error {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer done()
	return s.inbox.Delete(ctx, id)
}

func (s *Session) MarkRead(ctx context.Context, ids []int64) error {
	ctx, done, err := s.opContext(ctx)
	if err != nil {
		return err
	}
	defer done()
	return s.inbox.MarkRead(ctx, ids)
}
