// Package servertest starts an in-process gm-server for client tests.
package servertest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/hub"
	"gm-dapp/internal/model"
	"gm-dapp/internal/relay"
	"gm-dapp/internal/server"
	"gm-dapp/internal/store"
	"gm-dapp/internal/store/testutil"
)

// Relay records notify calls and delivers to every target unless told otherwise.
type Relay struct {
	mu       sync.Mutex
	requests []model.SendRequest
	result   *relay.Result
	err      error
}

func (r *Relay) Notify(_ context.Context, req model.SendRequest) (relay.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return relay.Result{}, r.err
	}
	if r.result != nil {
		return *r.result, nil
	}
	return relay.Result{Sent: req.Accounts, StatusCode: http.StatusOK}, nil
}

// Requests returns a copy of every notify call seen so far.
func (r *Relay) Requests() []model.SendRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SendRequest(nil), r.requests...)
}

// SetResult overrides the relay reply; nil restores delivery to every target.
func (r *Relay) SetResult(res *relay.Result) {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
}

func (r *Relay) SetError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

type Server struct {
	*httptest.Server
	Relay       *Relay
	Subscribers *store.Subscribers
	Store       *store.Store
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
}

// New starts a server backed by a private in-memory database. It is closed
// via t.Cleanup.
func New(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		Relay:       &Relay{},
		Subscribers: store.NewSubscribers(testutil.MustOpenTestDB(t)),
		Store:       store.New(),
		Hub:         hub.New(),
		TokenConfig: auth.TokenConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "servertest"},
	}
	router := server.NewRouter(server.Deps{
		Store:             s.Store,
		Subscribers:       s.Subscribers,
		Relay:             s.Relay,
		Hub:               s.Hub,
		TokenConfig:       s.TokenConfig,
		RequireSubscriber: true,
	})
	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Server.Close)
	return s
}
