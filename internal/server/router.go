package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/handler"
	"gm-dapp/internal/hub"
	"gm-dapp/internal/middleware"
	"gm-dapp/internal/store"
)

// SubscriberBackend is the subscriber table plus a liveness probe for /health.
type SubscriberBackend interface {
	handler.SubscriberStore
	Ping(ctx context.Context) error
}

type Deps struct {
	Store        *store.Store
	Subscribers  SubscriberBackend
	Relay        handler.Notifier
	Hub          *hub.Hub
	TokenConfig  auth.TokenConfig
	ChallengeTTL time.Duration
	// ChallengeLimiter bounds challenge creation per client IP. Nil disables
	// the limit. The caller owns it and must Stop it.
	ChallengeLimiter  *middleware.RateLimiter
	RequireSubscriber bool
	// MetricsEndpoint mounts the Prometheus handler when non-empty.
	MetricsEndpoint string
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Hub == nil {
		deps.Hub = hub.New()
	}
	if deps.ChallengeTTL <= 0 {
		deps.ChallengeTTL = 5 * time.Minute
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Subscribers.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if deps.MetricsEndpoint != "" {
		r.GET(deps.MetricsEndpoint, gin.WrapH(promhttp.Handler()))
	}

	notifyHandler := &handler.NotifyHandler{Relay: deps.Relay, Subscribers: deps.Subscribers, RequireSubscriber: deps.RequireSubscriber}
	webhookHandler := &handler.WebhookHandler{Subscribers: deps.Subscribers, Hub: deps.Hub}
	subscriberHandler := &handler.SubscriberHandler{Subscribers: deps.Subscribers, Hub: deps.Hub}

	r.POST("/notify", notifyHandler.Notify)
	r.POST("/webhook", webhookHandler.Handle)
	r.GET("/subscriber", subscriberHandler.Get)
	r.POST("/update-subscriber", subscriberHandler.Update)
	r.POST("/subscribe", subscriberHandler.Subscribe)

	identityHandler := &handler.IdentityHandler{
		Store:            deps.Store,
		TokenConfig:      deps.TokenConfig,
		ChallengeTTL:     deps.ChallengeTTL,
		ChallengeLimiter: deps.ChallengeLimiter,
	}
	r.POST("/v1/identity/challenge", identityHandler.Challenge)
	r.POST("/v1/identity", identityHandler.Register)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	updatesHandler := &handler.UpdatesHandler{Hub: deps.Hub, Subscribers: deps.Subscribers}
	protected.GET("/updates", updatesHandler.Serve)

	return r
}
