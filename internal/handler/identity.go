package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/logger"
	"gm-dapp/internal/metrics"
	"gm-dapp/internal/middleware"
	"gm-dapp/internal/model"
	"gm-dapp/internal/store"
	"gm-dapp/internal/validator"
)

type IdentityHandler struct {
	Store            *store.Store
	TokenConfig      auth.TokenConfig
	ChallengeTTL     time.Duration
	ChallengeLimiter *middleware.RateLimiter
	Now              func() time.Time
}

type challengeBody struct {
	Account string `json:"account" validate:"required,caip10"`
}

type registerBody struct {
	Account   string `json:"account" validate:"required,caip10"`
	PublicKey string `json:"publicKey" validate:"required,base64"`
	Signature string `json:"signature" validate:"required,base64"`
}

func (h *IdentityHandler) now() int64 {
	if h.Now != nil {
		return h.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

// Challenge issues the message a wallet must sign to register its identity key.
func (h *IdentityHandler) Challenge(c *gin.Context) {
	var body challengeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := validator.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.now()
	// Re-reading a pending challenge is not rate limited; only creation is.
	if _, ok := h.Store.PendingChallenge(body.Account, now); !ok {
		if h.ChallengeLimiter != nil && !h.ChallengeLimiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
	}

	ch := h.Store.IssueChallenge(body.Account, h.ChallengeTTL, now)
	c.JSON(http.StatusOK, gin.H{"challenge": ch.Message, "expiresAt": ch.ExpiresAt})
}

// Register verifies the signed challenge and returns the identity key and an
// access token for it.
func (h *IdentityHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := validator.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log := logger.WithModule("identity").With(zap.String("account", body.Account))
	now := h.now()

	ch, ok := h.Store.PendingChallenge(body.Account, now)
	if !ok {
		metrics.IdentityRegistrations.WithLabelValues("no_challenge").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No pending challenge"})
		return
	}
	if err := auth.VerifyAddress(body.PublicKey, model.AccountAddress(body.Account)); err != nil {
		metrics.IdentityRegistrations.WithLabelValues("address_mismatch").Inc()
		log.Info("identity key does not own account", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err := auth.VerifySignatureDetailed(body.PublicKey, ch.Message, body.Signature); err != nil {
		metrics.IdentityRegistrations.WithLabelValues("bad_signature").Inc()
		log.Info("identity signature rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if !h.Store.ConsumeChallenge(body.Account, ch.Message, now) {
		metrics.IdentityRegistrations.WithLabelValues("no_challenge").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No pending challenge"})
		return
	}

	rec, created := h.Store.GetOrCreateIdentity(body.Account, body.PublicKey, now)
	token, err := auth.CreateToken(rec.Account, rec.IdentityKey, h.TokenConfig)
	if err != nil {
		metrics.IdentityRegistrations.WithLabelValues("error").Inc()
		log.Error("token creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}

	metrics.IdentityRegistrations.WithLabelValues("success").Inc()
	log.Info("identity registered", zap.String("identity_key", rec.IdentityKey), zap.Bool("created", created))
	c.JSON(http.StatusOK, gin.H{
		"account":     rec.Account,
		"identityKey": rec.IdentityKey,
		"token":       token,
	})
}
