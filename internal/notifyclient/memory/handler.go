package memory

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gm-dapp/internal/auth"
	"gm-dapp/internal/model"
	"gm-dapp/internal/notifyclient"
)

// TokenVerifier resolves a bearer token to the account and identity key it
// was issued for.
type TokenVerifier func(token string) (account, identityKey string, err error)

// JWTVerifier accepts identity tokens issued by gm-server.
func JWTVerifier(cfg auth.TokenConfig) TokenVerifier {
	return func(token string) (string, string, error) {
		claims, err := auth.VerifyToken(token, cfg)
		if err != nil {
			return "", "", err
		}
		return claims.Account, claims.IdentityKey, nil
	}
}

// Error codes carried in the "error" field of failed responses.
const (
	CodeNotRegistered   = "not_registered"
	CodeNoSubscription  = "no_subscription"
	CodeUnknownScope    = "unknown_scope"
	CodeMessageNotFound = "message_not_found"
	CodeInvalidRequest  = "invalid_request"
	CodeForbidden       = "forbidden"
	CodeInternal        = "internal"
)

type scopesBody struct {
	Enabled []string `json:"enabled"`
}

type readBody struct {
	IDs []int64 `json:"ids"`
}

type subscribeBody struct {
	Account string `json:"account"`
}

// SubscriptionResponse is the wire form of a subscription.
type SubscriptionResponse struct {
	Account    string                 `json:"account"`
	Subscribed bool                   `json:"subscribed"`
	Scopes     map[string]model.Scope `json:"scopes"`
}

type MessagesResponse struct {
	Messages []model.NotificationMessage `json:"messages"`
	HasMore  bool                        `json:"hasMore"`
}

// Handler exposes the service over the REST API the remote adapter speaks.
// Routes live under /:project. When verify is set every request needs a
// bearer token issued for the path account.
func (s *Service) Handler(verify TokenVerifier) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	g := r.Group("/:project")
	g.Use(s.authenticate(verify))
	{
		g.POST("/subscriptions", s.handleSubscribe)
		g.GET("/subscriptions/:account", s.handleSubscription)
		g.DELETE("/subscriptions/:account", s.handleUnsubscribe)
		g.PUT("/subscriptions/:account/scopes", s.handleScopes)
		g.GET("/messages/:account", s.handleMessages)
		g.DELETE("/messages/:account/:id", s.handleDelete)
		g.POST("/messages/:account/read", s.handleRead)
	}
	return r
}

func (s *Service) authenticate(verify TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verify == nil {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			abort(c, http.StatusUnauthorized, CodeNotRegistered, "missing token")
			return
		}
		account, identityKey, err := verify(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, CodeNotRegistered, err.Error())
			return
		}
		if p := c.Param("account"); p != "" && p != account {
			abort(c, http.StatusForbidden, CodeForbidden, "token does not match account")
			return
		}
		s.adopt(account, identityKey)
		c.Set("account", account)
		c.Next()
	}
}

func (s *Service) handleSubscribe(c *gin.Context) {
	var body subscribeBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Account == "" {
		abort(c, http.StatusBadRequest, CodeInvalidRequest, "missing account")
		return
	}
	if account, ok := c.Get("account"); ok && account != body.Account {
		abort(c, http.StatusForbidden, CodeForbidden, "token does not match account")
		return
	}
	sub, err := s.Subscribe(c.Request.Context(), body.Account)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(sub))
}

func (s *Service) handleSubscription(c *gin.Context) {
	sub, err := s.Subscription(c.Request.Context(), c.Param("account"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !sub.Subscribed {
		abort(c, http.StatusNotFound, CodeNoSubscription, "no subscription")
		return
	}
	c.JSON(http.StatusOK, toResponse(sub))
}

func (s *Service) handleUnsubscribe(c *gin.Context) {
	if err := s.Unsubscribe(c.Request.Context(), c.Param("account")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleScopes(c *gin.Context) {
	var body scopesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidRequest, "invalid body")
		return
	}
	sub, err := s.UpdateScopes(c.Request.Context(), c.Param("account"), body.Enabled)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(sub))
}

func (s *Service) handleMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidRequest, "invalid limit")
		return
	}
	before, err := queryInt(c, "before")
	if err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidRequest, "invalid before")
		return
	}
	page, err := s.Messages(c.Request.Context(), c.Param("account"), int(limit), before)
	if err != nil {
		writeError(c, err)
		return
	}
	if page.Messages == nil {
		page.Messages = []model.NotificationMessage{}
	}
	c.JSON(http.StatusOK, MessagesResponse{Messages: page.Messages, HasMore: page.HasMore})
}

func (s *Service) handleDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidRequest, "invalid id")
		return
	}
	if err := s.DeleteMessage(c.Request.Context(), c.Param("account"), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleRead(c *gin.Context) {
	var body readBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, CodeInvalidRequest, "invalid body")
		return
	}
	if err := s.MarkRead(c.Request.Context(), c.Param("account"), body.IDs); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func toResponse(sub notifyclient.Subscription) SubscriptionResponse {
	return SubscriptionResponse{Account: sub.Account, Subscribed: sub.Subscribed, Scopes: sub.Scopes}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notifyclient.ErrNotRegistered):
		abort(c, http.StatusForbidden, CodeNotRegistered, err.Error())
	case errors.Is(err, notifyclient.ErrNoSubscription):
		abort(c, http.StatusNotFound, CodeNoSubscription, err.Error())
	case errors.Is(err, notifyclient.ErrMessageNotFound):
		abort(c, http.StatusNotFound, CodeMessageNotFound, err.Error())
	case errors.Is(err, notifyclient.ErrUnknownScope):
		abort(c, http.StatusBadRequest, CodeUnknownScope, err.Error())
	default:
		abort(c, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
