package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gm-dapp/internal/hub"
	"gm-dapp/internal/logger"
	"gm-dapp/internal/model"
	"gm-dapp/internal/store"
)

type SubscriberHandler struct {
	Subscribers SubscriberStore
	Hub         *hub.Hub
}

type updateSubscriberBody struct {
	Account         string `json:"account"`
	HasBeenWelcomed *bool  `json:"hasBeenWelcomed"`
}

type subscribeBody struct {
	Account string `json:"account"`
}

// Get returns {subscriber} for a known account and {} otherwise.
func (h *SubscriberHandler) Get(c *gin.Context) {
	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, failure("Missing account"))
		return
	}

	sub, err := h.Subscribers.Get(c.Request.Context(), account)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		logger.WithModule("subscriber").Error("subscriber lookup failed", zap.String("account", account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failure("Internal server error"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriber": sub})
}

func (h *SubscriberHandler) Update(c *gin.Context) {
	var body updateSubscriberBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Account == "" {
		c.JSON(http.StatusBadRequest, failure("Missing account"))
		return
	}
	if body.HasBeenWelcomed == nil {
		c.JSON(http.StatusBadRequest, failure("Missing hasBeenWelcomed"))
		return
	}

	sub, err := h.Subscribers.SetWelcomed(c.Request.Context(), body.Account, *body.HasBeenWelcomed)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, failure("Subscriber not found"))
		return
	}
	if err != nil {
		logger.WithModule("subscriber").Error("subscriber update failed", zap.String("account", body.Account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failure("Internal server error"))
		return
	}

	h.publish(hub.Event{Event: model.EventUpdated, Account: sub.Account, Subscriber: &sub})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Subscribe records the account directly, without waiting for the webhook.
func (h *SubscriberHandler) Subscribe(c *gin.Context) {
	var body subscribeBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	ctx := c.Request.Context()
	created, err := h.Subscribers.Subscribe(ctx, body.Account)
	if err != nil {
		logger.WithModule("subscriber").Error("subscriber insert failed", zap.String("account", body.Account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, failure(err.Error()))
		return
	}
	if created {
		if sub, err := h.Subscribers.Get(ctx, body.Account); err == nil {
			h.publish(hub.Event{Event: model.EventSubscribed, Account: sub.Account, Subscriber: &sub})
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *SubscriberHandler) publish(ev hub.Event) {
	if h.Hub == nil {
		return
	}
	if err := h.Hub.Publish(ev); err != nil {
		logger.WithModule("subscriber").Warn("update broadcast failed", zap.Error(err))
	}
}
