package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gm-dapp/internal/hub"
	"gm-dapp/internal/logger"
	"gm-dapp/internal/metrics"
	"gm-dapp/internal/model"
	"gm-dapp/internal/validator"
)

// WebhookHandler reconciles the subscriber table with subscription events
// reported by the notification service.
type WebhookHandler struct {
	Subscribers SubscriberStore
	Hub         *hub.Hub
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	var ev model.WebhookEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	log := logger.WithModule("webhook")
	log.Info("webhook received",
		zap.String("id", ev.ID),
		zap.String("event", ev.Event),
		zap.String("account", ev.Account),
		zap.String("dapp_url", ev.DappURL),
	)

	if err := validator.Struct(ev); err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Event, "invalid").Inc()
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}

	ctx := c.Request.Context()
	var published hub.Event
	switch ev.Event {
	case model.EventSubscribed:
		if _, err := h.Subscribers.Subscribe(ctx, ev.Account); err != nil {
			metrics.WebhookEvents.WithLabelValues(ev.Event, "error").Inc()
			log.Error("subscriber insert failed", zap.String("account", ev.Account), zap.Error(err))
			c.JSON(http.StatusInternalServerError, failure(err.Error()))
			return
		}
		published = hub.Event{Event: ev.Event, Account: ev.Account}
		if sub, err := h.Subscribers.Get(ctx, ev.Account); err == nil {
			published.Subscriber = &sub
		}
	case model.EventUnsubscribed:
		if _, err := h.Subscribers.Unsubscribe(ctx, ev.Account); err != nil {
			metrics.WebhookEvents.WithLabelValues(ev.Event, "error").Inc()
			log.Error("subscriber delete failed", zap.String("account", ev.Account), zap.Error(err))
			c.JSON(http.StatusInternalServerError, failure(err.Error()))
			return
		}
		published = hub.Event{Event: ev.Event, Account: ev.Account}
	default:
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		c.JSON(http.StatusBadRequest, failure(fmt.Sprintf("Unknown event %s. Expected \"subscribed\" or \"unsubscribed\".", ev.Event)))
		return
	}

	metrics.WebhookEvents.WithLabelValues(ev.Event, "ok").Inc()
	if h.Hub != nil {
		if err := h.Hub.Publish(published); err != nil {
			log.Warn("update broadcast failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
