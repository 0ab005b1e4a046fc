package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gm-dapp/internal/logger"
	"gm-dapp/internal/metrics"
	"gm-dapp/internal/model"
	"gm-dapp/internal/store"
	"gm-dapp/internal/validator"
)

// NotSubscribedMessage is returned when the target has no subscriber record.
const NotSubscribedMessage = "NotSubscribed"

type NotifyHandler struct {
	Relay       Notifier
	Subscribers SubscriberStore
	// RequireSubscriber skips the relay for targets without a subscriber row.
	RequireSubscriber bool
}

func (h *NotifyHandler) Notify(c *gin.Context) {
	var body model.SendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid request"))
		return
	}
	if err := validator.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}

	target := body.Accounts[0]
	log := logger.WithModule("notify").With(zap.String("account", target), zap.String("type", body.Notification.Type))

	if h.RequireSubscriber {
		_, err := h.Subscribers.Get(c.Request.Context(), target)
		if errors.Is(err, store.ErrNotFound) {
			metrics.NotifyRequests.WithLabelValues("not_subscribed").Inc()
			c.JSON(http.StatusOK, failure(NotSubscribedMessage))
			return
		}
		if err != nil {
			metrics.NotifyRequests.WithLabelValues("error").Inc()
			log.Error("subscriber lookup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, failure("Internal server error"))
			return
		}
	}

	res, err := h.Relay.Notify(c.Request.Context(), body)
	if err != nil {
		metrics.NotifyRequests.WithLabelValues("error").Inc()
		log.Warn("relay unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, failure(err.Error()))
		return
	}

	if res.StatusCode >= http.StatusBadRequest {
		metrics.NotifyRequests.WithLabelValues("rejected").Inc()
		log.Warn("relay rejected notification", zap.Int("status", res.StatusCode))
		c.JSON(res.StatusCode, failure(fmt.Sprintf("relay rejected notification (status %d)", res.StatusCode)))
		return
	}

	if !res.Delivered(target) {
		metrics.NotifyRequests.WithLabelValues("rejected").Inc()
		resp := gin.H{"success": false}
		if reason := res.Reason(target); reason != "" {
			resp["message"] = reason
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	metrics.NotifyRequests.WithLabelValues("sent").Inc()
	log.Debug("notification sent")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
