package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotifyRequests counts /notify outcomes (sent|rejected|not_subscribed|error).
	NotifyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gm_notify_requests_total",
			Help: "Total number of notify requests by outcome",
		},
		[]string{"result"},
	)

	// WebhookEvents counts webhook deliveries by event and outcome.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gm_webhook_events_total",
			Help: "Total number of subscription webhook events",
		},
		[]string{"event", "result"},
	)

	// IdentityRegistrations counts identity registration attempts (success|failure).
	IdentityRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gm_identity_registrations_total",
			Help: "Total number of identity registration attempts",
		},
		[]string{"result"},
	)

	UpdateConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gm_update_connections",
			Help: "Number of open subscriber update streams",
		},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gm_subscribers",
			Help: "Number of rows in the subscriber table at the last maintenance run",
		},
	)

	ChallengesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gm_identity_challenges_purged_total",
			Help: "Expired registration challenges removed by maintenance",
		},
	)

	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gm_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
