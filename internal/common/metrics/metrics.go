package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpdatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_updates_processed_total",
			Help: "Total number of inbound updates by handler and outcome",
		},
		[]string{"handler", "status"},
	)

	UpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_update_duration_seconds",
			Help:    "Duration of update handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	UpdatesThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_updates_throttled_total",
			Help: "Total number of updates dropped by the per-sender rate limiter",
		},
	)

	FormsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_forms_submitted_total",
			Help: "Total number of completed intake forms",
		},
	)

	OffersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_offers_total",
			Help: "Total number of responder offers by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	EngagementsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_engagements_accepted_total",
			Help: "Total number of accepted offers",
		},
	)

	ReviewsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_reviews_total",
			Help: "Total number of recorded reviews by score",
		},
		[]string{"score"},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_delivery_failures_total",
			Help: "Total number of outbound messages the gateway failed to deliver",
		},
		[]string{"target"},
	)
)
