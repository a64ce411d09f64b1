// Package metrics registers the prometheus collectors of the booking core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "hold_requests_total",
		Help:      "Seat hold attempts by outcome.",
	}, []string{"outcome"})

	SeatsReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "seats_released_total",
		Help:      "Reservations removed, by cause.",
	}, []string{"cause"})

	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "orders_created_total",
		Help:      "Orders created in PENDING.",
	})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "order_transitions_total",
		Help:      "Order status changes by target status and cause.",
	}, []string{"status", "cause"})

	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "gateway_callbacks_total",
		Help:      "Payment gateway callbacks by outcome.",
	}, []string{"outcome"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "booking",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of one expiry sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "events_published_total",
		Help:      "Booking events handed to the broker, by type and result.",
	}, []string{"type", "result"})
)
