package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statusgarden"

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_published_total",
			Help:      "Total events accepted into the notification queue",
		},
		[]string{"kind"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_dropped_total",
			Help:      "Total events dropped because the queue was full",
		},
		[]string{"kind"},
	)

	eventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_sent_total",
			Help:      "Total delivery attempts by outcome",
		},
		[]string{"kind", "status"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver one event to the webhook",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

func recordEventPublished(kind string) {
	eventsPublished.WithLabelValues(kind).Inc()
}

func recordEventDropped(kind string) {
	eventsDropped.WithLabelValues(kind).Inc()
}

func recordEventSent(kind, status string) {
	eventsSent.WithLabelValues(kind, status).Inc()
}

func recordSendDuration(d time.Duration) {
	sendDuration.Observe(d.Seconds())
}
