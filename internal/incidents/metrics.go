package incidents

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statusgarden"

var (
	incidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Total incidents created by severity",
		},
		[]string{"severity"},
	)

	resolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "resolution_duration_seconds",
			Help:      "Time from incident creation to resolution",
			Buckets:   prometheus.ExponentialBuckets(60, 4, 10),
		},
	)
)

func recordIncidentCreated(severity string) {
	incidentsCreated.WithLabelValues(severity).Inc()
}

func recordResolutionDuration(d time.Duration) {
	resolutionDuration.Observe(d.Seconds())
}
