package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var derivationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statusgarden",
		Subsystem: "status",
		Name:      "derivations_total",
		Help:      "Number of status derivations by derived status",
	},
	[]string{"status"},
)

func recordDerivation(status string) {
	derivationsTotal.WithLabelValues(status).Inc()
}
