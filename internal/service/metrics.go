package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// authOutcomes counts authentication attempts by operation and result.
var authOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_outcomes_total",
		Help: "Authentication operations partitioned by outcome",
	},
	[]string{"op", "outcome"},
)

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	authOutcomes.WithLabelValues(op, outcome).Inc()
}
