package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runningGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletcore",
		Name:      "service_running",
		Help:      "Whether a service instance is installed in the registry.",
	})

	viewWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletcore",
		Name:      "view_wait_seconds",
		Help:      "Time spent waiting for an access view.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"view"})

	viewRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletcore",
		Name:      "view_rejected_total",
		Help:      "Fail-fast write views rejected because another view was active.",
	})
)
