package projectsystem

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transformsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projsync_transforms_total",
		Help: "Total transforms submitted to the workspace by result",
	}, []string{"result"})

	transformAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "projsync_transform_attempts_total",
		Help: "Total transform invocations, including retries after a concurrent commit",
	})

	referenceConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projsync_reference_conversions_total",
		Help: "Total committed reference conversions by direction",
	}, []string{"direction"})

	activeWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "projsync_active_watches",
		Help: "Number of OS-level watches held on reference files",
	})

	referenceRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "projsync_reference_refreshes_total",
		Help: "Total reference-changed notifications handled",
	})
)
