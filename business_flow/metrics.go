package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Instance selections partitioned by outcome (claimed, quota_exceeded,
	// none_available, error)
	instanceSelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simurgh",
			Name:      "instance_selections_total",
			Help:      "Total instance selection attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Dispatch jobs enqueued partitioned by result (accepted, failed)
	dispatchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simurgh",
			Name:      "dispatch_jobs_total",
			Help:      "Total dispatch jobs handed to the broker by result",
		},
		[]string{"result"},
	)

	// Rate-limit cooldowns applied to instances
	rateLimitCooldownsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simurgh",
			Name:      "rate_limit_cooldowns_total",
			Help:      "Total rate-limit cooldowns applied to instances",
		},
	)

	// Daily reset sweeps partitioned by result (done, skipped, error)
	resetSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simurgh",
			Name:      "reset_sweeps_total",
			Help:      "Total daily reset sweep attempts by result",
		},
		[]string{"result"},
	)
)
