// Package metrics defines the Prometheus instrumentation shared by the
// monitoring engine. Collectors are registered on the default registry and
// exposed by the HTTP server under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsAppended counts lines appended to the log store per category.
	RecordsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "logstore",
		Name:      "records_appended_total",
		Help:      "Lines appended to the log store.",
	}, []string{"category"})

	// SizeRotations counts size-threshold rotations per category.
	SizeRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "logstore",
		Name:      "size_rotations_total",
		Help:      "Log files rotated for exceeding the size threshold.",
	}, []string{"category"})

	// TimeoutMirrors counts ping timeout lines mirrored into the timeout log.
	TimeoutMirrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "logstore",
		Name:      "timeout_mirrors_total",
		Help:      "Timeout lines mirrored into the dedicated timeout log.",
	})

	// TopicEvictions counts records evicted from bounded topic buffers.
	TopicEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "topic",
		Name:      "evictions_total",
		Help:      "Oldest records evicted from full topic buffers.",
	}, []string{"topic"})

	// SubscriberDrops counts events dropped for slow live subscribers.
	SubscriberDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "topic",
		Name:      "subscriber_drops_total",
		Help:      "Events dropped because a subscriber buffer was full.",
	}, []string{"topic"})

	// ProbeRestarts counts probe subprocess restarts per worker label.
	ProbeRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "probe",
		Name:      "restarts_total",
		Help:      "Probe subprocess restarts after exit or spawn failure.",
	}, []string{"label"})

	// ScanFailures counts failed neighbor-table scans.
	ScanFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "discovery",
		Name:      "scan_failures_total",
		Help:      "Neighbor-table scans that failed and were skipped.",
	})

	// HousekeepingPasses counts completed memory-reclamation passes.
	HousekeepingPasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netwatch",
		Subsystem: "sweeper",
		Name:      "passes_total",
		Help:      "Completed housekeeping passes.",
	})
)
