package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pretty_like"

var (
	LocalCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "local_cache_hits_total",
		Help:      "Reads served from the local cache tier.",
	})
	LocalCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "local_cache_misses_total",
		Help:      "Reads that fell through to the backing store.",
	})
	LocalCachePromotions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "local_cache_promotions_total",
		Help:      "Hot values promoted into the local cache tier.",
	})

	// Toggles is labeled by strategy, action and outcome (accepted, conflict, error).
	Toggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "toggles_total",
		Help:      "Like/unlike toggles by outcome.",
	}, []string{"strategy", "action", "outcome"})

	FlushedSlices = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flushed_slices_total",
		Help:      "Time slices processed by the flush and compensation jobs.",
	}, []string{"result"})
	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "slice_flush_duration_seconds",
		Help:      "Time spent applying one slice.",
		Buckets:   prometheus.DefBuckets,
	})

	MergedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merged_batches_total",
		Help:      "Event batches applied by the stream consumer.",
	}, []string{"result"})
	DeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dead_lettered_total",
		Help:      "Messages routed to the dead-letter stream.",
	})

	ReconcileDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_drift_total",
		Help:      "Membership drift found by the audit job.",
	}, []string{"direction"})

	HotKeyTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hotkey_total",
		Help:      "Approximate number of increments seen by the hot key detector.",
	})
)
