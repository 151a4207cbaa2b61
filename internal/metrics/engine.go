// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the engine metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_reconcile_runs_total",
		Help: "Reconciliation ticks by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelflow_reconcile_duration_seconds",
		Help:    "Duration of a reconciliation tick including the remote fetch",
		Buckets: prometheus.DefBuckets,
	})

	reconcileAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelflow_reconcile_items_admitted_total",
		Help: "Scheduled items admitted into the store",
	})

	reconcileSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelflow_reconcile_records_skipped_total",
		Help: "Remote records skipped because they failed validation",
	})

	scheduleItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reelflow_schedule_items",
		Help: "Scheduled items in the store by status",
	}, []string{"status"})

	storeFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelflow_store_flush_errors_total",
		Help: "Failed write-behind flushes of the schedule store",
	})

	downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_downloads_total",
		Help: "Item materializations by outcome",
	}, []string{"outcome"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelflow_download_duration_seconds",
		Help:    "Time to materialize every resource of an item",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	downloadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_download_bytes_total",
		Help: "Bytes written to the media root by resource kind",
	}, []string{"kind"})

	downloadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelflow_downloads_in_flight",
		Help: "Item materializations currently running",
	})

	handoffs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelflow_playback_handoffs_total",
		Help: "Layer hand-offs between scheduled items",
	})

	resourceAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_playback_resource_advances_total",
		Help: "Resource rotations within the current item by trigger",
	}, []string{"trigger"}) // trigger=timer|ended

	activeLayer = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reelflow_playback_active_layer",
		Help: "Currently active render layer (1 for the active layer)",
	}, []string{"layer"})

	purges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_purges_total",
		Help: "Item directory removals by source and outcome",
	}, []string{"source", "outcome"}) // source=handoff|gc|orphan

	gcRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelflow_gc_items_removed_total",
		Help: "Expired items removed from the store",
	})

	heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelflow_heartbeats_total",
		Help: "Liveness signals sent to the remote authority by outcome",
	}, []string{"outcome"})
)

// RecordReconcile records one reconciliation tick.
func RecordReconcile(outcome string, d time.Duration) {
	reconcileRuns.WithLabelValues(outcome).Inc()
	reconcileDuration.Observe(d.Seconds())
}

// AddReconcileAdmitted counts newly admitted items.
func AddReconcileAdmitted(n int) {
	if n > 0 {
		reconcileAdmitted.Add(float64(n))
	}
}

// AddReconcileSkipped counts remote records rejected by validation.
func AddReconcileSkipped(n int) {
	if n > 0 {
		reconcileSkipped.Add(float64(n))
	}
}

// SetScheduleItems publishes the per-status item counts.
func SetScheduleItems(counts map[string]int) {
	for status, n := range counts {
		scheduleItems.WithLabelValues(status).Set(float64(n))
	}
}

// RecordStoreFlushError counts a failed background flush.
func RecordStoreFlushError() {
	storeFlushErrors.Inc()
}

// RecordDownload records one materialization attempt.
func RecordDownload(outcome string, d time.Duration) {
	downloads.WithLabelValues(outcome).Inc()
	downloadDuration.Observe(d.Seconds())
}

// AddDownloadBytes counts bytes written for a resource kind.
func AddDownloadBytes(kind string, n int64) {
	if n > 0 {
		downloadBytes.WithLabelValues(kind).Add(float64(n))
	}
}

// SetDownloadsInFlight publishes the number of running materializations.
func SetDownloadsInFlight(n int) {
	downloadsInFlight.Set(float64(n))
}

// RecordHandoff counts a layer hand-off and publishes the new active layer.
func RecordHandoff(layer string) {
	handoffs.Inc()
	for _, l := range []string{"A", "B"} {
		v := 0.0
		if l == layer {
			v = 1
		}
		activeLayer.WithLabelValues(l).Set(v)
	}
}

// RecordResourceAdvance counts a rotation step.
func RecordResourceAdvance(trigger string) {
	resourceAdvances.WithLabelValues(trigger).Inc()
}

// RecordPurge counts an item directory removal attempt.
func RecordPurge(source, outcome string) {
	purges.WithLabelValues(source, outcome).Inc()
}

// AddGCRemoved counts expired items removed from the store.
func AddGCRemoved(n int) {
	if n > 0 {
		gcRemoved.Add(float64(n))
	}
}

// RecordHeartbeat counts a liveness signal.
func RecordHeartbeat(outcome string) {
	heartbeats.WithLabelValues(outcome).Inc()
}
