// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/reelflow/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecordBreakerTransition_OneHot(t *testing.T) {
	metrics.RecordBreakerTransition("remote-test", "closed", "open")

	mf := gather(t, "reelflow_breaker_state")
	got := map[string]float64{}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "breaker") == "remote-test" {
			got[labelValue(m, "state")] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"closed": 0, "half-open": 0, "open": 1}, got)
}

func TestRecordHandoff_PublishesActiveLayer(t *testing.T) {
	metrics.RecordHandoff("B")

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "reelflow_playback_handoffs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.GreaterOrEqual(t, gather(t, "reelflow_playback_handoffs_total").GetMetric()[0].GetCounter().GetValue(), 1.0)

	mf := gather(t, "reelflow_playback_active_layer")
	for _, m := range mf.GetMetric() {
		want := 0.0
		if labelValue(m, "layer") == "B" {
			want = 1
		}
		assert.Equal(t, want, m.GetGauge().GetValue())
	}
}

func TestCountersAccumulate(t *testing.T) {
	families := func() map[string]*dto.MetricFamily {
		fs, err := prometheus.DefaultGatherer.Gather()
		require.NoError(t, err)
		out := map[string]*dto.MetricFamily{}
		for _, f := range fs {
			out[f.GetName()] = f
		}
		return out
	}

	metrics.RecordReconcile(metrics.OutcomeFailure, 20*time.Millisecond)
	metrics.RecordDownload(metrics.OutcomeSuccess, time.Second)
	metrics.AddDownloadBytes("video", 1024)
	metrics.AddDownloadBytes("video", 0)
	metrics.RecordPurge("gc", metrics.OutcomeSuccess)
	metrics.RecordHeartbeat(metrics.OutcomeFailure)
	metrics.SetScheduleItems(map[string]int{"ready": 3, "pending": 1})

	fs := families()
	for _, name := range []string{
		"reelflow_reconcile_runs_total",
		"reelflow_reconcile_duration_seconds",
		"reelflow_downloads_total",
		"reelflow_download_bytes_total",
		"reelflow_purges_total",
		"reelflow_heartbeats_total",
		"reelflow_schedule_items",
	} {
		assert.Contains(t, fs, name)
	}

	var bytes float64
	for _, m := range fs["reelflow_download_bytes_total"].GetMetric() {
		if labelValue(m, "kind") == "video" {
			bytes = m.GetCounter().GetValue()
		}
	}
	assert.GreaterOrEqual(t, bytes, 1024.0)

	var readyItems float64
	for _, m := range fs["reelflow_schedule_items"].GetMetric() {
		if labelValue(m, "status") == "ready" {
			readyItems = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 3.0, readyItems)
}
