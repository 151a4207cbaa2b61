// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/reelflow/internal/device"
	"github.com/ManuGH/reelflow/internal/resilience"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/", Options{
		HTTPClient:       srv.Client(),
		RateLimit:        rate.Inf,
		BreakerThreshold: 2,
		BreakerReset:     time.Hour,
		Now:              func() time.Time { return fixedNow },
	})
	return c, srv
}

const tasksBody = `{"tasks":[
 {"id":"t1","startTime":1748779200000,"endTime":1748779260000,"status":"ready",
  "resources":[{"id":"v1","type":"video","url":"https://cdn/v1.mp4"},
               {"id":"i1","type":"image","url":"https://cdn/i1.jpg","duration":3000}]},
 {"id":42,"startTime":1748779260000,"endTime":1748779320000,
  "resources":[{"id":7,"type":"IMAGE","url":"https://cdn/7.jpg"}]},
 {"id":"bad-window","startTime":1748779320000,"endTime":1748779320000,
  "resources":[{"id":"x","type":"video","url":"https://cdn/x.mp4"}]},
 {"id":"no-res","startTime":1748779320000,"endTime":1748779380000,"resources":[]},
 {"id":"odd-kind","startTime":1748779320000,"endTime":1748779380000,
  "resources":[{"id":"a","type":"audio","url":"https://cdn/a.mp3"}]},
 {"id":"t1","startTime":1748779200000,"endTime":1748779260000,
  "resources":[{"id":"v1","type":"video","url":"https://cdn/v1.mp4"}]}
]}`

func TestFetchSchedule_DecodesAndSkipsInvalid(t *testing.T) {
	var mu sync.Mutex
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathTasks, r.URL.Path)
		mu.Lock()
		gotQuery = r.URL.Query().Get("deviceId")
		mu.Unlock()
		_, _ = io.WriteString(w, tasksBody)
	}))

	sched, err := c.FetchSchedule(context.Background(), "dev-1")
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, "dev-1", gotQuery)
	mu.Unlock()

	start := time.UnixMilli(1748779200000).UTC()
	want := []schedule.Item{
		{
			ID:     "t1",
			Window: schedule.Window{Start: start, End: start.Add(time.Minute)},
			Status: schedule.StatusPending,
			Resources: []schedule.Resource{
				{ID: "v1", Kind: schedule.KindVideo, RemoteURI: "https://cdn/v1.mp4"},
				{ID: "i1", Kind: schedule.KindImage, RemoteURI: "https://cdn/i1.jpg", DisplayDuration: 3 * time.Second},
			},
		},
		{
			ID:     "42",
			Window: schedule.Window{Start: start.Add(time.Minute), End: start.Add(2 * time.Minute)},
			Status: schedule.StatusPending,
			Resources: []schedule.Resource{
				{ID: "7", Kind: schedule.KindImage, RemoteURI: "https://cdn/7.jpg"},
			},
		},
	}
	if diff := cmp.Diff(want, sched.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, sched.Rejected, 4)
	for _, err := range sched.Rejected {
		assert.ErrorIs(t, err, schedule.ErrInvalidItem)
	}
}

func TestFetchSchedule_EmptyBodyIsEmptySchedule(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	sched, err := c.FetchSchedule(context.Background(), "dev")
	require.NoError(t, err)
	assert.Empty(t, sched.Items)
}

func TestFetchSchedule_Errors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		sentinel error
		status   int
	}{
		{
			name:     "server error",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			sentinel: ErrBadStatus,
			status:   http.StatusServiceUnavailable,
		},
		{
			name:     "not found",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			sentinel: ErrBadStatus,
			status:   http.StatusNotFound,
		},
		{
			name:     "malformed",
			handler:  func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, `{"tasks":[`) },
			sentinel: ErrBadResponse,
			status:   http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)

			_, err := c.FetchSchedule(context.Background(), "dev")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "tasks", fe.Op)
			assert.Equal(t, tt.status, fe.Status)
		})
	}
}

func TestFetchSchedule_Unreachable(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	srv.Close()

	_, err := c.FetchSchedule(context.Background(), "dev")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var code atomic.Int32
	code.Store(http.StatusNotFound)
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(code.Load()))
	}))

	for range 3 {
		_, err := c.FetchSchedule(context.Background(), "dev")
		require.ErrorIs(t, err, ErrBadStatus)
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())

	code.Store(http.StatusInternalServerError)
	for range 2 {
		_, _ = c.FetchSchedule(context.Background(), "dev")
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	before := hits.Load()
	_, err := c.FetchSchedule(context.Background(), "dev")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, hits.Load())
}

func TestRegisterAndHeartbeat(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var payloads []deviceRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body deviceRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		paths = append(paths, r.URL.Path)
		payloads = append(payloads, body)
		mu.Unlock()
		if r.URL.Path == pathHeartbeat {
			_, _ = io.WriteString(w, `{"authStatus":"authorized"}`)
		}
	}))

	st, err := c.Register(context.Background(), "dev-9")
	require.NoError(t, err)
	assert.Empty(t, st)

	st, err = c.Heartbeat(context.Background(), "dev-9")
	require.NoError(t, err)
	assert.Equal(t, device.AuthAuthorized, st)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{pathRegister, pathHeartbeat}, paths)
	for _, p := range payloads {
		assert.Equal(t, "dev-9", p.DeviceID)
		assert.Equal(t, fixedNow.UnixMilli(), p.Timestamp)
	}
}

func TestProbe(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathConfig, r.URL.Path)
		w.WriteHeader(int(status.Load()))
	}))

	require.NoError(t, c.Probe(context.Background()))

	status.Store(http.StatusBadGateway)
	err := c.Probe(context.Background())
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestSetBaseURL(t *testing.T) {
	var hitA, hitB atomic.Int32
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hitA.Add(1) }))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hitB.Add(1) }))
	defer b.Close()

	c := New(a.URL, Options{RateLimit: rate.Inf, HTTPClient: a.Client()})
	_, err := c.FetchSchedule(context.Background(), "dev")
	require.NoError(t, err)

	c.SetBaseURL(b.URL + "/")
	assert.Equal(t, b.URL, c.BaseURL())
	_, err = c.FetchSchedule(context.Background(), "dev")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hitA.Load())
	assert.Equal(t, int32(1), hitB.Load())
}
