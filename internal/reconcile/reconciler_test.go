// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/reelflow/internal/device"
	"github.com/ManuGH/reelflow/internal/persistence/kv"
	"github.com/ManuGH/reelflow/internal/remote"
	"github.com/ManuGH/reelflow/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func item(id string, start, end int) schedule.Item {
	return schedule.Item{
		ID:     id,
		Window: schedule.Window{Start: t0.Add(time.Duration(start) * time.Second), End: t0.Add(time.Duration(end) * time.Second)},
		Resources: []schedule.Resource{
			{ID: id + "-r0", Kind: schedule.KindImage, RemoteURI: "https://cdn/" + id},
		},
	}
}

type fakeSource struct {
	mu    sync.Mutex
	sched remote.Schedule
	err   error
	calls int
}

func (f *fakeSource) FetchSchedule(ctx context.Context, deviceID string) (remote.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sched, f.err
}

func (f *fakeSource) set(s remote.Schedule, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sched, f.err = s, err
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return true
}

func (d *recordingDispatcher) take() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.ids
	d.ids = nil
	return out
}

func setup(t *testing.T) (*Reconciler, *schedule.Store, *fakeSource, *recordingDispatcher) {
	t.Helper()
	store, err := schedule.Open(context.Background(), kv.NewMemory())
	require.NoError(t, err)
	src := &fakeSource{}
	disp := &recordingDispatcher{}
	r := New(src, store, disp, Config{DeviceID: "dev", Now: func() time.Time { return t0 }})
	return r, store, src, disp
}

func TestTick_AdmitsAndDispatchesNewItems(t *testing.T) {
	r, store, src, disp := setup(t)
	src.set(remote.Schedule{Items: []schedule.Item{item("a", 0, 100), item("b", 100, 200)}}, nil)

	res, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Admitted: 2}, res)
	assert.Equal(t, []string{"a", "b"}, disp.take())

	for _, id := range []string{"a", "b"} {
		it, ok := store.Get(id)
		require.True(t, ok)
		assert.Equal(t, schedule.StatusPending, it.Status)
	}
}

func TestTick_ExistingReadyItemUntouched(t *testing.T) {
	r, store, src, disp := setup(t)
	store.UpsertMany([]schedule.Item{item("a", 0, 100)})
	require.NoError(t, store.MarkReady("a", "/media/a", map[string]string{"a-r0": "/media/a/a-r0.jpg"}))

	remoteCopy := item("a", 0, 100)
	remoteCopy.Resources[0].RemoteURI = "https://cdn/changed"
	src.set(remote.Schedule{Items: []schedule.Item{remoteCopy}}, nil)

	res, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Admitted)
	assert.Empty(t, disp.take())

	it, _ := store.Get("a")
	assert.Equal(t, schedule.StatusReady, it.Status)
	assert.Equal(t, "/media/a", it.LocalRoot)
	assert.Equal(t, "https://cdn/a", it.Resources[0].RemoteURI)
}

func TestTick_RetriesStoredPendingItems(t *testing.T) {
	r, store, src, disp := setup(t)
	store.UpsertMany([]schedule.Item{item("old", 0, 100), item("ended", -100, -10)})
	src.set(remote.Schedule{Items: []schedule.Item{item("new", 100, 200)}}, nil)

	res, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Admitted)
	assert.Equal(t, 1, res.Retried)
	// New items first, ended windows are not retried.
	assert.Equal(t, []string{"new", "old"}, disp.take())
}

func TestTick_EndedRecordsNotAdmitted(t *testing.T) {
	r, store, src, disp := setup(t)
	src.set(remote.Schedule{Items: []schedule.Item{item("gone", -100, -10), item("live", 0, 100)}}, nil)

	for range 3 {
		res, err := r.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Ended)
		assert.Empty(t, store.RemoveExpired(t0), "nothing expired was ever stored")
	}
	_, ok := store.Get("gone")
	assert.False(t, ok)
	assert.Equal(t, []string{"live", "live", "live"}, disp.take(), "gone is never downloaded")
}

func TestTick_FetchFailureLeavesStoreUntouched(t *testing.T) {
	r, store, src, disp := setup(t)
	store.UpsertMany([]schedule.Item{item("a", 0, 100)})
	fetchErr := &remote.FetchError{Sentinel: remote.ErrBadStatus, Op: "tasks", Status: 503}
	src.set(remote.Schedule{}, fetchErr)

	_, err := r.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrBadStatus)
	assert.Empty(t, disp.take())
	assert.Equal(t, 1, store.Len())

	last, lastErr := r.LastSync()
	assert.True(t, last.IsZero())
	assert.Equal(t, fetchErr, lastErr)
}

func TestTick_CountsSkippedRecords(t *testing.T) {
	r, _, src, _ := setup(t)
	src.set(remote.Schedule{
		Items:    []schedule.Item{item("a", 0, 100)},
		Rejected: []error{fmt.Errorf("%w: empty id", schedule.ErrInvalidItem)},
	}, nil)

	res, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Admitted: 1, Skipped: 1}, res)

	last, lastErr := r.LastSync()
	assert.Equal(t, t0, last)
	assert.NoError(t, lastErr)
}

func TestRun_TriggerForcesTick(t *testing.T) {
	r, _, src, _ := setup(t)
	r.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)

	r.Trigger()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

type fakeSignaler struct {
	mu         sync.Mutex
	registered int
	beats      int
	status     device.AuthStatus
	err        error
}

func (f *fakeSignaler) Register(ctx context.Context, id string) (device.AuthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered++
	return f.status, f.err
}

func (f *fakeSignaler) Heartbeat(ctx context.Context, id string) (device.AuthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return f.status, f.err
}

func TestHeartbeat_AppliesAuthStatus(t *testing.T) {
	ident, err := device.Load(t.TempDir(), "dev")
	require.NoError(t, err)
	sig := &fakeSignaler{status: device.AuthAuthorized}
	h := NewHeartbeat(sig, ident, time.Second)

	require.NoError(t, h.Register(context.Background()))
	require.NoError(t, h.Beat(context.Background()))
	assert.Equal(t, device.AuthAuthorized, ident.AuthStatus())

	sig.status = ""
	require.NoError(t, h.Beat(context.Background()))
	assert.Equal(t, device.AuthAuthorized, ident.AuthStatus(), "empty status keeps the last one")

	sig.err = errors.New("offline")
	assert.Error(t, h.Beat(context.Background()))
	assert.Equal(t, 1, sig.registered)
	assert.Equal(t, 3, sig.beats)
}

func TestHeartbeat_RunRegistersFirst(t *testing.T) {
	ident, err := device.Load(t.TempDir(), "dev")
	require.NoError(t, err)
	sig := &fakeSignaler{err: errors.New("offline")}
	h := NewHeartbeat(sig, ident, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		sig.mu.Lock()
		defer sig.mu.Unlock()
		return sig.registered == 1 && sig.beats >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
