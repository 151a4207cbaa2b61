// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/reelflow/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

func newTestManager(t *testing.T, addr string) Manager {
	t.Helper()
	mgr, err := NewManager(ServerConfig{APIAddr: addr, ShutdownTimeout: 2 * time.Second}, Deps{
		Logger: log.WithComponent("test"),
		APIHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	})
	require.NoError(t, err)
	return mgr
}

func TestNewManager_MissingAPIHandler(t *testing.T) {
	_, err := NewManager(ServerConfig{}, Deps{Logger: log.WithComponent("test")})
	assert.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestShutdown_NotStarted(t *testing.T) {
	mgr := newTestManager(t, "127.0.0.1:0")
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestStart_ServesUntilCancelled(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr := newTestManager(t, addr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	require.NoError(t, waitForListen(addr, 2*time.Second))
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return")
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestShutdown_HooksRunLIFOAndJoinErrors(t *testing.T) {
	mgr := newTestManager(t, reserveListenAddr(t))

	var (
		mu    sync.Mutex
		order []string
	)
	hook := func(name string, err error) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return err
		}
	}
	boom := errors.New("boom")
	mgr.RegisterShutdownHook("first", hook("first", nil))
	mgr.RegisterShutdownHook("second", hook("second", boom))
	mgr.RegisterShutdownHook("third", hook("third", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, mgr.Start(ctx))

	err := mgr.Shutdown(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// Second call is a no-op.
	assert.NoError(t, mgr.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestApp_HooksRunAfterTasksStop(t *testing.T) {
	mgr := newTestManager(t, reserveListenAddr(t))

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	mgr.RegisterShutdownHook("flush", func(context.Context) error {
		record("flush")
		return nil
	})

	task := Task{Name: "loop", Run: func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		record("loop stopped")
		return ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	app := NewApp(log.WithComponent("test"), mgr, nil, task)
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"loop stopped", "flush"}, events)
}

func TestApp_TaskFailureStopsDaemon(t *testing.T) {
	mgr := newTestManager(t, reserveListenAddr(t))
	boom := errors.New("boom")

	var otherStopped bool
	app := NewApp(log.WithComponent("test"), mgr, nil,
		Task{Name: "bad", Run: func(context.Context) error { return boom }},
		Task{Name: "good", Run: func(ctx context.Context) error {
			<-ctx.Done()
			otherStopped = true
			return nil
		}},
	)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
		assert.True(t, otherStopped)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestApp_MissingManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
