package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu       sync.Mutex
	started  chan struct{}
	stopped  bool
	startErr error
	slowStop bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{started: make(chan struct{})}
}

func (s *fakeServer) Start(ctx context.Context) error {
	close(s.started)
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeServer) Stop(ctx context.Context) error {
	if s.slowStop {
		<-ctx.Done()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeServer) Name() string { return "fake" }
func (s *fakeServer) Addr() string { return "127.0.0.1:0" }

func (s *fakeServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func TestNew_RequiresLogger(t *testing.T) {
	assert.Panics(t, func() { New() })
}

func TestApplication_RunAndStop(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) CleanupFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	a := New(
		Logger(logger.Nop()),
		Name("orders-api"),
		GracefulTimeout(time.Second),
		RegisterCleanup("db", record("db"), 10),
	)
	a.AddCleanup("tracing-shutdown-hook", record("tracing-shutdown-hook"), 100)
	a.AddCleanup("cache", func(context.Context) error { return errors.New("boom") }, 1)

	srv := newFakeServer()
	a.Use(srv)

	assert.Equal(t, []string{"cache", "db", "tracing-shutdown-hook"}, a.Cleanups())

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	<-srv.started
	assert.ErrorIs(t, a.Run(), ErrRunning)
	a.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("应用未停止")
	}

	assert.True(t, srv.isStopped())
	assert.Equal(t, []string{"db", "tracing-shutdown-hook"}, order)
	assert.Equal(t, "orders-api", a.Name())
}

func TestApplication_CleanupAfterSlowServerStop(t *testing.T) {
	cleanupErr := make(chan error, 1)
	a := New(
		Logger(logger.Nop()),
		GracefulTimeout(100*time.Millisecond),
		RegisterCleanup("tracing-shutdown-hook", func(ctx context.Context) error {
			cleanupErr <- ctx.Err()
			return nil
		}, 100),
	)

	srv := newFakeServer()
	srv.slowStop = true
	a.Use(srv)

	go func() {
		<-srv.started
		a.Stop()
	}()
	require.NoError(t, a.Run())

	// 服务器耗尽关闭时限后，清理任务仍获得新的时限
	assert.NoError(t, <-cleanupErr)
}

func TestApplication_ServerStartFailure(t *testing.T) {
	var cleaned bool
	a := New(Logger(logger.Nop()), RegisterCleanup("c", func(context.Context) error {
		cleaned = true
		return nil
	}, 0))

	srv := newFakeServer()
	srv.startErr = errors.New("address in use")
	a.Use(srv)

	err := a.Run()
	assert.EqualError(t, err, "address in use")
	assert.True(t, cleaned)
}

func TestApplication_BeforeStartFailure(t *testing.T) {
	hookErr := errors.New("not ready")
	var afterStop bool
	a := New(
		Logger(logger.Nop()),
		BeforeStart(func(context.Context) error { return hookErr }),
		AfterStop(func(context.Context) error { afterStop = true; return nil }),
	)

	assert.ErrorIs(t, a.Run(), hookErr)
	assert.False(t, afterStop)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestApplication_RegisterCloser(t *testing.T) {
	var closed bool
	a := New(
		Logger(logger.Nop()),
		RegisterCloser("file", closerFunc(func() error { closed = true; return nil }), 0),
	)
	a.Stop()

	require.NoError(t, a.Run())
	assert.True(t, closed)
}
