package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/Tsukikage7/tracing-bundle/tracing"
	"github.com/Tsukikage7/tracing-bundle/tracing/reporter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Panics(t *testing.T) {
	assert.Panics(t, func() { New(nil, WithLogger(logger.Nop())) })
	assert.Panics(t, func() { New(http.NotFoundHandler()) })
}

func TestServer_WithTracing(t *testing.T) {
	bundle := tracing.MustNew(&tracing.Config{
		ServiceName: "orders-api",
		LocalOnly:   true,
		TraceAll:    true,
	})
	require.NoError(t, bundle.Run(context.Background()))
	defer bundle.Close(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("order " + r.PathValue("id")))
	})

	srv := New(mux,
		WithLogger(logger.Nop()),
		WithTracing(bundle),
		WithMetricsEndpoint(),
	)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	assert.Equal(t, "order 1", rec.Body.String())

	spans := bundle.Reporter().(*reporter.InMemory).Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /orders/{id}", spans[0].Name)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jaeger_tracer_finished_spans_total 1")
	// 指标请求不产生 span
	assert.Len(t, bundle.Reporter().(*reporter.InMemory).Spans(), 1)
}

func TestServer_MetricsEndpointKeepsRequestPath(t *testing.T) {
	bundle := tracing.MustNew(&tracing.Config{
		ServiceName: "orders-api",
		LocalOnly:   true,
		TraceAll:    true,
	})
	require.NoError(t, bundle.Run(context.Background()))
	defer bundle.Close(context.Background())

	srv := New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), WithLogger(logger.Nop()), WithTracing(bundle), WithMetricsEndpoint())

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/payments/7", nil))

	spans := bundle.Reporter().(*reporter.InMemory).Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /orders/1", spans[0].Name)
	assert.Equal(t, "POST /payments/7", spans[1].Name)
}

func TestServer_StartStop(t *testing.T) {
	srv := New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}), WithLogger(logger.Nop()), WithAddr("127.0.0.1:0"), WithName("api"), WithIdleTimeout(30*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(srv.Addr(), ":0")
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))
	assert.Equal(t, "api", srv.Name())

	srv.mu.Lock()
	assert.Equal(t, 30*time.Second, srv.server.IdleTimeout)
	srv.mu.Unlock()

	require.NoError(t, srv.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("服务器未退出")
	}
}

func TestServer_StartEmptyAddr(t *testing.T) {
	srv := New(http.NotFoundHandler(), WithLogger(logger.Nop()), WithAddr(""))
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAddrEmpty)
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_WithRecovery(t *testing.T) {
	bundle := tracing.MustNew(&tracing.Config{
		ServiceName: "orders-api",
		LocalOnly:   true,
		TraceAll:    true,
	})
	require.NoError(t, bundle.Run(context.Background()))
	defer bundle.Close(context.Background())

	srv := New(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), WithLogger(logger.Nop()), WithTracing(bundle), WithRecovery())

	var rec *httptest.ResponseRecorder
	assert.NotPanics(t, func() {
		rec = httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	spans := bundle.Reporter().(*reporter.InMemory).Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "panic: boom", spans[0].Status.Description)
}

func TestServer_RecoveryKeepsAbortHandler(t *testing.T) {
	srv := New(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}), WithLogger(logger.Nop()), WithRecovery())

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
