// Package server 提供接入链路追踪的 HTTP 服务器.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/Tsukikage7/tracing-bundle/app"
	"github.com/Tsukikage7/tracing-bundle/logger"
)

// Server HTTP 服务器.
type Server struct {
	opts    *options
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

var _ app.Server = (*Server)(nil)

// New 创建 HTTP 服务器，未设置 logger 或 handler 为空时 panic.
func New(handler http.Handler, opts ...Option) *Server {
	if handler == nil {
		panic(ErrNilHandler)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		panic("http server: 必须设置 logger")
	}

	wrapped := handler
	if o.bundle != nil {
		wrapped = o.bundle.Middleware()(wrapped)
	}
	if o.recovery {
		wrapped = recoverMiddleware(o.logger)(wrapped)
	}
	if o.bundle != nil && o.metrics {
		m := o.bundle.Metrics()
		mux := http.NewServeMux()
		mux.Handle(m.Path(), m.Handler())
		mux.Handle("/", wrapped)
		wrapped = mux
	}

	return &Server{
		opts:    o,
		handler: wrapped,
	}
}

// Start 启动 HTTP 服务器，阻塞直到 ctx 取消或服务器退出.
func (s *Server) Start(ctx context.Context) error {
	if s.opts.addr == "" {
		return ErrAddrEmpty
	}

	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.readTimeout,
		WriteTimeout: s.opts.writeTimeout,
		IdleTimeout:  s.opts.idleTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	s.opts.logger.With(
		logger.String("server", s.opts.name),
		logger.String("addr", ln.Addr().String()),
	).Info("[HTTP] 服务器启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}
	return nil
}

// Stop 停止 HTTP 服务器.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.opts.logger.With(logger.String("server", s.opts.name)).Info("[HTTP] 服务器停止中")
	return srv.Shutdown(ctx)
}

// Name 返回服务器名称.
func (s *Server) Name() string {
	return s.opts.name
}

// Addr 返回监听地址，启动后返回实际地址.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.addr
}

// Handler 返回包装后的 HTTP Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
