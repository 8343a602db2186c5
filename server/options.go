package server

import (
	"time"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/Tsukikage7/tracing-bundle/tracing"
)

// Option 配置选项函数.
type Option func(*options)

// options 服务器配置.
type options struct {
	name         string
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	logger       logger.Logger
	bundle       *tracing.Bundle
	metrics      bool
	recovery     bool
}

// defaultOptions 返回默认配置.
func defaultOptions() *options {
	return &options{
		name:         "HTTP",
		addr:         ":8080",
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
}

// WithName 设置服务器名称.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithAddr 设置监听地址.
func WithAddr(addr string) Option {
	return func(o *options) {
		o.addr = addr
	}
}

// WithReadTimeout 设置读取超时.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// WithWriteTimeout 设置写入超时.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithIdleTimeout 设置空闲超时.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithLogger 设置日志记录器（必需）.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithTracing 启用链路追踪.
//
// 在最外层安装 bundle 的结束过滤器与追踪过滤器，
// 业务代码可通过 log.WithContext(r.Context()) 输出 traceId/spanId.
//
// 使用示例:
//
//	bundle := tracing.MustNew(cfg, tracing.WithLogger(log), tracing.WithApplication(application))
//	srv := server.New(mux,
//	    server.WithLogger(log),
//	    server.WithTracing(bundle),
//	)
func WithTracing(bundle *tracing.Bundle) Option {
	return func(o *options) {
		o.bundle = bundle
	}
}

// WithMetricsEndpoint 暴露追踪器指标，路径由指标配置决定.
//
// 需要同时设置 WithTracing，指标请求不会被追踪.
func WithMetricsEndpoint() Option {
	return func(o *options) {
		o.metrics = true
	}
}

// WithRecovery 捕获 handler 的 panic，记录日志后返回 500.
func WithRecovery() Option {
	return func(o *options) {
		o.recovery = true
	}
}
