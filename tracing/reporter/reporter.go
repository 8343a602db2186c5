package reporter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/Tsukikage7/tracing-bundle/metrics"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// maxExportBatchSize 单次导出的最大 span 数.
const maxExportBatchSize = 512

// Reporter 接收结束的 span 并交付给 Collector.
//
// Reporter 作为 SpanProcessor 注册到 TracerProvider，
// 关闭由 TracerProvider.Shutdown 驱动，超时由 ShutdownTimeout 决定.
type Reporter interface {
	sdktrace.SpanProcessor

	// ShutdownTimeout 返回关闭时等待队列清空的最长时间.
	ShutdownTimeout() time.Duration
}

// options 上报器选项.
type options struct {
	logger  logger.Logger
	metrics *metrics.TracerMetrics
}

// Option 上报器选项函数.
type Option func(*options)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithMetrics 设置指标.
func WithMetrics(m *metrics.TracerMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New 根据配置创建上报器.
//
// localOnly 为 true 时返回 InMemory，不做任何网络 I/O；
// 否则返回按 cfg 配置的 Remote.
func New(ctx context.Context, cfg *Config, localOnly bool, opts ...Option) (Reporter, error) {
	o := &options{logger: logger.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	if localOnly {
		return NewInMemory(opts...), nil
	}

	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, cfg, o)
	if err != nil {
		return nil, err
	}

	return newRemote(cfg, exporter, o), nil
}

// MustNew 创建上报器，失败时 panic.
func MustNew(ctx context.Context, cfg *Config, localOnly bool, opts ...Option) Reporter {
	r, err := New(ctx, cfg, localOnly, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// newExporter 根据发送方式创建导出器.
func newExporter(ctx context.Context, cfg *Config, o *options) (*observedExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)

	switch cfg.SenderKind() {
	case SenderHTTP:
		exp, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint()),
			otlptracehttp.WithURLPath(TracesPath),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
		)
	default:
		exp, err = otlptrace.New(ctx, newUDPClient(cfg.Endpoint(), o.logger, o.metrics))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateExporter, err)
	}

	return &observedExporter{
		SpanExporter: exp,
		sender:       cfg.SenderKind(),
		logger:       o.logger,
		metrics:      o.metrics,
	}, nil
}

// Remote 远程上报器.
//
// 结束的 span 进入容量为 maxQueueSize 的队列，后台每 flushIntervalInMs 批量发送.
// 队列满时新 span 被丢弃并计入 dropped 指标，不会阻塞请求处理.
type Remote struct {
	sdktrace.SpanProcessor

	config   Config
	exporter *observedExporter
	metrics  *metrics.TracerMetrics
}

func newRemote(cfg *Config, exporter *observedExporter, o *options) *Remote {
	batchSize := min(maxExportBatchSize, cfg.MaxQueueSize)

	o.logger.With(
		logger.String("sender", cfg.SenderKind()),
		logger.String("endpoint", cfg.Endpoint()),
		logger.Int("maxQueueSize", cfg.MaxQueueSize),
		logger.Duration("flushInterval", cfg.FlushInterval()),
	).Info("[Tracing] 远程上报器已创建")

	return &Remote{
		SpanProcessor: sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithBatchTimeout(cfg.FlushInterval()),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(batchSize),
		),
		config:   *cfg,
		exporter: exporter,
		metrics:  o.metrics,
	}
}

// OnEnd 将采样的 span 放入队列.
//
// 已入队但尚未导出完成的 span 达到 maxQueueSize 时丢弃.
func (r *Remote) OnEnd(s sdktrace.ReadOnlySpan) {
	if !s.SpanContext().IsSampled() {
		return
	}
	if !r.exporter.reserve(int64(r.config.MaxQueueSize)) {
		r.metrics.SpansReported(metrics.ResultDropped, 1)
		return
	}
	r.SpanProcessor.OnEnd(s)
}

// ShutdownTimeout 返回关闭超时.
func (r *Remote) ShutdownTimeout() time.Duration {
	return r.config.ShutdownTimeout()
}

// Config 返回上报配置副本.
func (r *Remote) Config() Config {
	return r.config
}

// observedExporter 记录上报结果，发送失败只记录日志不向上传播.
//
// pending 为已入队但尚未导出完成的 span 数.
type observedExporter struct {
	sdktrace.SpanExporter

	sender  string
	logger  logger.Logger
	metrics *metrics.TracerMetrics
	pending atomic.Int64
}

// reserve 占用一个队列位置，队列已满时返回 false.
func (e *observedExporter) reserve(capacity int64) bool {
	for {
		n := e.pending.Load()
		if n >= capacity {
			return false
		}
		if e.pending.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (e *observedExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	defer e.pending.Add(-int64(len(spans)))

	if err := e.SpanExporter.ExportSpans(ctx, spans); err != nil {
		e.metrics.SpansReported(metrics.ResultErr, len(spans))
		e.logger.With(
			logger.String("sender", e.sender),
			logger.Int("spans", len(spans)),
			logger.Err(err),
		).Warn("[Tracing] span 上报失败，已丢弃")
		return nil
	}
	e.metrics.SpansReported(metrics.ResultOK, len(spans))
	return nil
}
