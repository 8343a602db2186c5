package tracing

import (
	"context"

	"github.com/Tsukikage7/tracing-bundle/metrics"
	"github.com/Tsukikage7/tracing-bundle/tracing/reporter"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// InstrumentationName 中间件创建 span 时使用的 Tracer 名称.
const InstrumentationName = "github.com/Tsukikage7/tracing-bundle/tracing"

// providerOptions TracerProvider 构建选项.
type providerOptions struct {
	clock   Clock
	metrics *metrics.TracerMetrics
}

// ProviderOption TracerProvider 构建选项函数.
type ProviderOption func(*providerOptions)

// WithProviderClock 设置采样器时间源.
func WithProviderClock(now Clock) ProviderOption {
	return func(o *providerOptions) {
		o.clock = now
	}
}

// WithProviderMetrics 设置指标.
func WithProviderMetrics(m *metrics.TracerMetrics) ProviderOption {
	return func(o *providerOptions) {
		o.metrics = m
	}
}

// NewTracerProvider 根据配置创建 TracerProvider.
//
// 采样器为 ParentBased(RateLimiting(maxTracesPerSecond))：
// 携带上游采样决策的请求沿用上游决策，新 trace 受每秒上限约束.
// TracerProvider 需要调用方显式 Shutdown.
func NewTracerProvider(cfg *Config, r reporter.Reporter, opts ...ProviderOption) *sdktrace.TracerProvider {
	o := &providerOptions{}
	for _, opt := range opts {
		opt(o)
	}

	samplerOpts := []SamplerOption{WithSamplerMetrics(o.metrics)}
	if o.clock != nil {
		samplerOpts = append(samplerOpts, WithSamplerClock(o.clock))
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName))

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(NewRateLimitingSampler(cfg.MaxTracesPerSecond, samplerOpts...))),
		sdktrace.WithSpanProcessor(&metricsProcessor{metrics: o.metrics}),
		sdktrace.WithSpanProcessor(r),
	)
}

// metricsProcessor 统计 span 开始与结束数量.
type metricsProcessor struct {
	metrics *metrics.TracerMetrics
}

func (p *metricsProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {
	p.metrics.SpanStarted()
}

func (p *metricsProcessor) OnEnd(sdktrace.ReadOnlySpan) {
	p.metrics.SpanFinished()
}

func (p *metricsProcessor) Shutdown(context.Context) error   { return nil }
func (p *metricsProcessor) ForceFlush(context.Context) error { return nil }
