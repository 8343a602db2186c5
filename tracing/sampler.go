package tracing

import (
	"fmt"
	"math"
	"time"

	"github.com/Tsukikage7/tracing-bundle/metrics"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// 采样器标签.
const (
	SamplerTypeKey       = attribute.Key("sampler.type")
	SamplerParamKey      = attribute.Key("sampler.param")
	SamplerTypeRateLimit = "ratelimiting"
)

// Clock 时间源.
type Clock func() time.Time

// rateLimiter 令牌桶.
//
// 令牌按 creditsPerSecond 连续累积，桶容量为 max(creditsPerSecond, 1) 向下取整，初始满桶.
type rateLimiter struct {
	limiter *rate.Limiter
	now     Clock
}

func newRateLimiter(creditsPerSecond float64, now Clock) *rateLimiter {
	burst := int(math.Floor(max(creditsPerSecond, 1)))
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(creditsPerSecond), burst),
		now:     now,
	}
}

// allow 尝试消耗一个令牌.
func (l *rateLimiter) allow() bool {
	return l.limiter.AllowN(l.now(), 1)
}

// rateLimitingSampler 每秒最多采样固定数量的新 trace.
type rateLimitingSampler struct {
	maxTracesPerSecond float64
	limiter            *rateLimiter
	metrics            *metrics.TracerMetrics
	attrs              []attribute.KeyValue
	description        string
}

// SamplerOption 采样器选项.
type SamplerOption func(*rateLimitingSampler)

// WithSamplerClock 设置时间源，用于测试.
func WithSamplerClock(now Clock) SamplerOption {
	return func(s *rateLimitingSampler) {
		s.limiter = newRateLimiter(s.maxTracesPerSecond, now)
	}
}

// WithSamplerMetrics 记录采样决策.
func WithSamplerMetrics(m *metrics.TracerMetrics) SamplerOption {
	return func(s *rateLimitingSampler) {
		s.metrics = m
	}
}

// NewRateLimitingSampler 创建限速采样器.
//
// 被拒绝的 trace 只是不记录，不影响请求处理.
func NewRateLimitingSampler(maxTracesPerSecond float64, opts ...SamplerOption) sdktrace.Sampler {
	s := &rateLimitingSampler{
		maxTracesPerSecond: maxTracesPerSecond,
		limiter:            newRateLimiter(maxTracesPerSecond, time.Now),
		attrs: []attribute.KeyValue{
			SamplerTypeKey.String(SamplerTypeRateLimit),
			SamplerParamKey.Float64(maxTracesPerSecond),
		},
		description: fmt.Sprintf("RateLimitingSampler{%g}", maxTracesPerSecond),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *rateLimitingSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	ts := trace.SpanContextFromContext(p.ParentContext).TraceState()

	if !s.limiter.allow() {
		s.metrics.TraceStarted(false)
		return sdktrace.SamplingResult{Decision: sdktrace.Drop, Tracestate: ts}
	}

	s.metrics.TraceStarted(true)
	return sdktrace.SamplingResult{
		Decision:   sdktrace.RecordAndSample,
		Attributes: s.attrs,
		Tracestate: ts,
	}
}

func (s *rateLimitingSampler) Description() string {
	return s.description
}
