package tracing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Tsukikage7/tracing-bundle/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// fakeClock 手动推进的时间源.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sample(s sdktrace.Sampler) sdktrace.SamplingResult {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{1},
		Name:          "GET /orders",
	})
}

func countSampled(s sdktrace.Sampler, n int) int {
	sampled := 0
	for range n {
		if sample(s).Decision == sdktrace.RecordAndSample {
			sampled++
		}
	}
	return sampled
}

func TestRateLimitingSampler_Window(t *testing.T) {
	clock := newFakeClock()
	s := NewRateLimitingSampler(3, WithSamplerClock(clock.Now))

	assert.Equal(t, 3, countSampled(s, 10))

	clock.Advance(time.Second)
	assert.Equal(t, 3, countSampled(s, 10))
}

func TestRateLimitingSampler_FractionalRefill(t *testing.T) {
	clock := newFakeClock()
	s := NewRateLimitingSampler(2, WithSamplerClock(clock.Now))
	assert.Equal(t, 2, countSampled(s, 5))

	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, 0, countSampled(s, 1))

	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, 1, countSampled(s, 5))
}

func TestRateLimitingSampler_CapacityAtLeastOne(t *testing.T) {
	clock := newFakeClock()
	s := NewRateLimitingSampler(1, WithSamplerClock(clock.Now))

	assert.Equal(t, 1, countSampled(s, 3))

	// 长时间空闲后最多积累 1 个令牌
	clock.Advance(time.Hour)
	assert.Equal(t, 1, countSampled(s, 3))
}

func TestRateLimitingSampler_FractionalRate(t *testing.T) {
	clock := newFakeClock()
	s := NewRateLimitingSampler(2.5, WithSamplerClock(clock.Now))
	assert.Equal(t, 2, countSampled(s, 5))

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, countSampled(s, 5))
}

func TestRateLimitingSampler_Result(t *testing.T) {
	m := metrics.MustNewTracerMetrics(nil)
	s := NewRateLimitingSampler(1, WithSamplerClock(newFakeClock().Now), WithSamplerMetrics(m))

	res := sample(s)
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
	assert.Contains(t, res.Attributes, SamplerTypeKey.String(SamplerTypeRateLimit))
	assert.Contains(t, res.Attributes, SamplerParamKey.Float64(1))

	assert.Equal(t, sdktrace.Drop, sample(s).Decision)
	assert.Equal(t, "RateLimitingSampler{1}", s.Description())

	assert.Equal(t, map[string]float64{"y": 1, "n": 1}, tracesBySampled(t, m))
}

func TestRateLimitingSampler_ParentBased(t *testing.T) {
	s := sdktrace.ParentBased(NewRateLimitingSampler(1, WithSamplerClock(newFakeClock().Now)))
	_ = sample(s)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{2},
		SpanID:     trace.SpanID{3},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	res := s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithRemoteSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "GET /orders",
	})
	// 上游已采样的请求不受限速影响
	assert.Equal(t, sdktrace.RecordAndSample, res.Decision)
}

// tracesBySampled 按采样标签读取 trace 计数.
func tracesBySampled(t *testing.T, m *metrics.TracerMetrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "jaeger_tracer_traces_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "sampled" {
					out[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	return out
}
