package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 采样与上报结果标签值.
const (
	labelYes = "y"
	labelNo  = "n"

	ResultOK      = "ok"
	ResultErr     = "err"
	ResultDropped = "dropped"
)

// TracerMetrics 追踪器内存指标.
//
// 使用独立的 prometheus.Registry，不会写入默认注册表.
// 所有方法在接收者为 nil 时为空操作.
type TracerMetrics struct {
	config   *Config
	registry *prometheus.Registry

	traces        *prometheus.CounterVec
	startedSpans  prometheus.Counter
	finishedSpans prometheus.Counter
	reporterSpans *prometheus.CounterVec
}

// NewTracerMetrics 创建追踪器指标.
func NewTracerMetrics(cfg *Config) (*TracerMetrics, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "jaeger"
	}

	m := &TracerMetrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		traces: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracer",
				Name:      "traces_total",
				Help:      "Number of new traces by sampling decision",
			},
			[]string{"sampled"},
		),
		startedSpans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracer",
			Name:      "started_spans_total",
			Help:      "Number of recorded spans started",
		}),
		finishedSpans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracer",
			Name:      "finished_spans_total",
			Help:      "Number of recorded spans finished",
		}),
		reporterSpans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracer",
				Name:      "reporter_spans_total",
				Help:      "Number of spans handed to the collector by result",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{m.traces, m.startedSpans, m.finishedSpans, m.reporterSpans} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// MustNewTracerMetrics 创建追踪器指标，失败时 panic.
func MustNewTracerMetrics(cfg *Config) *TracerMetrics {
	m, err := NewTracerMetrics(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// TraceStarted 记录一次新 trace 的采样决策.
func (m *TracerMetrics) TraceStarted(sampled bool) {
	if m == nil {
		return
	}
	label := labelNo
	if sampled {
		label = labelYes
	}
	m.traces.WithLabelValues(label).Inc()
}

// SpanStarted 记录一个被记录的 span 开始.
func (m *TracerMetrics) SpanStarted() {
	if m == nil {
		return
	}
	m.startedSpans.Inc()
}

// SpanFinished 记录一个被记录的 span 结束.
func (m *TracerMetrics) SpanFinished() {
	if m == nil {
		return
	}
	m.finishedSpans.Inc()
}

// SpansReported 记录上报结果.
func (m *TracerMetrics) SpansReported(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reporterSpans.WithLabelValues(result).Add(float64(n))
}

// Registry 返回指标注册表.
func (m *TracerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回指标暴露 Handler.
func (m *TracerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Path 返回指标暴露路径.
func (m *TracerMetrics) Path() string {
	if m.config.Path == "" {
		return "/metrics"
	}
	return m.config.Path
}
