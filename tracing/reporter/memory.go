package reporter

import (
	"context"
	"time"

	"github.com/Tsukikage7/tracing-bundle/metrics"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// InMemory 内存上报器.
//
// 结束的 span 同步写入进程内缓冲区，供测试和调试读取，不做网络 I/O.
// 关闭后缓冲区内容仍然保留，直到调用 Reset.
type InMemory struct {
	sdktrace.SpanProcessor

	exporter *tracetest.InMemoryExporter
}

// NewInMemory 创建内存上报器.
func NewInMemory(opts ...Option) *InMemory {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	exp := tracetest.NewInMemoryExporter()
	return &InMemory{
		SpanProcessor: sdktrace.NewSimpleSpanProcessor(&retainingExporter{
			InMemoryExporter: exp,
			metrics:          o.metrics,
		}),
		exporter: exp,
	}
}

// Spans 返回已结束 span 的快照.
func (m *InMemory) Spans() tracetest.SpanStubs {
	return m.exporter.GetSpans()
}

// Reset 清空缓冲区.
func (m *InMemory) Reset() {
	m.exporter.Reset()
}

// ShutdownTimeout 内存上报器无需等待.
func (m *InMemory) ShutdownTimeout() time.Duration {
	return 0
}

// retainingExporter 关闭时保留已记录的 span.
type retainingExporter struct {
	*tracetest.InMemoryExporter

	metrics *metrics.TracerMetrics
}

func (e *retainingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := e.InMemoryExporter.ExportSpans(ctx, spans); err != nil {
		return err
	}
	e.metrics.SpansReported(metrics.ResultOK, len(spans))
	return nil
}

func (e *retainingExporter) Shutdown(context.Context) error {
	return nil
}
