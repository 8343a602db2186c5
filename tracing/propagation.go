package tracing

import (
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator 返回 B3 传播器.
//
// 注入使用多头格式 X-B3-TraceId / X-B3-SpanId / X-B3-Sampled，
// 提取同时接受单头 b3 与多头格式.
func Propagator() propagation.TextMapPropagator {
	return b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader))
}
