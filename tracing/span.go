package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracer 返回全局 TracerProvider 的 Tracer，未注册时使用 otel 全局实现.
func tracer() trace.Tracer {
	if tp := GlobalTracerProvider(); tp != nil {
		return tp.Tracer(InstrumentationName)
	}
	return otel.Tracer(InstrumentationName)
}

// SpanFromContext 从 context 获取当前 span.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// StartSpan 在当前 context 中创建新的 span.
//
// 使用示例:
//
//	ctx, span := tracing.StartSpan(ctx, "load-order")
//	defer span.End()
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer().Start(ctx, spanName, opts...)
}

// AddSpanEvent 向当前 span 添加事件.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanError 记录错误及调用栈并设置 span 错误状态.
func SetSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanAttributes 设置 span 属性.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// InjectHTTPHeaders 将追踪信息以 B3 格式注入到 HTTP 请求头.
//
// 使用示例:
//
//	req, _ := http.NewRequestWithContext(ctx, "GET", "http://inventory/api/stock", nil)
//	tracing.InjectHTTPHeaders(ctx, req)
//	resp, err := client.Do(req)
func InjectHTTPHeaders(ctx context.Context, req *http.Request) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// TraceID 从 context 获取 trace ID.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID 从 context 获取 span ID.
func SpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}
