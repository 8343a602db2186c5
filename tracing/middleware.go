package tracing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// 序列化子 span 名称.
const (
	SpanNameDeserialize = "deserialize"
	SpanNameSerialize   = "serialize"
)

type serverSpanKey struct{}

// serverSpan 单个请求的服务端 span 状态.
//
// 由结束过滤器创建并放入 context，追踪过滤器写入 span.
type serverSpan struct {
	mu sync.Mutex

	span        trace.Span
	ctx         context.Context
	request     *http.Request
	name        string
	deserialize trace.Span
	serialize   trace.Span
}

// operationName 返回最终的 span 名称.
//
// 优先使用 SetOperationName 设置的名称，其次是 ServeMux 匹配到的路由模式.
func (s *serverSpan) operationName() string {
	if s.name != "" {
		return s.name
	}
	if s.request == nil || s.request.Pattern == "" {
		return ""
	}
	if strings.Contains(s.request.Pattern, " ") {
		return s.request.Pattern
	}
	return s.request.Method + " " + s.request.Pattern
}

// SetOperationName 覆盖当前请求服务端 span 的名称.
//
// 在未被追踪的请求中调用时为空操作.
func SetOperationName(ctx context.Context, name string) {
	state, _ := ctx.Value(serverSpanKey{}).(*serverSpan)
	if state == nil || name == "" {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.span == nil {
		return
	}
	state.name = name
	state.span.SetName(name)
}

// Middleware 返回链路追踪中间件.
//
// 外层为结束过滤器，对所有路径生效，负责执行响应装饰器并结束 span；
// 内层为追踪过滤器，按 traceAll 与 skipApiPathPattern 决定是否创建 span.
// 组件未运行时请求直接透传.
//
// 使用示例:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /orders/{id}", getOrder)
//	http.ListenAndServe(":8080", bundle.Middleware()(mux))
func (b *Bundle) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return b.finishingFilter(b.tracingFilter(next))
	}
}

// finishingFilter 结束过滤器.
func (b *Bundle) finishingFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt := b.rt.Load()
		if rt == nil {
			next.ServeHTTP(w, r)
			return
		}

		state := &serverSpan{}
		rw := newResponseWriter(w)

		defer func() {
			if rec := recover(); rec != nil {
				rt.finish(state, http.StatusInternalServerError, rw.Header(), panicError(rec))
				panic(rec)
			}
			rt.finish(state, rw.status, rw.Header(), nil)
		}()

		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), serverSpanKey{}, state)))
	})
}

// tracingFilter 追踪过滤器.
func (b *Bundle) tracingFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt := b.rt.Load()
		state, _ := r.Context().Value(serverSpanKey{}).(*serverSpan)
		if rt == nil || state == nil || !rt.shouldTrace(r) {
			next.ServeHTTP(w, r)
			return
		}

		// 忽略 context 中已激活的 span，只以请求头中的上游信息作为父级
		ctx := trace.ContextWithSpanContext(r.Context(), trace.SpanContext{})
		ctx = rt.propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
		ctx, span := rt.tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))

		for _, d := range rt.decorators {
			d.DecorateRequest(r, span)
		}

		req := r.WithContext(ctx)
		// 外层路由写入的模式不属于被追踪的 handler，只采用内层 ServeMux 匹配的结果
		req.Pattern = ""

		state.mu.Lock()
		state.span = span
		state.ctx = ctx
		state.request = req
		state.mu.Unlock()

		if rt.traceSerialization {
			if req.Body != nil && req.Body != http.NoBody {
				req.Body = &tracedBody{ReadCloser: req.Body, rt: rt, state: state}
			}
			w = &serializingWriter{ResponseWriter: w, rt: rt, state: state}
		}

		next.ServeHTTP(w, req)
	})
}

// shouldTrace 判断请求是否需要创建 span.
func (rt *runtime) shouldTrace(r *http.Request) bool {
	if !rt.traceAll {
		return false
	}
	return rt.skip == nil || !rt.skip.MatchString(r.URL.Path)
}

// finish 执行响应装饰器并结束 span，panicErr 非空时记录异常及调用栈.
func (rt *runtime) finish(state *serverSpan, status int, header http.Header, panicErr error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	span := state.span
	if span == nil {
		return
	}

	if state.deserialize != nil {
		state.deserialize.End()
	}
	if state.serialize != nil {
		state.serialize.End()
	}

	if name := state.operationName(); name != "" {
		span.SetName(name)
	}
	for _, d := range rt.decorators {
		d.DecorateResponse(status, header, span)
	}
	switch {
	case panicErr != nil:
		span.RecordError(panicErr, trace.WithStackTrace(true))
		span.SetStatus(codes.Error, panicErr.Error())
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	span.End()
}

// startChild 创建序列化子 span，已存在时不重复创建.
func (rt *runtime) startChild(state *serverSpan, name string, slot *trace.Span) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if *slot != nil || state.ctx == nil {
		return
	}
	_, *slot = rt.tracer.Start(state.ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(p)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// tracedBody 读取请求体期间记录 deserialize span.
type tracedBody struct {
	io.ReadCloser
	rt    *runtime
	state *serverSpan
}

func (b *tracedBody) Read(p []byte) (int, error) {
	b.rt.startChild(b.state, SpanNameDeserialize, &b.state.deserialize)
	n, err := b.ReadCloser.Read(p)
	if err != nil {
		b.end()
	}
	return n, err
}

func (b *tracedBody) Close() error {
	b.end()
	return b.ReadCloser.Close()
}

func (b *tracedBody) end() {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	if b.state.deserialize != nil {
		b.state.deserialize.End()
	}
}

// serializingWriter 写入响应体期间记录 serialize span，span 在请求结束时关闭.
type serializingWriter struct {
	http.ResponseWriter
	rt    *runtime
	state *serverSpan
}

func (w *serializingWriter) Write(p []byte) (int, error) {
	w.rt.startChild(w.state, SpanNameSerialize, &w.state.serialize)
	return w.ResponseWriter.Write(p)
}

func (w *serializingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *serializingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
