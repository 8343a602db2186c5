// Package decorator 提供 HTTP 服务端 span 的装饰器.
//
// 装饰器在请求进入时和响应完成后为 span 追加标签.
// 内置环境标签装饰器与标准标签装饰器，其余装饰器通过 Register 静态注册，
// 由 Build 按配置的包路径筛选后组装为有序列表.
package decorator

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ComponentName 标准标签中的组件名.
const ComponentName = "net/http"

// SpanDecorator span 装饰器.
type SpanDecorator interface {
	// DecorateRequest 在处理请求前调用.
	DecorateRequest(r *http.Request, span trace.Span)
	// DecorateResponse 在处理请求后调用.
	DecorateResponse(status int, header http.Header, span trace.Span)
}

// Funcs 由函数组成的装饰器，未设置的函数视为空操作.
type Funcs struct {
	Request  func(r *http.Request, span trace.Span)
	Response func(status int, header http.Header, span trace.Span)
}

// DecorateRequest 实现 SpanDecorator.
func (f Funcs) DecorateRequest(r *http.Request, span trace.Span) {
	if f.Request != nil {
		f.Request(r, span)
	}
}

// DecorateResponse 实现 SpanDecorator.
func (f Funcs) DecorateResponse(status int, header http.Header, span trace.Span) {
	if f.Response != nil {
		f.Response(status, header, span)
	}
}

// environment 环境标签装饰器.
type environment struct {
	attrs []attribute.KeyValue
}

// Environment 创建环境标签装饰器，tags 为 nil 时读取 EnvTags.
func Environment(tags map[string]string) SpanDecorator {
	if tags == nil {
		tags = EnvTags()
	}

	attrs := make([]attribute.KeyValue, 0, len(tags))
	for _, key := range []string{TagAppName, TagAppVersion, TagAppHost} {
		if v, ok := tags[key]; ok {
			attrs = append(attrs, attribute.String(key, v))
		}
	}
	return &environment{attrs: attrs}
}

func (e *environment) DecorateRequest(_ *http.Request, span trace.Span) {
	span.SetAttributes(e.attrs...)
}

func (e *environment) DecorateResponse(int, http.Header, trace.Span) {}

// standardTags 标准 HTTP 标签装饰器.
type standardTags struct{}

// StandardTags 返回标准标签装饰器.
//
// 请求阶段记录组件、方法、URL、路径、主机和 User-Agent，响应阶段记录状态码.
func StandardTags() SpanDecorator {
	return standardTags{}
}

func (standardTags) DecorateRequest(r *http.Request, span trace.Span) {
	span.SetAttributes(
		attribute.String("component", ComponentName),
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.URLFull(r.URL.String()),
		semconv.URLPath(r.URL.Path),
		semconv.ServerAddress(r.Host),
		semconv.UserAgentOriginal(r.UserAgent()),
	)
}

func (standardTags) DecorateResponse(status int, _ http.Header, span trace.Span) {
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
}
