package tracing

import (
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// registration 一次全局注册，记录注册前的 otel 全局对象以便关闭时恢复.
type registration struct {
	provider       *sdktrace.TracerProvider
	prevProvider   trace.TracerProvider
	prevPropagator propagation.TextMapPropagator
}

// global 进程级 TracerProvider，启动时写入一次，关闭时清除.
var global atomic.Pointer[registration]

// RegisterGlobal 注册进程级 TracerProvider.
//
// 同时设置 otel 全局 TracerProvider 与 B3 传播器.
// 已有注册时返回 ErrAlreadyRegistered.
func RegisterGlobal(tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return ErrNilProvider
	}

	reg := &registration{
		provider:       tp,
		prevProvider:   otel.GetTracerProvider(),
		prevPropagator: otel.GetTextMapPropagator(),
	}
	if !global.CompareAndSwap(nil, reg) {
		return ErrAlreadyRegistered
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())
	return nil
}

// GlobalTracerProvider 返回已注册的 TracerProvider，未注册时返回 nil.
func GlobalTracerProvider() *sdktrace.TracerProvider {
	if reg := global.Load(); reg != nil {
		return reg.provider
	}
	return nil
}

// IsGlobalRegistered 判断是否已注册.
func IsGlobalRegistered() bool {
	return global.Load() != nil
}

// clearGlobal 清除 tp 的注册，并恢复注册前的 otel 全局 TracerProvider 与传播器.
func clearGlobal(tp *sdktrace.TracerProvider) {
	reg := global.Load()
	if reg == nil || reg.provider != tp || !global.CompareAndSwap(reg, nil) {
		return
	}
	otel.SetTracerProvider(reg.prevProvider)
	otel.SetTextMapPropagator(reg.prevPropagator)
}
