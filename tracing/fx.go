package tracing

import (
	"context"

	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/Tsukikage7/tracing-bundle/metrics"
	"github.com/Tsukikage7/tracing-bundle/tracing/decorator"
	"go.uber.org/dig"
	"go.uber.org/fx"
)

// FXModule 以 fx 模块方式提供 *Bundle.
//
// 需要容器中提供 *Config；logger.Logger、*metrics.TracerMetrics、
// *dig.Container 与 `group:"span_decorators"` 装饰器组均为可选.
// OnStart 启动组件，OnStop 关闭组件.
//
// 使用示例:
//
//	app := fx.New(
//	    fx.Supply(cfg),
//	    tracing.FXModule,
//	)
var FXModule = fx.Module("tracing",
	fx.Provide(NewBundleWithDI),
	fx.Invoke(RegisterLifecycle),
)

// BundleParams fx 注入参数.
type BundleParams struct {
	fx.In

	Config     *Config
	Logger     logger.Logger             `optional:"true"`
	Metrics    *metrics.TracerMetrics    `optional:"true"`
	Injector   *dig.Container            `optional:"true"`
	Decorators []decorator.SpanDecorator `group:"span_decorators"`
}

// NewBundleWithDI 通过 fx 注入参数创建组件.
func NewBundleWithDI(params BundleParams) (*Bundle, error) {
	opts := []Option{WithDecorators(params.Decorators...)}
	if params.Logger != nil {
		opts = append(opts, WithLogger(params.Logger))
	}
	if params.Metrics != nil {
		opts = append(opts, WithMetrics(params.Metrics))
	}
	if params.Injector != nil {
		opts = append(opts, WithInjector(params.Injector))
	}
	return New(params.Config, opts...)
}

// LifecycleParams 生命周期注入参数.
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Bundle    *Bundle
}

// RegisterLifecycle 注册组件的启动与关闭钩子.
func RegisterLifecycle(params LifecycleParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.Bundle.Run(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return params.Bundle.Close(ctx)
		},
	})
}
