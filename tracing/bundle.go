package tracing

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/Tsukikage7/tracing-bundle/app"
	"github.com/Tsukikage7/tracing-bundle/logger"
	"github.com/Tsukikage7/tracing-bundle/metrics"
	"github.com/Tsukikage7/tracing-bundle/tracing/decorator"
	"github.com/Tsukikage7/tracing-bundle/tracing/reporter"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/dig"
)

// ShutdownHookName 注册到应用的关闭钩子名称.
const ShutdownHookName = "tracing-shutdown-hook"

// shutdownHookPriority 关闭钩子优先级，在其他清理任务之后执行.
const shutdownHookPriority = 100

// State 组件状态.
type State int32

// 组件状态.
const (
	StateUninitialized State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// options 组件选项.
type options struct {
	logger     logger.Logger
	decorators []decorator.SpanDecorator
	injector   *dig.Container
	app        *app.Application
	metrics    *metrics.TracerMetrics
	clock      Clock
}

// Option 组件选项函数.
type Option func(*options)

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithDecorators 追加显式装饰器，位于发现的装饰器之后、标准标签之前.
func WithDecorators(decorators ...decorator.SpanDecorator) Option {
	return func(o *options) {
		o.decorators = append(o.decorators, decorators...)
	}
}

// WithInjector 设置装饰器依赖注入容器.
func WithInjector(c *dig.Container) Option {
	return func(o *options) {
		o.injector = c
	}
}

// WithApplication 在应用上注册关闭钩子.
func WithApplication(a *app.Application) Option {
	return func(o *options) {
		o.app = a
	}
}

// WithMetrics 设置指标.
func WithMetrics(m *metrics.TracerMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock 设置采样器时间源.
func WithClock(now Clock) Option {
	return func(o *options) {
		o.clock = now
	}
}

// runtime 运行期组件，Run 后发布，Close 时撤销.
type runtime struct {
	tracer             trace.Tracer
	propagator         propagation.TextMapPropagator
	decorators         []decorator.SpanDecorator
	skip               *regexp.Regexp
	traceAll           bool
	traceSerialization bool
}

// Bundle 链路追踪组件.
//
// 生命周期: Uninitialized → Running → Closed.
// Run 与 Close 各只能成功调用一次；请求处理期间只读取已发布的运行期组件.
type Bundle struct {
	config *Config
	opts   *options

	mu         sync.Mutex
	state      atomic.Int32
	rt         atomic.Pointer[runtime]
	provider   *sdktrace.TracerProvider
	reporter   reporter.Reporter
	decorators []decorator.SpanDecorator
}

// New 创建链路追踪组件.
//
// 配置会被复制并填充默认值，校验失败时返回错误.
func New(cfg *Config, opts ...Option) (*Bundle, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	if o.metrics == nil {
		m, err := metrics.NewTracerMetrics(nil)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}

	c := cfg.clone()
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &Bundle{config: c, opts: o}, nil
}

// MustNew 创建链路追踪组件，失败时 panic.
func MustNew(cfg *Config, opts ...Option) *Bundle {
	b, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// Run 启动组件.
//
// 依次组装装饰器、创建上报器与 TracerProvider、注册全局 TracerProvider，
// 配置了应用时注册关闭钩子. 任一步骤失败时释放已创建的资源，状态保持不变.
func (b *Bundle) Run(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.State() {
	case StateRunning:
		return ErrAlreadyRunning
	case StateClosed:
		return ErrClosed
	}

	log := b.opts.logger.With(logger.String("serviceName", b.config.ServiceName))
	log.Info("[Tracing] 正在初始化链路追踪")

	decorators, err := decorator.Build(decorator.Options{
		Packages:               b.config.DecoratorPackages,
		EnableDynamicInjection: b.config.EnableDynamicInjection,
		Injector:               b.opts.injector,
		Extra:                  b.opts.decorators,
		Logger:                 b.opts.logger,
	})
	if err != nil {
		return err
	}

	rep, err := reporter.New(ctx, b.config.Reporter, b.config.LocalOnly,
		reporter.WithLogger(b.opts.logger),
		reporter.WithMetrics(b.opts.metrics),
	)
	if err != nil {
		return err
	}

	tp := NewTracerProvider(b.config, rep,
		WithProviderClock(b.opts.clock),
		WithProviderMetrics(b.opts.metrics),
	)
	if err := RegisterGlobal(tp); err != nil {
		_ = tp.Shutdown(ctx)
		return err
	}

	skip, _ := b.config.skipPattern()
	b.provider = tp
	b.reporter = rep
	b.decorators = decorators
	b.rt.Store(&runtime{
		tracer:             tp.Tracer(InstrumentationName),
		propagator:         Propagator(),
		decorators:         decorators,
		skip:               skip,
		traceAll:           b.config.TraceAll,
		traceSerialization: b.config.TraceSerialization,
	})
	b.state.Store(int32(StateRunning))

	if b.opts.app != nil {
		b.opts.app.AddCleanup(ShutdownHookName, b.Close, shutdownHookPriority)
	}

	log.With(
		logger.Bool("localOnly", b.config.LocalOnly),
		logger.Bool("traceAll", b.config.TraceAll),
		logger.Float64("maxTracesPerSecond", b.config.MaxTracesPerSecond),
		logger.Int("decorators", len(decorators)),
	).Info("[Tracing] 链路追踪已就绪")
	return nil
}

// Close 关闭组件.
//
// 停止创建新 span，清除全局注册，并在上报器的关闭超时内刷新队列，
// 超时后未发送的 span 被丢弃. 重复调用返回 ErrClosed.
func (b *Bundle) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.State() {
	case StateUninitialized:
		return ErrNotRunning
	case StateClosed:
		return ErrClosed
	}

	b.state.Store(int32(StateClosed))
	b.rt.Store(nil)
	clearGlobal(b.provider)

	if timeout := b.reporter.ShutdownTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := b.provider.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			b.opts.logger.Warn("[Tracing] 关闭超时，未发送的 span 已丢弃")
			return nil
		}
		return err
	}

	b.opts.logger.Info("[Tracing] 链路追踪已关闭")
	return nil
}

// State 返回组件状态.
func (b *Bundle) State() State {
	return State(b.state.Load())
}

// Config 返回生效配置的副本.
func (b *Bundle) Config() *Config {
	return b.config.clone()
}

// Tracer 返回组件的 Tracer，未运行时返回空实现.
func (b *Bundle) Tracer() trace.Tracer {
	if rt := b.rt.Load(); rt != nil {
		return rt.tracer
	}
	return noop.NewTracerProvider().Tracer(InstrumentationName)
}

// TracerProvider 返回 TracerProvider，Run 之前为 nil.
func (b *Bundle) TracerProvider() *sdktrace.TracerProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.provider
}

// Reporter 返回上报器，Run 之前为 nil.
func (b *Bundle) Reporter() reporter.Reporter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reporter
}

// Decorators 返回生效的装饰器列表.
func (b *Bundle) Decorators() []decorator.SpanDecorator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]decorator.SpanDecorator(nil), b.decorators...)
}

// Metrics 返回追踪器指标.
func (b *Bundle) Metrics() *metrics.TracerMetrics {
	return b.opts.metrics
}

// MetricsHandler 返回追踪器指标的 HTTP Handler.
func (b *Bundle) MetricsHandler() http.Handler {
	return b.opts.metrics.Handler()
}
