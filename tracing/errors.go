package tracing

import "errors"

// 预定义错误.
var (
	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("tracing: 配置不能为空")
	// ErrEmptyServiceName 服务名为空.
	ErrEmptyServiceName = errors.New("tracing: serviceName 不能为空")
	// ErrInvalidMaxTraces 每秒最大 trace 数非法.
	ErrInvalidMaxTraces = errors.New("tracing: maxTracesPerSecond 必须大于等于 1")
	// ErrInvalidSkipPattern 跳过路径正则非法.
	ErrInvalidSkipPattern = errors.New("tracing: skipApiPathPattern 不是合法的正则表达式")
	// ErrInvalidReporter 上报配置非法.
	ErrInvalidReporter = errors.New("tracing: reporter 配置非法")
	// ErrNilProvider TracerProvider 为空.
	ErrNilProvider = errors.New("tracing: TracerProvider 不能为空")
	// ErrAlreadyRegistered 全局 TracerProvider 已注册.
	ErrAlreadyRegistered = errors.New("tracing: 全局 TracerProvider 已注册")
	// ErrAlreadyRunning 组件已启动.
	ErrAlreadyRunning = errors.New("tracing: 组件已启动")
	// ErrNotRunning 组件未启动.
	ErrNotRunning = errors.New("tracing: 组件未启动")
	// ErrClosed 组件已关闭.
	ErrClosed = errors.New("tracing: 组件已关闭")
)
