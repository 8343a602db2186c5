package reporter

import "errors"

// 预定义错误常量.
var (
	// ErrNilConfig 上报配置为空.
	ErrNilConfig = errors.New("reporter: 配置为空")

	// ErrInvalidFlushInterval 刷新间隔超出范围.
	ErrInvalidFlushInterval = errors.New("reporter: flushIntervalInMs 必须在 100-86400 之间")

	// ErrInvalidQueueSize 队列容量超出范围.
	ErrInvalidQueueSize = errors.New("reporter: maxQueueSize 必须在 8-8192 之间")

	// ErrInvalidShutdownTime 关闭超时超出范围.
	ErrInvalidShutdownTime = errors.New("reporter: shutdownTimeInMs 必须在 100-10000 之间")

	// ErrInvalidSender 不支持的发送方式.
	ErrInvalidSender = errors.New("reporter: sender 只能是 http 或 udp")

	// ErrEmptyHost Collector 主机为空.
	ErrEmptyHost = errors.New("reporter: host 为空")

	// ErrInvalidPort Collector 端口无效.
	ErrInvalidPort = errors.New("reporter: port 必须在 1-65535 之间")

	// ErrCreateExporter 创建导出器失败.
	ErrCreateExporter = errors.New("reporter: 创建导出器失败")

	// ErrSenderClosed 发送器已关闭.
	ErrSenderClosed = errors.New("reporter: 发送器已关闭")
)
