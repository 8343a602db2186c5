// Package reporter 负责把结束的 span 交付给 Collector.
//
// 本地模式使用内存上报器，远程模式使用带界队列的批量上报器，
// 按 flushIntervalInMs 定时通过 UDP 或 HTTP 发送.
package reporter

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// 发送方式.
const (
	SenderHTTP = "http"
	SenderUDP  = "udp"
)

// TracesPath HTTP 发送器的上报路径.
const TracesPath = "/api/traces"

// 默认值.
const (
	DefaultFlushIntervalInMs = 1000
	DefaultMaxQueueSize      = 100
	DefaultShutdownTimeInMs  = 1000
	DefaultSender            = SenderUDP
	DefaultHost              = "localhost"
	DefaultPort              = 80
)

// Config 上报配置.
type Config struct {
	// FlushIntervalInMs 批量发送间隔，范围 [100, 86400]
	FlushIntervalInMs int `json:"flushIntervalInMs" yaml:"flushIntervalInMs" mapstructure:"flushIntervalInMs"`
	// MaxQueueSize 队列容量，队列满时丢弃新 span，范围 [8, 8192]
	MaxQueueSize int `json:"maxQueueSize" yaml:"maxQueueSize" mapstructure:"maxQueueSize"`
	// ShutdownTimeInMs 关闭时等待队列清空的时间，范围 [100, 10000]
	ShutdownTimeInMs int `json:"shutdownTimeInMs" yaml:"shutdownTimeInMs" mapstructure:"shutdownTimeInMs"`
	// Sender 发送方式: http, udp
	Sender string `json:"sender" yaml:"sender" mapstructure:"sender"`
	// Host Collector 主机
	Host string `json:"host" yaml:"host" mapstructure:"host"`
	// Port Collector 端口
	Port int `json:"port" yaml:"port" mapstructure:"port"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 为零值字段填充默认值.
func (c *Config) ApplyDefaults() {
	if c.FlushIntervalInMs == 0 {
		c.FlushIntervalInMs = DefaultFlushIntervalInMs
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.ShutdownTimeInMs == 0 {
		c.ShutdownTimeInMs = DefaultShutdownTimeInMs
	}
	if c.Sender == "" {
		c.Sender = DefaultSender
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.FlushIntervalInMs < 100 || c.FlushIntervalInMs > 86400 {
		return fmt.Errorf("%w: %d", ErrInvalidFlushInterval, c.FlushIntervalInMs)
	}
	if c.MaxQueueSize < 8 || c.MaxQueueSize > 8192 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, c.MaxQueueSize)
	}
	if c.ShutdownTimeInMs < 100 || c.ShutdownTimeInMs > 10000 {
		return fmt.Errorf("%w: %d", ErrInvalidShutdownTime, c.ShutdownTimeInMs)
	}
	switch strings.ToLower(c.Sender) {
	case SenderHTTP, SenderUDP:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSender, c.Sender)
	}
	if strings.TrimSpace(c.Host) == "" {
		return ErrEmptyHost
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	return nil
}

// SenderKind 返回小写的发送方式.
func (c *Config) SenderKind() string {
	return strings.ToLower(c.Sender)
}

// Endpoint 返回 host:port.
func (c *Config) Endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL 返回 HTTP 发送器的上报地址.
func (c *Config) URL() string {
	return "http://" + c.Endpoint() + TracesPath
}

// FlushInterval 返回刷新间隔.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalInMs) * time.Millisecond
}

// ShutdownTimeout 返回关闭超时.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeInMs) * time.Millisecond
}
