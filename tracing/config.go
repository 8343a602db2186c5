// Package tracing 把 OpenTelemetry 追踪器接入 net/http 服务的请求生命周期.
//
// Bundle 读取配置，构建限速采样的 TracerProvider 与上报器，注册为进程级全局
// TracerProvider，并通过 Middleware 为每个请求创建服务端 span:
//
//	bundle, err := tracing.New(cfg, tracing.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	if err := bundle.Run(ctx); err != nil {
//	    return err
//	}
//	defer bundle.Close(context.Background())
//
//	handler := bundle.Middleware()(mux)
package tracing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Tsukikage7/tracing-bundle/config"
	"github.com/Tsukikage7/tracing-bundle/tracing/reporter"
)

// DefaultMaxTracesPerSecond 默认每秒最大 trace 数.
const DefaultMaxTracesPerSecond = 1

// Config 链路追踪配置.
type Config struct {
	// ServiceName 服务名，必填
	ServiceName string `json:"serviceName" yaml:"serviceName" mapstructure:"serviceName"`
	// LocalOnly 为 true 时 span 只保存在内存中
	LocalOnly bool `json:"localOnly" yaml:"localOnly" mapstructure:"localOnly"`
	// MaxTracesPerSecond 每秒最多采样的新 trace 数
	MaxTracesPerSecond float64 `json:"maxTracesPerSecond" yaml:"maxTracesPerSecond" mapstructure:"maxTracesPerSecond"`
	// Reporter 上报配置
	Reporter *reporter.Config `json:"reporter" yaml:"reporter" mapstructure:"reporter"`
	// TraceAll 为 false 时不为任何请求创建 span
	TraceAll bool `json:"traceAll" yaml:"traceAll" mapstructure:"traceAll"`
	// TraceSerialization 是否为请求体读取与响应体写入创建子 span
	TraceSerialization bool `json:"traceSerialization" yaml:"traceSerialization" mapstructure:"traceSerialization"`
	// SkipAPIPathPattern 完整匹配请求路径的正则，匹配的请求不创建 span
	SkipAPIPathPattern string `json:"skipApiPathPattern" yaml:"skipApiPathPattern" mapstructure:"skipApiPathPattern"`
	// EnableDynamicInjection 是否为发现的装饰器执行依赖注入
	EnableDynamicInjection bool `json:"enableDynamicInjection" yaml:"enableDynamicInjection" mapstructure:"enableDynamicInjection"`
	// DecoratorPackages 发现装饰器的包路径
	DecoratorPackages []string `json:"decoratorPackages" yaml:"decoratorPackages" mapstructure:"decoratorPackages"`
}

// DefaultConfig 返回默认配置，ServiceName 需要调用方设置.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 为零值字段填充默认值.
func (c *Config) ApplyDefaults() {
	if c.MaxTracesPerSecond == 0 {
		c.MaxTracesPerSecond = DefaultMaxTracesPerSecond
	}
	if c.Reporter == nil {
		c.Reporter = &reporter.Config{}
	}
	c.Reporter.ApplyDefaults()
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return ErrEmptyServiceName
	}
	if c.MaxTracesPerSecond < 1 {
		return fmt.Errorf("%w: %v", ErrInvalidMaxTraces, c.MaxTracesPerSecond)
	}
	if _, err := c.skipPattern(); err != nil {
		return err
	}
	if c.Reporter != nil {
		if err := c.Reporter.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidReporter, err)
		}
	}
	return nil
}

// skipPattern 编译跳过路径正则，未配置时返回 nil.
func (c *Config) skipPattern() (*regexp.Regexp, error) {
	if c.SkipAPIPathPattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(`^(?:` + c.SkipAPIPathPattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSkipPattern, err)
	}
	return re, nil
}

// clone 返回深拷贝.
func (c *Config) clone() *Config {
	out := *c
	if c.Reporter != nil {
		r := *c.Reporter
		out.Reporter = &r
	}
	out.DecoratorPackages = append([]string(nil), c.DecoratorPackages...)
	return &out
}

// configDefaults 加载配置时使用的默认值.
func configDefaults() map[string]any {
	return map[string]any{
		"maxTracesPerSecond":         DefaultMaxTracesPerSecond,
		"reporter.flushIntervalInMs": reporter.DefaultFlushIntervalInMs,
		"reporter.maxQueueSize":      reporter.DefaultMaxQueueSize,
		"reporter.shutdownTimeInMs":  reporter.DefaultShutdownTimeInMs,
		"reporter.sender":            reporter.DefaultSender,
		"reporter.host":              reporter.DefaultHost,
		"reporter.port":              reporter.DefaultPort,
	}
}

// LoadConfig 从文件加载配置.
//
// 未出现的 reporter 字段使用默认值，加载后执行校验.
func LoadConfig(path string, opts ...config.Option) (*Config, error) {
	opts = append([]config.Option{config.WithDefaults(configDefaults())}, opts...)
	return config.Load[Config](path, opts...)
}

// LoadConfigFromBytes 从字节数据加载配置.
func LoadConfigFromBytes(data []byte, configType string) (*Config, error) {
	return config.LoadFromBytes[Config](data, configType, config.WithDefaults(configDefaults()))
}
