package logger

import (
	"fmt"
	"strings"
)

// Config 日志配置.
type Config struct {
	Type        string `json:"type" yaml:"type" mapstructure:"type"`
	ServiceName string `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Format      string `json:"format" yaml:"format" mapstructure:"format"`

	// Output 输出目标: console, file, both
	Output string `json:"output" yaml:"output" mapstructure:"output"`
	// FilePath 日志文件路径，Output 为 file 或 both 时必填
	FilePath string `json:"file_path" yaml:"file_path" mapstructure:"file_path"`

	EnableCaller     bool `json:"enable_caller" yaml:"enable_caller" mapstructure:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace" yaml:"enable_stacktrace" mapstructure:"enable_stacktrace"`
}

// ConfigError 配置错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("logger config error [%s]: %s", e.Field, e.Message)
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigError{Field: "config", Message: "config cannot be nil"}
	}

	if c.Level != "" && !isValidLevel(c.Level) {
		return &ConfigError{Field: "level", Message: "invalid log level: " + c.Level}
	}

	if c.Format != "" && !isValidFormat(c.Format) {
		return &ConfigError{Field: "format", Message: "invalid format: " + c.Format}
	}

	if c.Output != "" && !isValidOutput(c.Output) {
		return &ConfigError{Field: "output", Message: "invalid output: " + c.Output}
	}

	if c.needsFileOutput() && c.FilePath == "" {
		return &ConfigError{Field: "file_path", Message: "file_path is required when output is file or both"}
	}

	return nil
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeZap
	}
	if c.Level == "" {
		c.Level = LevelInfo
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == "" {
		c.Output = OutputConsole
	}
	if c.ServiceName == "" {
		c.ServiceName = "service"
	}
}

func (c *Config) needsFileOutput() bool {
	output := strings.ToLower(c.Output)
	return output == OutputFile || output == OutputBoth
}

func (c *Config) needsConsoleOutput() bool {
	output := strings.ToLower(c.Output)
	return output == OutputConsole || output == OutputBoth
}

func isValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case LevelDebug, LevelInfo, LevelWarn, "warning", LevelError, LevelFatal, LevelPanic:
		return true
	}
	return false
}

func isValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatJSON, FormatConsole:
		return true
	}
	return false
}

func isValidOutput(output string) bool {
	switch strings.ToLower(output) {
	case OutputConsole, OutputFile, OutputBoth:
		return true
	}
	return false
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	config := &Config{}
	config.ApplyDefaults()
	return config
}

// NewDevConfig 返回开发环境配置.
func NewDevConfig() *Config {
	return &Config{
		Type:         TypeZap,
		Level:        LevelDebug,
		Format:       FormatConsole,
		Output:       OutputConsole,
		EnableCaller: true,
	}
}
