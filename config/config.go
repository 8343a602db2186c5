// Package config 提供基于 viper 的配置加载.
package config

import (
	"path/filepath"
	"strings"
)

// Validatable 可验证的配置接口.
//
// Load 系列函数在解析完成后会调用 Validate，验证失败时返回 ErrValidation.
type Validatable interface {
	Validate() error
}

// GetConfigType 根据文件扩展名获取配置类型.
func GetConfigType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	case ".env":
		return "env"
	case ".properties":
		return "properties"
	default:
		return ""
	}
}
