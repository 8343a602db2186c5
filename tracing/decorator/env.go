package decorator

import "github.com/spf13/viper"

// 部署平台注入的环境变量.
const (
	EnvAppName    = "MARATHON_APP_LABEL_NAME"
	EnvAppVersion = "MARATHON_APP_LABEL_VERSION"
	EnvHost       = "HOST"
)

// 环境标签名.
const (
	TagAppName    = "app.name"
	TagAppVersion = "app.version"
	TagAppHost    = "app.host"
)

// 环境变量缺失时的默认值.
const (
	DefaultAppName    = "NA"
	DefaultAppVersion = "NA"
	DefaultHost       = "localhost"
)

// EnvOrDefault 读取环境变量，未设置或为空时返回 def.
func EnvOrDefault(name, def string) string {
	v := viper.New()
	// AllowEmptyEnv 默认关闭，空值视为未设置
	if err := v.BindEnv("value", name); err != nil {
		return def
	}
	v.SetDefault("value", def)
	return v.GetString("value")
}

// EnvTags 读取应用名、版本和主机名.
func EnvTags() map[string]string {
	return map[string]string{
		TagAppName:    EnvOrDefault(EnvAppName, DefaultAppName),
		TagAppVersion: EnvOrDefault(EnvAppVersion, DefaultAppVersion),
		TagAppHost:    EnvOrDefault(EnvHost, DefaultHost),
	}
}
