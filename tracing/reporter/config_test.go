package reporter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 1000, cfg.FlushIntervalInMs)
	assert.Equal(t, 100, cfg.MaxQueueSize)
	assert.Equal(t, 1000, cfg.ShutdownTimeInMs)
	assert.Equal(t, SenderUDP, cfg.Sender)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 80, cfg.Port)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{"flush interval too small", func(c *Config) { c.FlushIntervalInMs = 99 }, ErrInvalidFlushInterval},
		{"flush interval too large", func(c *Config) { c.FlushIntervalInMs = 86401 }, ErrInvalidFlushInterval},
		{"queue too small", func(c *Config) { c.MaxQueueSize = 7 }, ErrInvalidQueueSize},
		{"queue too large", func(c *Config) { c.MaxQueueSize = 8193 }, ErrInvalidQueueSize},
		{"shutdown too small", func(c *Config) { c.ShutdownTimeInMs = 50 }, ErrInvalidShutdownTime},
		{"shutdown too large", func(c *Config) { c.ShutdownTimeInMs = 10001 }, ErrInvalidShutdownTime},
		{"unknown sender", func(c *Config) { c.Sender = "grpc" }, ErrInvalidSender},
		{"blank host", func(c *Config) { c.Host = "  " }, ErrEmptyHost},
		{"negative port", func(c *Config) { c.Port = -1 }, ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.err)
		})
	}

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)
}

func TestConfig_Bounds(t *testing.T) {
	cfg := &Config{
		FlushIntervalInMs: 100,
		MaxQueueSize:      8192,
		ShutdownTimeInMs:  10000,
		Sender:            "HTTP",
		Host:              "collector",
		Port:              14268,
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, SenderHTTP, cfg.SenderKind())
	assert.Equal(t, "collector:14268", cfg.Endpoint())
	assert.Equal(t, "http://collector:14268/api/traces", cfg.URL())
	assert.Equal(t, 100*time.Millisecond, cfg.FlushInterval())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
}
