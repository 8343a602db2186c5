package decorator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOrDefault(t *testing.T) {
	tests := []struct {
		name  string
		set   bool
		value string
		want  string
	}{
		{"present", true, "orders", "orders"},
		{"empty", true, "", "NA"},
		{"absent", false, "", "NA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv("TRACING_TEST_VAR", tt.value)
			}
			assert.Equal(t, tt.want, EnvOrDefault("TRACING_TEST_VAR", "NA"))
		})
	}
}

func TestEnvTags_Defaults(t *testing.T) {
	t.Setenv(EnvAppName, "")
	t.Setenv(EnvAppVersion, "")
	t.Setenv(EnvHost, "")

	assert.Equal(t, map[string]string{
		TagAppName:    "NA",
		TagAppVersion: "NA",
		TagAppHost:    "localhost",
	}, EnvTags())
}

func TestEnvTags_FromEnvironment(t *testing.T) {
	t.Setenv(EnvAppName, "orders-api")
	t.Setenv(EnvAppVersion, "1.4.2")
	t.Setenv(EnvHost, "node-7")

	tags := EnvTags()
	assert.Equal(t, "orders-api", tags[TagAppName])
	assert.Equal(t, "1.4.2", tags[TagAppVersion])
	assert.Equal(t, "node-7", tags[TagAppHost])
}
