package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TASK_STATUS_TTL", "")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 72*time.Hour, cfg.TaskStatusTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.TaskResultTTL)
	assert.Equal(t, 5*time.Second, cfg.TaskProgressInterval)
	assert.Equal(t, "X-API-Key", cfg.APIKeyHeader)
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "duration string", value: "90s", want: 90 * time.Second},
		{name: "bare seconds", value: "120", want: 2 * time.Minute},
		{name: "garbage falls back", value: "soon", want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", time.Hour))
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " http://a.test , ,http://b.test")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, getEnvAsList("TEST_LIST", nil))
}
