package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{
				"-d", "db", "-s", "memory", "-m", "file:m.db", "-l", ":9999",
				"-k", "redis", "-r", "redis:6379", "-t", "30", "-w", "45", "-z", "Europe/Riga", "-log", "/tmp/r.log",
				"-c", "ignored.json",
			},
			expected: &Config{
				DatabaseDSN:    "db",
				StorageBackend: "memory",
				MirrorDSN:      "file:m.db",
				LiveAddr:       ":9999",
				CacheBackend:   "redis",
				RedisAddr:      "redis:6379",
				CacheTTL:       30 * time.Second,
				LeadWindow:     45 * time.Minute,
				Timezone:       "Europe/Riga",
				LogFile:        "/tmp/r.log",
			},
		},
		{
			name:        "bad int",
			args:        []string{"-w", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config, tt.args) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config, tt.args) })
			assert.Empty(t, cmp.Diff(config, tt.expected))
		})
	}
}
