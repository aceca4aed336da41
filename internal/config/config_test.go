package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.Equal(t, "claude-3-7-sonnet-20250219", cfg.Anthropic.Model)
	assert.Equal(t, 1000, cfg.Anthropic.MaxTokens)
	assert.Equal(t, 1500, cfg.Anthropic.ToolMaxTokens)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, BackendMemory, cfg.Store.ProfileBackend)
	assert.Equal(t, 30*time.Minute, cfg.Session.ActiveWindow)
	assert.Equal(t, 24*time.Hour, cfg.Session.Retention)
	assert.Equal(t, 5, cfg.AI.ToolMaxIterations)
}

func TestLoadServerAddrVariants(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "90 00")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRedisFallsBackToMemoryProfiles(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, BackendMemory, cfg.Store.ProfileBackend)
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LLM_PROVIDER":          "openai",
		"STORE_BACKEND":         "cassandra",
		"SESSION_ACTIVE_WINDOW": "soon",
		"COMPLETION_TIMEOUT":    "-5s",
		"ARK_TEMPERATURE":       "hot",
		"RATE_LIMIT_PER_MINUTE": "many",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRetentionNeverShorterThanWindow(t *testing.T) {
	t.Setenv("SESSION_ACTIVE_WINDOW", "2h")
	t.Setenv("SESSION_RETENTION", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Session.Retention)
}

func TestAIConfigEnabled(t *testing.T) {
	assert.False(t, AIConfig{}.Enabled())
	assert.True(t, AIConfig{Model: "m", APIKey: "k"}.Enabled())
	assert.True(t, AIConfig{Model: "m", AccessKey: "a", SecretKey: "s"}.Enabled())
	assert.False(t, AIConfig{Model: "m", AccessKey: "a"}.Enabled())
}
