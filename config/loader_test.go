package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.Equal(t, "https://api.groq.com/openai", cfg.LLM.BaseURL)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLM.DefaultModel)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.Scheduler.RecentWindow)
	assert.Equal(t, 3, cfg.Scheduler.FlowWindow)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
store:
  type: sqlite
  sqlite_path: /tmp/rt.db
llm:
  default_model: other-model
  temperature: 0.2
scheduler:
  recent_window: 9
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store.Type)
	assert.Equal(t, "/tmp/rt.db", cfg.Store.SQLitePath)
	assert.Equal(t, "other-model", cfg.LLM.DefaultModel)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 9, cfg.Scheduler.RecentWindow)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched fields keep their defaults.
	assert.Equal(t, "https://api.groq.com/openai", cfg.LLM.BaseURL)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROUNDTABLE_STORE_TYPE", "redis")
	t.Setenv("ROUNDTABLE_STORE_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("ROUNDTABLE_LLM_API_KEY", "sk-test")
	t.Setenv("ROUNDTABLE_LLM_TIMEOUT", "15s")
	t.Setenv("ROUNDTABLE_LLM_MAX_TOKENS", "500")
	t.Setenv("ROUNDTABLE_SCHEDULER_PARTICIPATION_SHARE", "0.25")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Store.Type)
	assert.Equal(t, "redis.internal:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.25, cfg.Scheduler.ParticipationShare, 1e-9)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("RT_LOG_LEVEL", "warn")

	cfg, err := NewLoader().WithEnvPrefix("RT").Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidators(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.LLM.APIKey == "" {
				return errors.New("api key required")
			}
			return nil
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key required")
}
