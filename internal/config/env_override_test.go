package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("LLM gateway", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LLM_API_BASE", "http://gateway:3000/api")
		t.Setenv("LLM_API_KEY", "sk-env")
		t.Setenv("LLM_MODEL", "llama3")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://gateway:3000/api", cfg.LLM.BaseURL)
		assert.Equal(t, "sk-env", cfg.LLM.APIKey)
		assert.Equal(t, "llama3", cfg.LLM.Model)
	})

	t.Run("Gemini key only applies to gemini provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Empty(t, cfg.LLM.APIKey)

		t.Setenv("LLM_PROVIDER", "gemini")
		cfg = DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gemini", cfg.LLM.Provider)
		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	})

	t.Run("LLM_API_KEY wins over GEMINI_API_KEY", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LLM_PROVIDER", "gemini")
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("LLM_API_KEY", "generic")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "generic", cfg.LLM.APIKey)
	})

	t.Run("queue and sandbox", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REDIS_ADDR", "redis:6380")
		t.Setenv("REDIS_PASSWORD", "hunter2")
		t.Setenv("SYNTH_SANDBOX_MODE", "namespace")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "redis:6380", cfg.Queue.Addr)
		assert.Equal(t, "hunter2", cfg.Queue.Password)
		assert.Equal(t, "namespace", cfg.Sandbox.Mode)
	})

	t.Run("empty values leave config untouched", func(t *testing.T) {
		clearEnv(t)
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, DefaultConfig(), cfg)
	})
}
