package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_APIKey(t *testing.T) {
	t.Run("INTENTGRAPH_API_KEY wins", func(t *testing.T) {
		t.Setenv("INTENTGRAPH_API_KEY", "own-key")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, "own-key", cfg.LLM.APIKey)
	})

	t.Run("falls back to ANTHROPIC_API_KEY", func(t *testing.T) {
		t.Setenv("INTENTGRAPH_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.LLM.APIKey)
	})

	t.Run("file value survives when env is empty", func(t *testing.T) {
		t.Setenv("INTENTGRAPH_API_KEY", "")
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := Default()
		cfg.LLM.APIKey = "from-file"
		cfg.applyEnvOverrides()

		assert.Equal(t, "from-file", cfg.LLM.APIKey)
	})
}

func TestEnvOverrides_Limits(t *testing.T) {
	t.Run("valid values applied", func(t *testing.T) {
		t.Setenv("INTENTGRAPH_MAX_TOOL_TURNS", "20")
		t.Setenv("INTENTGRAPH_MAX_SUB_AGENTS", "2")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, 20, cfg.Limits.MaxToolTurns)
		assert.Equal(t, 2, cfg.Limits.MaxSubAgents)
	})

	t.Run("garbage and non-positive values ignored", func(t *testing.T) {
		t.Setenv("INTENTGRAPH_MAX_TOOL_TURNS", "lots")
		t.Setenv("INTENTGRAPH_MAX_SUB_AGENTS", "0")

		cfg := Default()
		cfg.applyEnvOverrides()

		require.Equal(t, 10, cfg.Limits.MaxToolTurns)
		require.Equal(t, 5, cfg.Limits.MaxSubAgents)
	})
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	require.Equal(t, "5s", cfg.SandboxTimeout().String())
	require.Equal(t, "1s", cfg.RetryBackoffBase().String())
	require.Equal(t, "2m0s", cfg.LLMTimeout().String())
}
