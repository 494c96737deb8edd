// Package config loads intentgraph configuration from
// <workspace>/.intentgraph/config.json with INTENTGRAPH_* environment
// overrides. Missing file means defaults; a malformed file is an error.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LimitsConfig bounds every loop and resource the engine touches.
// All limits are hard: exceeding one is an error, not a warning.
type LimitsConfig struct {
	// MaxToolTurns caps model/tool iterations in one orchestrator run.
	MaxToolTurns int `json:"max_tool_turns"`
	// MaxRetries caps rate-limit retries per backend call.
	MaxRetries int `json:"max_retries"`
	// MaxSubAgents caps concurrently active delegated sub-agents.
	MaxSubAgents int `json:"max_sub_agents"`
	// SandboxTimeoutSec bounds one sandboxed script execution.
	SandboxTimeoutSec int `json:"sandbox_timeout_sec"`
	// RetryBackoffBaseMs is the base wait for exponential backoff when the
	// backend gives no retry hint.
	RetryBackoffBaseMs int `json:"retry_backoff_base_ms"`
}

// LLMConfig configures the chat backend.
type LLMConfig struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
	TimeoutSec int    `json:"timeout_sec"`
	MaxTokens  int    `json:"max_tokens"`
}

// LoggingConfig mirrors the shape read by the logging package.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level"`
}

// SandboxConfig scopes the script executor's filesystem view.
type SandboxConfig struct {
	// Roots are the directories scripts may read from. Empty means the
	// workspace root only.
	Roots []string `json:"roots,omitempty"`
}

// Config is the full runtime configuration.
type Config struct {
	Workspace string        `json:"-"`
	Limits    LimitsConfig  `json:"limits"`
	LLM       LLMConfig     `json:"llm"`
	Sandbox   SandboxConfig `json:"sandbox"`
	Logging   LoggingConfig `json:"logging"`
}

// Default returns production defaults.
func Default() *Config {
	return &Config{
		Limits: LimitsConfig{
			MaxToolTurns:       10,
			MaxRetries:         3,
			MaxSubAgents:       5,
			SandboxTimeoutSec:  5,
			RetryBackoffBaseMs: 1000,
		},
		LLM: LLMConfig{
			Provider:   "anthropic",
			BaseURL:    "https://api.anthropic.com/v1",
			Model:      "claude-sonnet-4-5",
			TimeoutSec: 120,
			MaxTokens:  4096,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads config for the workspace, overlaying file values on defaults and
// environment overrides on both.
func Load(workspace string) (*Config, error) {
	cfg := Default()
	cfg.Workspace = workspace

	path := filepath.Join(workspace, ".intentgraph", "config.json")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if len(cfg.Sandbox.Roots) == 0 && workspace != "" {
		cfg.Sandbox.Roots = []string{workspace}
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INTENTGRAPH_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	// Fall back to the provider's conventional variable.
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if v := os.Getenv("INTENTGRAPH_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("INTENTGRAPH_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("INTENTGRAPH_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("INTENTGRAPH_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	if v := os.Getenv("INTENTGRAPH_MAX_TOOL_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Limits.MaxToolTurns = n
		}
	}
	if v := os.Getenv("INTENTGRAPH_MAX_SUB_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Limits.MaxSubAgents = n
		}
	}
}

// SandboxTimeout returns the sandbox timeout as a duration.
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Limits.SandboxTimeoutSec) * time.Second
}

// RetryBackoffBase returns the backoff base as a duration.
func (c *Config) RetryBackoffBase() time.Duration {
	return time.Duration(c.Limits.RetryBackoffBaseMs) * time.Millisecond
}

// LLMTimeout returns the backend call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}
