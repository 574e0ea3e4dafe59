package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) Config {
	t.Helper()

	cfg := Default()
	cfg.ChecklistPath = filepath.Join(t.TempDir(), "CHECKLIST.md")
	require.NoError(t, os.WriteFile(cfg.ChecklistPath, []byte("## Tier 1\n"), 0o644))
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"bad mode", func(c *Config) { c.Mode = "forever" }, "mode"},
		{"bad runtime", func(c *Config) { c.Runtime = "cursor" }, "runtime"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "max_attempts"},
		{"zero item cap", func(c *Config) { c.MaxItemAttempts = 0 }, "max_item_attempts"},
		{"zero freeze", func(c *Config) { c.FreezeTimeout = 0 }, "freeze_timeout"},
		{"missing checklist", func(c *Config) { c.ChecklistPath = "/nope/CHECKLIST.md" }, "checklist"},
		{"missing template", func(c *Config) { c.PromptTemplatePath = "/nope/prompt.tmpl" }, "prompt_template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "/data")
	require.NoError(t, err)

	assert.Equal(t, ModeFinite, cfg.Mode)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 5, cfg.MaxItemAttempts)
	assert.Equal(t, 15*time.Second, cfg.RetryDelay.Std())
	assert.Equal(t, 5*time.Minute, cfg.RateLimitCooldown.Std())
	assert.Equal(t, "/data", cfg.DataDir)
}

func TestLoad_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forager.yml")
	require.NoError(t, os.WriteFile(path, []byte("mode: infinite\nbatch_size: 8\nretry_delay: 2s\n"), 0o644))

	cfg, err := Load(path, "/data")
	require.NoError(t, err)

	assert.Equal(t, ModeInfinite, cfg.Mode)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay.Std())
	// Untouched keys keep defaults.
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"), "/data")
	require.NoError(t, err)
	assert.Equal(t, Default().BatchSize, cfg.BatchSize)
}

func TestConfig_AgentOptions(t *testing.T) {
	cfg := Default()
	cfg.Model = "my-model"
	cfg.Env = RuntimeEnv{OpenCodeBin: "/opt/oc", OpenCodeModel: "env-model", ClaudeBin: "/opt/claude"}

	opts := cfg.AgentOptions()
	assert.Equal(t, "my-model", opts.Model)
	assert.Equal(t, "/opt/oc", opts.CommandOverride)
	assert.Equal(t, "env-model", opts.ModelOverride)

	cfg.Runtime = "claude-code"
	opts = cfg.AgentOptions()
	assert.Equal(t, "/opt/claude", opts.CommandOverride)
	assert.Empty(t, opts.ModelOverride)
}
