// Package config handles configuration loading and validation for forager.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/colonyops/forager/internal/core/agent"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// ("15s", "5m") or from bare integers interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int64
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string or integer seconds: %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Mode selects how the orchestration loop terminates.
type Mode string

// Supported run modes.
const (
	// ModeFinite stops once the checklist has no remaining items.
	ModeFinite Mode = "finite"
	// ModeInfinite refills the backlog through synthesis and loops until
	// the iteration guard or an external shutdown.
	ModeInfinite Mode = "infinite"
)

// RuntimeEnv holds the agent-runtime environment overrides, captured once
// at config load. Nothing below the config layer reads the process
// environment.
type RuntimeEnv struct {
	OpenCodeBin   string
	OpenCodeModel string
	ClaudeBin     string
	ClaudeModel   string
}

// CaptureRuntimeEnv snapshots the runtime override variables. This is the
// only place they are read.
func CaptureRuntimeEnv() RuntimeEnv {
	return RuntimeEnv{
		OpenCodeBin:   os.Getenv(agent.EnvOpenCodeBin),
		OpenCodeModel: os.Getenv(agent.EnvOpenCodeModel),
		ClaudeBin:     os.Getenv(agent.EnvClaudeBin),
		ClaudeModel:   os.Getenv(agent.EnvClaudeModel),
	}
}

// Config is the immutable run configuration. It is built once at startup
// from defaults, the optional YAML file, flags, and the captured runtime
// environment, then passed by value everywhere.
type Config struct {
	ChecklistPath string `yaml:"checklist"`
	MissionPath   string `yaml:"mission"`

	Mode      Mode   `yaml:"mode"`
	BatchSize int    `yaml:"batch_size"`
	Runtime   string `yaml:"runtime"`
	Model     string `yaml:"model"`

	MaxAttempts       int      `yaml:"max_attempts"`
	RetryDelay        Duration `yaml:"retry_delay"`
	RateLimitCooldown Duration `yaml:"rate_limit_cooldown"`
	FreezeTimeout     Duration `yaml:"freeze_timeout"`
	MaxIterations     int      `yaml:"max_iterations"`
	MaxItemAttempts   int      `yaml:"max_item_attempts"`

	PromptTemplatePath    string `yaml:"prompt_template"`
	SynthesisTemplatePath string `yaml:"synthesis_template"`
	ReportTemplatePath    string `yaml:"report_template"`

	DataDir string     `yaml:"-"` // set by caller, not from config file
	DryRun  bool       `yaml:"-"`
	Resume  bool       `yaml:"-"`
	Env     RuntimeEnv `yaml:"-"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ChecklistPath:     "CHECKLIST.md",
		MissionPath:       "MISSION.md",
		Mode:              ModeFinite,
		BatchSize:         5,
		Runtime:           agent.RuntimeOpenCode,
		MaxAttempts:       3,
		RetryDelay:        Duration(15 * time.Second),
		RateLimitCooldown: Duration(5 * time.Minute),
		FreezeTimeout:     Duration(2 * time.Minute),
		MaxIterations:     20,
		MaxItemAttempts:   5,
	}
}

// Load reads configuration from the given path, overlaying it on the
// defaults. A missing or empty configPath returns defaults unchanged; the
// runtime environment is captured here in either case.
func Load(configPath, dataDir string) (Config, error) {
	cfg := Default()
	cfg.DataDir = dataDir
	cfg.Env = CaptureRuntimeEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}

			cfg.DataDir = dataDir
			cfg.Env = CaptureRuntimeEnv()
		}
	}

	return cfg, nil
}

// AgentOptions maps the config onto the selected runtime's resolution
// inputs. The captured environment feeds in here so the agent package
// stays pure.
func (c Config) AgentOptions() agent.Options {
	opts := agent.Options{Model: c.Model}
	switch c.Runtime {
	case agent.RuntimeOpenCode:
		opts.CommandOverride = c.Env.OpenCodeBin
		opts.ModelOverride = c.Env.OpenCodeModel
	case agent.RuntimeClaudeCode:
		opts.CommandOverride = c.Env.ClaudeBin
		opts.ModelOverride = c.Env.ClaudeModel
	}
	return opts
}

// StatePath is where the run state JSON lives.
func (c Config) StatePath() string { return filepath.Join(c.DataDir, "state.json") }

// RunsDir holds per-item run workspaces, one per {tier, id}.
func (c Config) RunsDir() string { return filepath.Join(c.DataDir, "runs") }

// SessionLogDir holds per-attempt agent transcripts.
func (c Config) SessionLogDir() string { return filepath.Join(c.DataDir, "sessions") }

// ArchiveDir receives artifacts moved aside by the clean command.
func (c Config) ArchiveDir() string { return filepath.Join(c.DataDir, "archive") }
