package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/hay-kot/criterio"
)

// Validate checks the configuration before any subprocess work begins.
// Every problem is reported as a field error; a non-nil return aborts the
// run.
func (c Config) Validate() error {
	return criterio.ValidateStruct(
		c.validateSelection(),
		c.validatePolicy(),
		criterio.Run("checklist", c.ChecklistPath, checklistFileExists),
		c.validateTemplates(),
	)
}

func (c Config) validateSelection() error {
	var errs criterio.FieldErrorsBuilder

	if c.Mode != ModeFinite && c.Mode != ModeInfinite {
		errs = errs.Append("mode", fmt.Errorf("must be %q or %q, got %q", ModeFinite, ModeInfinite, c.Mode))
	}
	if !slices.Contains(agent.Names(), c.Runtime) {
		errs = errs.Append("runtime", fmt.Errorf("unsupported runtime %q", c.Runtime))
	}
	if c.BatchSize < 1 {
		errs = errs.Append("batch_size", fmt.Errorf("must be at least 1, got %d", c.BatchSize))
	}

	return errs.ToError()
}

func (c Config) validatePolicy() error {
	var errs criterio.FieldErrorsBuilder

	if c.MaxAttempts < 1 {
		errs = errs.Append("max_attempts", fmt.Errorf("must be at least 1, got %d", c.MaxAttempts))
	}
	if c.MaxItemAttempts < 1 {
		errs = errs.Append("max_item_attempts", fmt.Errorf("must be at least 1, got %d", c.MaxItemAttempts))
	}
	if c.MaxIterations < 1 {
		errs = errs.Append("max_iterations", fmt.Errorf("must be at least 1, got %d", c.MaxIterations))
	}
	if c.RetryDelay < 0 {
		errs = errs.Append("retry_delay", fmt.Errorf("must not be negative"))
	}
	if c.RateLimitCooldown < 0 {
		errs = errs.Append("rate_limit_cooldown", fmt.Errorf("must not be negative"))
	}
	if c.FreezeTimeout <= 0 {
		errs = errs.Append("freeze_timeout", fmt.Errorf("must be positive"))
	}

	return errs.ToError()
}

// validateTemplates checks that explicitly configured template files are
// readable. Empty paths fall back to the built-in templates.
func (c Config) validateTemplates() error {
	var errs criterio.FieldErrorsBuilder

	for field, path := range map[string]string{
		"prompt_template":    c.PromptTemplatePath,
		"synthesis_template": c.SynthesisTemplatePath,
		"report_template":    c.ReportTemplatePath,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = errs.Append(field, fmt.Errorf("file not found: %s", path))
		}
	}

	return errs.ToError()
}

// checklistFileExists enforces that the checklist ledger is present. Its
// absence is the one missing-file case that is fatal.
func checklistFileExists(path string) error {
	if path == "" {
		return fmt.Errorf("checklist path is required")
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("checklist not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	return nil
}
