// Package agent resolves which external agent runtime to invoke and how.
package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Invocation is the fully-resolved command line for one agent runtime.
// It is immutable once built.
type Invocation struct {
	Command string
	Args    []string
	Label   string
}

// String renders the invocation for log output.
func (i Invocation) String() string {
	if len(i.Args) == 0 {
		return i.Command
	}
	return i.Command + " " + strings.Join(i.Args, " ")
}

// Spec describes one supported runtime: its default binary and model, the
// captured environment overrides, and the argument layout it expects.
type Spec struct {
	Name           string
	Label          string
	DefaultCommand string
	DefaultModel   string

	// CommandOverride and ModelOverride hold environment-sourced values
	// captured once at config load. They are never read from ambient
	// process state after construction.
	CommandOverride string
	ModelOverride   string

	// buildArgs maps the resolved model into the runtime's fixed
	// subcommand and flag layout.
	buildArgs func(model string) []string
}

// Supported runtime names.
const (
	RuntimeOpenCode   = "opencode"
	RuntimeClaudeCode = "claude-code"
)

// Env var names consulted once at startup for each runtime.
const (
	EnvOpenCodeBin   = "OPENCODE_BIN"
	EnvOpenCodeModel = "FORAGER_OPENCODE_MODEL"
	EnvClaudeBin     = "CLAUDE_CODE_BIN"
	EnvClaudeModel   = "FORAGER_CLAUDE_MODEL"
)

// specs is the closed set of supported runtimes. Extending support means
// adding an entry here, not passing ad hoc strings.
func specs() map[string]Spec {
	return map[string]Spec{
		RuntimeOpenCode: {
			Name:           RuntimeOpenCode,
			Label:          "OpenCode",
			DefaultCommand: "opencode",
			DefaultModel:   "minimax-coding-plan/MiniMax-M2.1",
			buildArgs: func(model string) []string {
				args := []string{"run"}
				if model != "" {
					args = append(args, "--model", model)
				}
				return args
			},
		},
		RuntimeClaudeCode: {
			Name:           RuntimeClaudeCode,
			Label:          "Claude Code",
			DefaultCommand: "claude",
			DefaultModel:   "claude-4.5-sonnet",
			buildArgs: func(model string) []string {
				args := []string{"code"}
				if model != "" {
					args = append(args, "--model", model)
				}
				return args
			},
		},
	}
}

// Names returns the supported runtime names, sorted.
func Names() []string {
	s := specs()
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Runtime is an immutable, fully-resolved runtime configuration.
type Runtime struct {
	spec  Spec
	model string
}

// Options capture the explicit overrides and environment values that feed
// runtime resolution. Env lookups happen in the caller (config load); this
// package stays pure.
type Options struct {
	Model           string // explicit override, highest precedence
	CommandOverride string // environment-sourced binary path
	ModelOverride   string // environment-sourced model
}

// New resolves a runtime by name. Unsupported names fail with an error
// listing the valid options.
func New(name string, opts Options) (Runtime, error) {
	spec, ok := specs()[name]
	if !ok {
		return Runtime{}, fmt.Errorf("unsupported runtime %q (valid: %s)", name, strings.Join(Names(), ", "))
	}

	spec.CommandOverride = opts.CommandOverride
	spec.ModelOverride = opts.ModelOverride

	return Runtime{spec: spec, model: opts.Model}, nil
}

// Name returns the runtime's canonical name.
func (r Runtime) Name() string { return r.spec.Name }

// Label returns the human-readable runtime label.
func (r Runtime) Label() string { return r.spec.Label }

// Command resolves the binary to invoke: environment override first, then
// the runtime's default command.
func (r Runtime) Command() string {
	if r.spec.CommandOverride != "" {
		return r.spec.CommandOverride
	}
	return r.spec.DefaultCommand
}

// Model resolves the model with precedence: explicit override, captured
// environment configuration, built-in default.
func (r Runtime) Model() string {
	if r.model != "" {
		return r.model
	}
	if r.spec.ModelOverride != "" {
		return r.spec.ModelOverride
	}
	return r.spec.DefaultModel
}

// BuildInvocation maps the resolved command and model into the argument
// vector this runtime expects.
func (r Runtime) BuildInvocation() Invocation {
	return Invocation{
		Command: r.Command(),
		Args:    r.spec.buildArgs(r.Model()),
		Label:   r.spec.Name,
	}
}
