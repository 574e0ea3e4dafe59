package forager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/colonyops/forager/internal/core/config"
	"github.com/colonyops/forager/internal/core/session"
	"github.com/colonyops/forager/pkg/lockmgr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const twoItemDoc = `# Backlog

## Tier 1: Core Flows

| ID | Target | Priority | Risk | Status |
|----|--------|----------|------|--------|
| T1-001 | Login flow | P0 | High | ☐ Not Started |
| T1-002 | Logout flow | P1 | Low | ☐ Not Started |
`

var testInv = agent.Invocation{Command: "opencode", Args: []string{"run"}, Label: "opencode"}

// stubRunner answers every session with a scripted function and records
// the prompts it saw.
type stubRunner struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (session.Result, error)
}

func (s *stubRunner) Run(_ context.Context, _ agent.Invocation, prompt string) (session.Result, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.respond == nil {
		return session.Result{Outcome: session.OutcomeSuccess, Output: CompletionMarker, Attempts: 1}, nil
	}
	return s.respond(prompt)
}

func (s *stubRunner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// sessionRunnerFunc adapts a bare function to the SessionRunner interface
// for tests that need the context or invocation.
type sessionRunnerFunc func(ctx context.Context, inv agent.Invocation, prompt string) (session.Result, error)

func (f sessionRunnerFunc) Run(ctx context.Context, inv agent.Invocation, prompt string) (session.Result, error) {
	return f(ctx, inv, prompt)
}

func succeedAlways(string) (session.Result, error) {
	return session.Result{Outcome: session.OutcomeSuccess, Output: "done\n" + CompletionMarker, Attempts: 1}, nil
}

func failAlways(string) (session.Result, error) {
	return session.Result{Outcome: session.OutcomeOtherFailure, ExitCode: 1, Attempts: 1},
		&session.FailureError{Outcome: session.OutcomeOtherFailure, ExitCode: 1, Attempts: 1}
}

type fixture struct {
	cfg      config.Config
	store    *checklist.Store
	runner   *stubRunner
	reporter *stubRunner
}

func newFixture(t *testing.T, doc string) *fixture {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "CHECKLIST.md")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg := config.Default()
	cfg.ChecklistPath = path
	cfg.DataDir = filepath.Join(dir, "data")

	return &fixture{
		cfg:      cfg,
		store:    checklist.NewStore(path, lockmgr.New(), zerolog.Nop()),
		runner:   &stubRunner{respond: succeedAlways},
		reporter: &stubRunner{respond: succeedAlways},
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	templates := LoadTemplates(f.cfg)
	var synth *Synthesizer
	if f.cfg.Mode == config.ModeInfinite {
		synth = NewSynthesizer(f.store, f.runner, testInv, templates, zerolog.Nop())
	}

	reporter := NewTierReporter(f.reporter, testInv, templates, f.cfg.RunsDir(), zerolog.Nop())
	state := NewStateFile(f.cfg.StatePath())

	return NewOrchestrator(f.cfg, f.store, f.runner, testInv, templates, synth, reporter, state, "mission text", zerolog.Nop())
}

func (f *fixture) items(t *testing.T) []checklist.Item {
	t.Helper()
	items, err := f.store.Parse()
	require.NoError(t, err)
	return items
}
