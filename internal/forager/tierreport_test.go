package forager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/colonyops/forager/internal/core/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedTier(tier string) []checklist.Item {
	return []checklist.Item{
		{ID: "T1-001", Target: "Login flow", Priority: "P0", Risk: "High", Status: checklist.StatusComplete, Tier: tier},
		{ID: "T1-002", Target: "Logout flow", Priority: "P1", Risk: "Low", Status: checklist.StatusComplete, Tier: tier},
	}
}

func newReporter(t *testing.T, runner *stubRunner) (*TierReporter, string) {
	t.Helper()
	runsDir := filepath.Join(t.TempDir(), "runs")
	cfg := fixtureTemplates(t)
	return NewTierReporter(runner, testInv, cfg, runsDir, zerolog.Nop()), runsDir
}

func fixtureTemplates(t *testing.T) Templates {
	t.Helper()
	return Templates{item: defaultItemPrompt, synthesis: defaultSynthesisPrompt, report: defaultReportPrompt}
}

func TestTierReporter_GeneratesOnce(t *testing.T) {
	runner := &stubRunner{respond: synthRespond("# Tier 1 Report\n\nAll good.")}
	reporter, _ := newReporter(t, runner)
	items := completedTier("Tier 1: Core Flows")

	reporter.Check(context.Background(), items, "mission")
	assert.Equal(t, 1, runner.calls())

	content, err := os.ReadFile(reporter.ReportPath("## Tier 1: Core Flows"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "# Tier 1 Report"))

	// Repeated passes never regenerate an existing report.
	reporter.Check(context.Background(), items, "mission")
	reporter.Check(context.Background(), items, "mission")
	assert.Equal(t, 1, runner.calls())
}

func TestTierReporter_SkipsIncompleteTiers(t *testing.T) {
	runner := &stubRunner{respond: synthRespond("# Report")}
	reporter, _ := newReporter(t, runner)

	items := completedTier("Tier 1: Core Flows")
	items[1].Status = checklist.StatusFailed

	reporter.Check(context.Background(), items, "mission")
	assert.Zero(t, runner.calls())
}

func TestTierReporter_DigestIncludesItemReports(t *testing.T) {
	runner := &stubRunner{respond: synthRespond("# Report")}
	reporter, runsDir := newReporter(t, runner)
	items := completedTier("Tier 1: Core Flows")

	// One item produced a report, the other did not.
	itemDir := filepath.Join(runsDir, "tier_1_core_flows", "T1-001")
	require.NoError(t, os.MkdirAll(itemDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(itemDir, "T1-001-FINAL-REPORT.md"), []byte("Found SQLi in login."), 0o644))

	reporter.Check(context.Background(), items, "mission")
	require.Equal(t, 1, runner.calls())

	prompt := runner.prompts[0]
	assert.Contains(t, prompt, "Found SQLi in login.")
	assert.Contains(t, prompt, "_No report was produced for this item._")
	assert.Contains(t, prompt, "| T1-001 | Login flow | P0 | High |")
}

func TestTierReporter_AgentFailureLeavesTierEligible(t *testing.T) {
	runner := &stubRunner{respond: func(string) (session.Result, error) {
		return session.Result{}, errors.New("agent down")
	}}
	reporter, _ := newReporter(t, runner)
	items := completedTier("Tier 1: Core Flows")

	reporter.Check(context.Background(), items, "mission")
	_, err := os.Stat(reporter.ReportPath("## Tier 1: Core Flows"))
	assert.True(t, os.IsNotExist(err))

	// The next pass tries again.
	runner.respond = synthRespond("# Recovered Report")
	reporter.Check(context.Background(), items, "mission")
	assert.Equal(t, 2, runner.calls())

	_, err = os.Stat(reporter.ReportPath("## Tier 1: Core Flows"))
	assert.NoError(t, err)
}

func TestTierReporter_BrokenTemplateFallsBack(t *testing.T) {
	runner := &stubRunner{respond: synthRespond("# Report")}
	runsDir := filepath.Join(t.TempDir(), "runs")
	templates := fixtureTemplates(t)
	templates.report = "{{ .NoSuchField }}"
	reporter := NewTierReporter(runner, testInv, templates, runsDir, zerolog.Nop())

	items := completedTier("Tier 1: Core Flows")
	reporter.Check(context.Background(), items, "mission")

	content, err := os.ReadFile(reporter.ReportPath("## Tier 1: Core Flows"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "# Tier 1: Core Flows Tier Report")
	assert.Zero(t, runner.calls(), "fallback path skips the agent entirely")
}

func TestSanitizeReport(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "strips preamble before heading",
			raw:  "Sure, here is the report you asked for:\n\n# Findings\n\nBody.",
			want: "# Findings\n\nBody.",
		},
		{
			name: "strips ansi sequences",
			raw:  "\x1b[1m# Findings\x1b[0m\nBody.",
			want: "# Findings\nBody.",
		},
		{
			name: "filters tool noise without heading",
			raw:  "| running tool |\nUseful line.\n[tool] reading file\nAnother line.",
			want: "Useful line.\nAnother line.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeReport(tt.raw))
		})
	}
}
