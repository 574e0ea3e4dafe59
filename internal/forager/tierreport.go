package forager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/colonyops/forager/pkg/fsx"
	"github.com/rs/zerolog"
)

// TierReporter produces one aggregated report per fully-completed tier.
// The report artifact's presence is the done-marker, so a tier is reported
// at most once across repeated passes.
type TierReporter struct {
	runner    SessionRunner
	inv       agent.Invocation
	templates Templates
	runsDir   string
	log       zerolog.Logger
}

// NewTierReporter creates a TierReporter writing under runsDir.
func NewTierReporter(runner SessionRunner, inv agent.Invocation, templates Templates, runsDir string, log zerolog.Logger) *TierReporter {
	return &TierReporter{
		runner:    runner,
		inv:       inv,
		templates: templates,
		runsDir:   runsDir,
		log:       log.With().Str("component", "tier_reporter").Logger(),
	}
}

// Check scans all items and generates reports for tiers that are fully
// completed and not yet reported. Failures are logged and leave the tier
// eligible on a later pass; Check itself never fails the run.
func (t *TierReporter) Check(ctx context.Context, items []checklist.Item, mission string) {
	for _, heading := range completedTiers(items) {
		if ctx.Err() != nil {
			return
		}
		if err := t.generate(ctx, heading, tierItems(items, heading), mission); err != nil {
			t.log.Warn().Err(err).Str("tier", heading).Msg("tier report generation failed, tier stays eligible")
		}
	}
}

// ReportPath returns where the aggregated report for a tier heading lives.
func (t *TierReporter) ReportPath(heading string) string {
	name := checklist.SanitizedTierName(heading)
	return filepath.Join(t.runsDir, name, name+"-FINAL-REPORT.md")
}

func (t *TierReporter) generate(ctx context.Context, heading string, items []checklist.Item, mission string) error {
	reportPath := t.ReportPath(heading)
	if _, err := os.Stat(reportPath); err == nil {
		return nil
	}

	digest := t.buildDigest(heading, items)

	var rows []string
	for _, it := range items {
		rows = append(rows, checklist.FormatRow(it))
	}

	prompt, err := t.templates.RenderReport(ReportPromptData{
		TierName:      strings.TrimPrefix(heading, "## "),
		ChecklistRows: strings.Join(rows, "\n"),
		Mission:       mission,
		Digest:        digest,
	})

	var report string
	if err != nil {
		// A broken template never blocks the report; fall back to the
		// plain digest.
		t.log.Warn().Err(err).Msg("report template failed, using fallback")
		report = fallbackReport(heading, digest)
	} else {
		res, runErr := t.runner.Run(ctx, t.inv, prompt)
		if runErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("report agent failed: %w", runErr)
		}
		report = SanitizeReport(res.Output)
		if strings.TrimSpace(report) == "" {
			report = fallbackReport(heading, digest)
		}
	}

	if err := fsx.WriteAtomic(reportPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write tier report: %w", err)
	}

	t.log.Info().Str("tier", heading).Str("path", reportPath).Msg("tier report written")
	return nil
}

// buildDigest concatenates each item's individual report, substituting a
// placeholder where one was never produced.
func (t *TierReporter) buildDigest(heading string, items []checklist.Item) string {
	tierDir := filepath.Join(t.runsDir, checklist.SanitizedTierName(heading))

	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "## %s: %s\n\n", it.ID, it.Target)

		content, err := fsx.ReadString(filepath.Join(tierDir, it.ID, it.ID+"-FINAL-REPORT.md"))
		if err != nil || strings.TrimSpace(content) == "" {
			b.WriteString("_No report was produced for this item._\n\n")
			continue
		}
		b.WriteString(strings.TrimSpace(content))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func fallbackReport(heading, digest string) string {
	return fmt.Sprintf("# %s Tier Report\n\n%s\n", strings.TrimPrefix(heading, "## "), digest)
}

// completedTiers returns the headings whose items are all completion
// marked, in stable sorted order.
func completedTiers(items []checklist.Item) []string {
	total := make(map[string]int)
	done := make(map[string]int)

	for _, it := range items {
		heading := checklist.ResolveTierHeading(it, nil)
		if heading == "" {
			continue
		}
		total[heading]++
		if it.Completed() {
			done[heading]++
		}
	}

	var out []string
	for heading, n := range total {
		if done[heading] == n {
			out = append(out, heading)
		}
	}
	sort.Strings(out)
	return out
}

func tierItems(items []checklist.Item, heading string) []checklist.Item {
	var out []checklist.Item
	for _, it := range items {
		if checklist.ResolveTierHeading(it, nil) == heading {
			out = append(out, it)
		}
	}
	return out
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// toolNoiseTokens mark lines of agent tool-call chatter that should not
// appear in a persisted report.
var toolNoiseTokens = []string{"tool_use", "tool_result", "[tool]", "<tool"}

// SanitizeReport strips ANSI sequences and conversational preamble from a
// raw agent response. If a top-level heading exists, everything before it
// is dropped; otherwise pipe-leading and tool-noise lines are filtered.
func SanitizeReport(raw string) string {
	clean := ansiRe.ReplaceAllString(raw, "")

	lines := strings.Split(clean, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.Join(lines[i:], "\n"))
		}
	}

	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") {
			continue
		}
		if hasToolNoise(strings.ToLower(trimmed)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func hasToolNoise(line string) bool {
	for _, tok := range toolNoiseTokens {
		if strings.Contains(line, tok) {
			return true
		}
	}
	return false
}
