package forager

import (
	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/colonyops/forager/internal/core/config"
	"github.com/colonyops/forager/pkg/fsx"
	"github.com/colonyops/forager/pkg/tmpl"
)

// CompletionMarker is the string a well-behaved agent prints when it
// finishes an item. Detection is advisory; classification still governs
// the outcome.
const CompletionMarker = "ITEM_COMPLETE"

const defaultItemPrompt = `You are an autonomous engineering agent working one checklist item.

## Mission Context
{{ .Mission }}

## Assigned Item
- ID: {{ .ID }}
- Target: {{ .Target }}
- Priority: {{ .Priority }}
- Risk: {{ .Risk }}
- Tier: {{ .Tier }}

Work only on this item. Write all outputs under {{ .RunDir }}.
Produce a final report at {{ .RunDir }}/{{ .ID }}-FINAL-REPORT.md.
When the item is fully done, print the marker ` + CompletionMarker + ` on its own line.`

const defaultSynthesisPrompt = `You are expanding a work backlog.

## Mission Context
{{ .Mission }}

## Current Checklist
{{ .Checklist }}

Propose at most {{ .Needed }} new checklist items that advance the mission
and do not duplicate existing rows. Respond with strictly a JSON object of
the form {"items": [{"id": "...", "target": "...", "priority": "...",
"risk": "...", "status": "...", "tier": "..."}]} and nothing else.`

const defaultReportPrompt = `You are writing an aggregated tier report.

## Mission Context
{{ .Mission }}

## Tier
{{ .TierName }}

## Checklist Rows
{{ .ChecklistRows }}

## Per-Item Reports
{{ .Digest }}

Write a single markdown document starting with a top-level heading that
summarizes the outcomes across this tier.`

// ItemPromptData feeds the per-item work prompt.
type ItemPromptData struct {
	ID       string
	Target   string
	Priority string
	Risk     string
	Tier     string
	Section  string
	Mission  string
	RunDir   string
}

// SynthesisPromptData feeds the backlog synthesis prompt.
type SynthesisPromptData struct {
	Mission   string
	Checklist string
	Needed    int
}

// ReportPromptData feeds the tier report prompt.
type ReportPromptData struct {
	TierName      string
	ChecklistRows string
	Mission       string
	Digest        string
}

// Templates holds the three prompt templates, each either loaded from a
// configured file or the built-in fallback.
type Templates struct {
	item      string
	synthesis string
	report    string
}

// LoadTemplates resolves the prompt templates from the config. Configured
// paths were validated at startup; a read failure here falls back to the
// built-in text.
func LoadTemplates(cfg config.Config) Templates {
	return Templates{
		item:      loadOr(cfg.PromptTemplatePath, defaultItemPrompt),
		synthesis: loadOr(cfg.SynthesisTemplatePath, defaultSynthesisPrompt),
		report:    loadOr(cfg.ReportTemplatePath, defaultReportPrompt),
	}
}

func loadOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	content, err := fsx.ReadString(path)
	if err != nil || content == "" {
		return fallback
	}
	return content
}

// RenderItem renders the work prompt for one checklist item.
func (t Templates) RenderItem(item checklist.Item, mission, runDir string) (string, error) {
	return tmpl.Render(t.item, ItemPromptData{
		ID:       item.ID,
		Target:   item.Target,
		Priority: item.Priority,
		Risk:     item.Risk,
		Tier:     item.Tier,
		Section:  item.Section,
		Mission:  mission,
		RunDir:   runDir,
	})
}

// RenderSynthesis renders the backlog synthesis prompt.
func (t Templates) RenderSynthesis(data SynthesisPromptData) (string, error) {
	return tmpl.Render(t.synthesis, data)
}

// RenderReport renders the tier report prompt.
func (t Templates) RenderReport(data ReportPromptData) (string, error) {
	return tmpl.Render(t.report, data)
}
