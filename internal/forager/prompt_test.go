package forager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/colonyops/forager/internal/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplates_RenderItem(t *testing.T) {
	templates := LoadTemplates(config.Default())

	prompt, err := templates.RenderItem(checklist.Item{
		ID:       "T1-001",
		Target:   "Login flow",
		Priority: "P0",
		Risk:     "High",
		Tier:     "Tier 1: Core Flows",
	}, "break the bank", "/data/runs/tier_1/T1-001")
	require.NoError(t, err)

	assert.Contains(t, prompt, "T1-001")
	assert.Contains(t, prompt, "Login flow")
	assert.Contains(t, prompt, "break the bank")
	assert.Contains(t, prompt, "/data/runs/tier_1/T1-001")
	assert.Contains(t, prompt, CompletionMarker)
}

func TestLoadTemplates_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("custom prompt for {{ .ID }}"), 0o644))

	cfg := config.Default()
	cfg.PromptTemplatePath = path
	templates := LoadTemplates(cfg)

	prompt, err := templates.RenderItem(checklist.Item{ID: "X-1"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "custom prompt for X-1", prompt)
}

func TestLoadTemplates_MissingFileFallsBack(t *testing.T) {
	cfg := config.Default()
	cfg.SynthesisTemplatePath = filepath.Join(t.TempDir(), "absent.tmpl")
	templates := LoadTemplates(cfg)

	prompt, err := templates.RenderSynthesis(SynthesisPromptData{Mission: "m", Checklist: "c", Needed: 2})
	require.NoError(t, err)
	assert.Contains(t, prompt, "JSON object")
}
