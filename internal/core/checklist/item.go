// Package checklist parses and mutates the tiered markdown backlog that
// doubles as the run's ledger. All reads and writes of the checklist file
// go through this package; callers never manipulate the raw text.
package checklist

import (
	"regexp"
	"strings"
)

// Status markers used in the ledger's Status column. The glyphs are the
// machine-readable part: completion is detected by the check glyph and
// failure by the cross glyph, so human edits to the trailing words do not
// confuse the parser.
const (
	StatusNotStarted = "☐ Not Started"
	StatusInProgress = "🔄 In Progress"
	StatusComplete   = "✅ Complete"
	StatusFailed     = "❌ Failed"
)

const (
	completeGlyph   = "✅"
	failedGlyph     = "❌"
	inProgressGlyph = "🔄"
)

// Item is one row of the checklist ledger.
type Item struct {
	ID       string `json:"id"`
	Target   string `json:"target"`
	Priority string `json:"priority"`
	Risk     string `json:"risk"`
	Status   string `json:"status"`
	Tier     string `json:"tier,omitempty"`
	Section  string `json:"section,omitempty"`
}

// Completed reports whether the item carries the completion glyph.
func (i Item) Completed() bool {
	return strings.Contains(i.Status, completeGlyph)
}

// Failed reports whether the item carries the failure glyph.
func (i Item) Failed() bool {
	return strings.Contains(i.Status, failedGlyph)
}

// InProgress reports whether the item carries the in-progress glyph,
// typically left behind by an interrupted run.
func (i Item) InProgress() bool {
	return strings.Contains(i.Status, inProgressGlyph)
}

// Remaining filters out completed items. Failed items stay eligible for
// re-selection; the orchestrator applies its own lifetime attempt cap.
func Remaining(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if !it.Completed() {
			out = append(out, it)
		}
	}
	return out
}

// PrefixTierMap maps each item's id prefix (the substring before the first
// dash, uppercased) to its tier heading. Synthesized rows that arrive
// without a heading are placed via this lookup.
func PrefixTierMap(items []Item) map[string]string {
	m := make(map[string]string)
	for _, it := range items {
		prefix := idPrefix(it.ID)
		if prefix != "" && it.Tier != "" {
			m[prefix] = it.Tier
		}
	}
	return m
}

func idPrefix(id string) string {
	if before, _, ok := strings.Cut(id, "-"); ok {
		return strings.ToUpper(before)
	}
	return strings.ToUpper(id)
}

// ResolveTierHeading returns the markdown heading line for the item's
// tier, or "" when neither the item nor the prefix map can place it.
func ResolveTierHeading(item Item, prefixTiers map[string]string) string {
	if item.Tier != "" {
		return ensureHeading(item.Tier)
	}

	if tier, ok := prefixTiers[idPrefix(item.ID)]; ok {
		return ensureHeading(tier)
	}

	return ""
}

func ensureHeading(tier string) string {
	if strings.HasPrefix(tier, "## ") {
		return tier
	}
	return "## " + tier
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SanitizedTierName converts a tier heading to a filesystem-safe directory
// name: lowercase, alphanumeric runs joined by single underscores.
func SanitizedTierName(heading string) string {
	name := strings.TrimPrefix(strings.TrimSpace(heading), "## ")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.ToLower(strings.Trim(name, "_"))
	if name == "" {
		return "uncategorized"
	}
	return name
}
