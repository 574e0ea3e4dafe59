package forager

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
)

// FallbackBacklogTier receives synthesized items that arrive without a
// usable tier of their own.
const FallbackBacklogTier = "Tier 4: Reliability & Backlog Expansion"

// Synthesizer refills the backlog in infinite mode by asking the agent for
// new checklist items and appending the parsed result to the ledger.
type Synthesizer struct {
	store     *checklist.Store
	runner    SessionRunner
	inv       agent.Invocation
	templates Templates
	log       zerolog.Logger

	// now is swappable for deterministic id generation in tests.
	now func() time.Time
}

// NewSynthesizer creates a Synthesizer appending through the given store.
func NewSynthesizer(store *checklist.Store, runner SessionRunner, inv agent.Invocation, templates Templates, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		store:     store,
		runner:    runner,
		inv:       inv,
		templates: templates,
		log:       log.With().Str("component", "synthesizer").Logger(),
		now:       time.Now,
	}
}

// Synthesize asks the agent for up to needed new items and appends the
// accepted ones. Parse failures yield zero items and a nil error; the run
// continues without new backlog this cycle. The returned count is how many
// rows were actually appended.
func (s *Synthesizer) Synthesize(ctx context.Context, mission string, existing []checklist.Item, needed int) (int, error) {
	if needed <= 0 {
		return 0, nil
	}

	checklistText, err := s.store.Read()
	if err != nil {
		return 0, fmt.Errorf("read checklist for synthesis: %w", err)
	}

	prompt, err := s.templates.RenderSynthesis(SynthesisPromptData{
		Mission:   mission,
		Checklist: checklistText,
		Needed:    needed,
	})
	if err != nil {
		return 0, fmt.Errorf("render synthesis prompt: %w", err)
	}

	s.log.Info().Int("needed", needed).Msg("synthesizing backlog items")

	res, err := s.runner.Run(ctx, s.inv, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.log.Warn().Err(err).Msg("synthesis agent failed, no backlog added this cycle")
		return 0, nil
	}

	candidates := parseSynthesisPayload(res.Output, s.log)
	if len(candidates) == 0 {
		s.log.Warn().Msg("synthesis response yielded no items")
		return 0, nil
	}

	items := s.coerce(candidates, existing, needed)
	if len(items) == 0 {
		return 0, nil
	}

	appended, skipped, err := s.store.AppendRows(items, checklist.PrefixTierMap(existing))
	if err != nil {
		return 0, fmt.Errorf("append synthesized rows: %w", err)
	}
	if skipped > 0 {
		s.log.Warn().Int("skipped", skipped).Msg("synthesized items without resolvable tier were skipped")
	}

	s.log.Info().Int("appended", appended).Msg("backlog synthesis complete")
	return appended, nil
}

// synthItem is the agent-facing JSON shape for one proposed item.
type synthItem struct {
	ID       string `json:"id"`
	Target   string `json:"target"`
	Priority string `json:"priority"`
	Risk     string `json:"risk"`
	Status   string `json:"status"`
	Tier     string `json:"tier"`
}

type synthPayload struct {
	Items []synthItem `json:"items"`
}

// parseSynthesisPayload extracts the items array from unstructured agent
// output. Extraction order: labeled json fence, any fence, whole text,
// first balanced brace span. Unparseable output is logged and yields nil.
func parseSynthesisPayload(output string, log zerolog.Logger) []synthItem {
	for _, candidate := range jsonCandidates(output) {
		var payload synthPayload
		if err := json.Unmarshal([]byte(candidate), &payload); err == nil && len(payload.Items) > 0 {
			return payload.Items
		}
	}

	log.Warn().Int("output_len", len(output)).Msg("could not parse synthesis JSON payload")
	return nil
}

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	anyFenceRe  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
)

func jsonCandidates(output string) []string {
	var out []string

	if m := jsonFenceRe.FindStringSubmatch(output); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if m := anyFenceRe.FindStringSubmatch(output); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}

	out = append(out, strings.TrimSpace(output))

	if span := balancedBraceSpan(output); span != "" {
		out = append(out, span)
	}

	return out
}

// balancedBraceSpan returns the first balanced {...} region of s, tracking
// strings and escapes so braces inside JSON values do not miscount.
func balancedBraceSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// coerce validates candidates, fills defaults, assigns collision-free ids,
// and truncates to needed.
func (s *Synthesizer) coerce(candidates []synthItem, existing []checklist.Item, needed int) []checklist.Item {
	existingIDs := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		existingIDs[it.ID] = struct{}{}
	}

	stamp := s.now().UnixMilli()
	ordinal := 0
	nextID := func() string {
		for {
			ordinal++
			id := fmt.Sprintf("INF-%d-%d", stamp, ordinal)
			if _, taken := existingIDs[id]; !taken {
				return id
			}
		}
	}

	out := make([]checklist.Item, 0, needed)
	for i, c := range candidates {
		if len(out) == needed {
			break
		}

		if err := validateCandidate(i, c); err != nil {
			s.log.Warn().Err(err).Msg("rejecting synthesized item")
			continue
		}

		item := checklist.Item{
			ID:       strings.TrimSpace(c.ID),
			Target:   strings.TrimSpace(c.Target),
			Priority: valueOr(c.Priority, "P2"),
			Risk:     valueOr(c.Risk, "Moderate"),
			Status:   valueOr(c.Status, checklist.StatusNotStarted),
			Tier:     valueOr(c.Tier, FallbackBacklogTier),
		}

		if _, taken := existingIDs[item.ID]; item.ID == "" || taken {
			item.ID = nextID()
		}
		existingIDs[item.ID] = struct{}{}

		out = append(out, item)
	}

	return out
}

func validateCandidate(i int, c synthItem) error {
	var errs criterio.FieldErrorsBuilder
	if strings.TrimSpace(c.Target) == "" {
		errs = errs.Append(fmt.Sprintf("items[%d].target", i), fmt.Errorf("target is required"))
	}
	return errs.ToError()
}

func valueOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
