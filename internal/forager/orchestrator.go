package forager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/colonyops/forager/internal/core/config"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Summary is the terminal accounting of one orchestrator run.
type Summary struct {
	Batches   int
	Processed int
	Completed int
	Failed    int

	// Selected is populated instead of dispatching when dry-run is set.
	Selected []checklist.Item
}

// Orchestrator drives the batch loop: select remaining items, fan them out
// to agent sessions, write outcomes back to the ledger, and consult the
// synthesizer and tier reporter between batches.
type Orchestrator struct {
	cfg       config.Config
	store     *checklist.Store
	runner    SessionRunner
	inv       agent.Invocation
	templates Templates
	synth     *Synthesizer
	reporter  *TierReporter
	state     *StateFile
	mission   string
	log       zerolog.Logger

	// attempts tracks lifetime dispatch counts per item id, independent of
	// the per-session retry ceiling.
	attempts map[string]int
}

// NewOrchestrator wires an Orchestrator from explicit dependencies. synth
// may be nil for finite mode.
func NewOrchestrator(
	cfg config.Config,
	store *checklist.Store,
	runner SessionRunner,
	inv agent.Invocation,
	templates Templates,
	synth *Synthesizer,
	reporter *TierReporter,
	state *StateFile,
	mission string,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		runner:    runner,
		inv:       inv,
		templates: templates,
		synth:     synth,
		reporter:  reporter,
		state:     state,
		mission:   mission,
		log:       log.With().Str("component", "orchestrator").Logger(),
		attempts:  make(map[string]int),
	}
}

// Run executes the orchestration loop until the backlog is exhausted
// (finite mode), the iteration guard trips, or ctx is cancelled. Item
// failures are recorded in the summary, never returned as errors.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	var sum Summary

	if !o.cfg.Resume && !o.cfg.DryRun {
		if err := o.resetInterrupted(); err != nil {
			return sum, err
		}
	}

	defer o.checkpoint(&sum, started, false)

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}

		items, err := o.store.Parse()
		if err != nil {
			return sum, err
		}
		remaining := checklist.Remaining(items)

		if o.cfg.Mode == config.ModeInfinite && o.synth != nil && !o.cfg.DryRun && len(remaining) < o.cfg.BatchSize {
			needed := o.cfg.BatchSize - len(remaining)
			if _, err := o.synth.Synthesize(ctx, o.mission, items, needed); err != nil {
				if ctx.Err() != nil {
					return sum, ctx.Err()
				}
				o.log.Warn().Err(err).Msg("backlog synthesis failed, continuing")
			}

			items, err = o.store.Parse()
			if err != nil {
				return sum, err
			}
			remaining = checklist.Remaining(items)
		}

		if len(remaining) == 0 {
			if o.cfg.Mode == config.ModeFinite {
				o.log.Info().Int("batches", sum.Batches).Msg("backlog empty, run complete")
				return sum, nil
			}
			o.log.Debug().Int("iteration", iteration).Msg("nothing to dispatch this iteration")
			continue
		}

		batch, capped := o.selectBatch(remaining)
		for _, it := range capped {
			o.log.Error().Str("id", it.ID).Int("attempts", o.attempts[it.ID]).
				Msg("item exceeded lifetime attempt cap, marking failed")
			if err := o.store.UpdateStatus(it.ID, checklist.StatusFailed); err != nil {
				o.log.Warn().Err(err).Str("id", it.ID).Msg("failed to record capped item")
			}
			sum.Failed++
		}
		if len(batch) == 0 {
			if o.cfg.Mode == config.ModeFinite {
				o.log.Info().Msg("no dispatchable items left, run complete")
				return sum, nil
			}
			continue
		}

		if o.cfg.DryRun {
			sum.Selected = append(sum.Selected, batch...)
			o.log.Info().Int("selected", len(batch)).Msg("dry-run: reporting selection only")
			return sum, nil
		}

		sum.Batches++
		o.log.Info().
			Int("batch", sum.Batches).
			Int("size", len(batch)).
			Int("remaining", len(remaining)).
			Msg("dispatching batch")

		completed, failed := o.dispatch(ctx, batch)
		sum.Processed += len(batch)
		sum.Completed += completed
		sum.Failed += failed

		o.checkpoint(&sum, started, true)

		items, err = o.store.Parse()
		if err != nil {
			return sum, err
		}
		o.reporter.Check(ctx, items, o.mission)

		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if o.cfg.Mode == config.ModeFinite && len(checklist.Remaining(items)) == 0 {
			o.log.Info().Int("batches", sum.Batches).Msg("backlog empty, run complete")
			return sum, nil
		}
	}

	o.log.Warn().Int("max_iterations", o.cfg.MaxIterations).Msg("iteration guard reached, stopping")
	return sum, nil
}

// selectBatch takes the first batchSize eligible items in document order,
// diverting items over the lifetime attempt cap into capped.
func (o *Orchestrator) selectBatch(remaining []checklist.Item) (batch, capped []checklist.Item) {
	for _, it := range remaining {
		if len(batch) == o.cfg.BatchSize {
			break
		}
		if o.attempts[it.ID] >= o.cfg.MaxItemAttempts {
			if !it.Failed() {
				capped = append(capped, it)
			}
			continue
		}
		batch = append(batch, it)
	}
	return batch, capped
}

// dispatch fans the batch out concurrently, collects every outcome, and
// writes all status markers back. A failing item never aborts its peers.
func (o *Orchestrator) dispatch(ctx context.Context, batch []checklist.Item) (completed, failed int) {
	results := make([]error, len(batch))

	var g errgroup.Group
	for i, it := range batch {
		o.attempts[it.ID]++

		g.Go(func() error {
			results[i] = o.runItem(ctx, it)
			return nil
		})
	}
	_ = g.Wait()

	for i, it := range batch {
		if errors.Is(results[i], context.Canceled) || errors.Is(results[i], context.DeadlineExceeded) {
			// Shutdown, not item failure. The row stays in progress and
			// is reset when the next run starts.
			o.log.Info().Str("id", it.ID).Msg("item interrupted by shutdown")
			continue
		}

		marker := checklist.StatusComplete
		if results[i] != nil {
			marker = checklist.StatusFailed
		}
		if err := o.store.UpdateStatus(it.ID, marker); err != nil {
			o.log.Error().Err(err).Str("id", it.ID).Msg("status writeback failed")
		}

		if results[i] == nil {
			completed++
		} else {
			failed++
		}
	}

	return completed, failed
}

// runItem prepares one item's workspace and runs its agent session.
func (o *Orchestrator) runItem(ctx context.Context, item checklist.Item) error {
	log := o.log.With().Str("id", item.ID).Logger()

	runDir, err := o.scaffoldRunDir(item)
	if err != nil {
		log.Error().Err(err).Msg("failed to create run workspace")
		return err
	}

	prompt, err := o.templates.RenderItem(item, o.mission, runDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to render item prompt")
		return err
	}

	if err := o.store.UpdateStatus(item.ID, checklist.StatusInProgress); err != nil {
		log.Warn().Err(err).Msg("could not mark item in progress")
	}

	res, err := o.runner.Run(ctx, o.inv, prompt)
	if err != nil {
		log.Error().Err(err).Int("attempts", res.Attempts).Msg("item failed")
		return err
	}

	if !strings.Contains(res.Output, CompletionMarker) {
		log.Warn().Msg("agent succeeded without printing the completion marker")
	}

	log.Info().Int("attempts", res.Attempts).Msg("item completed")
	return nil
}

// scaffoldRunDir creates runs/<tier>/<id> with its results and artifacts
// subdirectories.
func (o *Orchestrator) scaffoldRunDir(item checklist.Item) (string, error) {
	heading := checklist.ResolveTierHeading(item, nil)
	dir := filepath.Join(o.cfg.RunsDir(), checklist.SanitizedTierName(heading), item.ID)

	for _, sub := range []string{"results", "artifacts"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create run dir: %w", err)
		}
	}
	return dir, nil
}

// resetInterrupted returns in-progress rows to not-started so a crashed
// run's items become eligible again. Skipped with --resume.
func (o *Orchestrator) resetInterrupted() error {
	items, err := o.store.Parse()
	if err != nil {
		return err
	}

	for _, it := range items {
		if !it.InProgress() {
			continue
		}
		o.log.Info().Str("id", it.ID).Msg("resetting interrupted item")
		if err := o.store.UpdateStatus(it.ID, checklist.StatusNotStarted); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint persists the advisory run state. Never fatal.
func (o *Orchestrator) checkpoint(sum *Summary, started time.Time, active bool) {
	if o.state == nil || o.cfg.DryRun {
		return
	}

	err := o.state.Save(State{
		Active:         active,
		CurrentBatch:   sum.Batches,
		TotalBatches:   sum.Batches,
		ItemsProcessed: sum.Processed,
		ItemsCompleted: sum.Completed,
		ItemsFailed:    sum.Failed,
		StartedAt:      started,
		LastCheckpoint: time.Now(),
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to persist run state")
	}
}
