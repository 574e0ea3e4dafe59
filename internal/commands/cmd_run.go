package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/colonyops/forager/internal/core/checklist"
	"github.com/colonyops/forager/internal/core/config"
	"github.com/colonyops/forager/internal/core/session"
	"github.com/colonyops/forager/internal/forager"
	"github.com/colonyops/forager/pkg/executil"
	"github.com/colonyops/forager/pkg/fsx"
	"github.com/colonyops/forager/pkg/lockmgr"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

type RunCmd struct {
	flags *Flags

	checklistPath     string
	missionPath       string
	mode              string
	batchSize         int
	runtime           string
	model             string
	maxAttempts       int
	retryDelay        time.Duration
	rateLimitCooldown time.Duration
	freezeTimeout     time.Duration
	maxIterations     int
	maxItemAttempts   int
	dryRun            bool
	resume            bool
}

// NewRunCmd creates a new run command
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Register adds the run command to the application
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Process the checklist backlog with agent sessions",
		UsageText: "forager run [options]",
		Description: `Reads the checklist ledger, dispatches each unfinished item to an agent
subprocess in bounded parallel batches, and writes outcomes back into the
ledger. Infinite mode refills the backlog through agent-driven synthesis.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "checklist",
				Usage:       "path to the checklist ledger",
				Sources:     cli.EnvVars("FORAGER_CHECKLIST"),
				Destination: &cmd.checklistPath,
			},
			&cli.StringFlag{
				Name:        "mission",
				Usage:       "path to the mission context document",
				Sources:     cli.EnvVars("FORAGER_MISSION"),
				Destination: &cmd.missionPath,
			},
			&cli.StringFlag{
				Name:        "mode",
				Usage:       "run mode (finite, infinite)",
				Destination: &cmd.mode,
			},
			&cli.IntFlag{
				Name:        "batch-size",
				Usage:       "max items dispatched concurrently per batch",
				Destination: &cmd.batchSize,
			},
			&cli.StringFlag{
				Name:        "runtime",
				Usage:       "agent runtime (opencode, claude-code)",
				Destination: &cmd.runtime,
			},
			&cli.StringFlag{
				Name:        "model",
				Usage:       "model override for the selected runtime",
				Destination: &cmd.model,
			},
			&cli.IntFlag{
				Name:        "max-attempts",
				Usage:       "retry attempts per agent session",
				Destination: &cmd.maxAttempts,
			},
			&cli.DurationFlag{
				Name:        "retry-delay",
				Usage:       "wait before retrying frozen or permission-denied attempts",
				Destination: &cmd.retryDelay,
			},
			&cli.DurationFlag{
				Name:        "rate-limit-cooldown",
				Usage:       "wait before retrying rate-limited attempts",
				Destination: &cmd.rateLimitCooldown,
			},
			&cli.DurationFlag{
				Name:        "freeze-timeout",
				Usage:       "kill an agent after this long without output",
				Destination: &cmd.freezeTimeout,
			},
			&cli.IntFlag{
				Name:        "max-iterations",
				Usage:       "orchestrator loop guard",
				Destination: &cmd.maxIterations,
			},
			&cli.IntFlag{
				Name:        "max-item-attempts",
				Usage:       "lifetime dispatch ceiling per item",
				Destination: &cmd.maxItemAttempts,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "report the items that would be selected, touch nothing",
				Destination: &cmd.dryRun,
			},
			&cli.BoolFlag{
				Name:        "resume",
				Usage:       "keep in-progress rows instead of resetting them",
				Destination: &cmd.resume,
			},
		},
		Action: cmd.run,
	})

	return app
}

// mergeFlags overlays the command line onto the loaded config. Only flags
// the user actually set override the file.
func (cmd *RunCmd) mergeFlags(cfg config.Config) config.Config {
	if cmd.checklistPath != "" {
		cfg.ChecklistPath = cmd.checklistPath
	}
	if cmd.missionPath != "" {
		cfg.MissionPath = cmd.missionPath
	}
	if cmd.mode != "" {
		cfg.Mode = config.Mode(cmd.mode)
	}
	if cmd.batchSize > 0 {
		cfg.BatchSize = cmd.batchSize
	}
	if cmd.runtime != "" {
		cfg.Runtime = cmd.runtime
	}
	if cmd.model != "" {
		cfg.Model = cmd.model
	}
	if cmd.maxAttempts > 0 {
		cfg.MaxAttempts = cmd.maxAttempts
	}
	if cmd.retryDelay > 0 {
		cfg.RetryDelay = config.Duration(cmd.retryDelay)
	}
	if cmd.rateLimitCooldown > 0 {
		cfg.RateLimitCooldown = config.Duration(cmd.rateLimitCooldown)
	}
	if cmd.freezeTimeout > 0 {
		cfg.FreezeTimeout = config.Duration(cmd.freezeTimeout)
	}
	if cmd.maxIterations > 0 {
		cfg.MaxIterations = cmd.maxIterations
	}
	if cmd.maxItemAttempts > 0 {
		cfg.MaxItemAttempts = cmd.maxItemAttempts
	}
	cfg.DryRun = cmd.dryRun
	cfg.Resume = cmd.resume
	return cfg
}

func (cmd *RunCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.mergeFlags(cmd.flags.Config)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runtime, err := agent.New(cfg.Runtime, cfg.AgentOptions())
	if err != nil {
		return err
	}
	inv := runtime.BuildInvocation()

	mission, err := fsx.ReadString(cfg.MissionPath)
	if err != nil || mission == "" {
		log.Warn().Str("path", cfg.MissionPath).Msg("mission document missing, substituting empty text")
		mission = ""
	}

	store := checklist.NewStore(cfg.ChecklistPath, lockmgr.New(), log.With().Str("component", "checklist").Logger())

	runner := session.NewRunner(
		&executil.RealStarter{},
		session.Config{
			MaxAttempts:       cfg.MaxAttempts,
			RetryDelay:        cfg.RetryDelay.Std(),
			RateLimitCooldown: cfg.RateLimitCooldown.Std(),
			FreezeTimeout:     cfg.FreezeTimeout.Std(),
			LogDir:            cfg.SessionLogDir(),
		},
		log.With().Str("component", "session").Logger(),
	)

	templates := forager.LoadTemplates(cfg)

	var synth *forager.Synthesizer
	if cfg.Mode == config.ModeInfinite {
		synth = forager.NewSynthesizer(store, runner, inv, templates, log.Logger)
	}

	orch := forager.NewOrchestrator(
		cfg,
		store,
		runner,
		inv,
		templates,
		synth,
		forager.NewTierReporter(runner, inv, templates, cfg.RunsDir(), log.Logger),
		forager.NewStateFile(cfg.StatePath()),
		mission,
		log.Logger,
	)

	log.Info().
		Str("runtime", runtime.Name()).
		Str("model", runtime.Model()).
		Str("mode", string(cfg.Mode)).
		Int("batch_size", cfg.BatchSize).
		Bool("dry_run", cfg.DryRun).
		Msg("starting run")

	sum, err := orch.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	if cfg.DryRun {
		fmt.Fprintf(os.Stdout, "Would dispatch %d item(s):\n", len(sum.Selected))
		for _, it := range sum.Selected {
			fmt.Fprintf(os.Stdout, "  %s\n", checklist.FormatRow(it))
		}
		return nil
	}

	fmt.Fprintf(os.Stdout, "Run finished: %d batch(es), %d processed, %d completed, %d failed\n",
		sum.Batches, sum.Processed, sum.Completed, sum.Failed)

	if sum.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d item(s) ended in failure", sum.Failed), 1)
	}
	if ctx.Err() != nil {
		return cli.Exit("run interrupted", 1)
	}
	return nil
}
