package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/colonyops/forager/internal/forager"
	"github.com/colonyops/forager/pkg/iojson"
	"github.com/urfave/cli/v3"
)

var (
	statusTitleStyle  = lipgloss.NewStyle().Bold(true)
	statusLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusIdleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusFailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type StatusCmd struct {
	flags *Flags

	jsonOut bool
}

// NewStatusCmd creates a new status command
func NewStatusCmd(flags *Flags) *StatusCmd {
	return &StatusCmd{flags: flags}
}

// Register adds the status command to the application
func (cmd *StatusCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "status",
		Usage:     "Show the last persisted run state",
		UsageText: "forager status [--json]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOut,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *StatusCmd) run(ctx context.Context, c *cli.Command) error {
	state, err := forager.NewStateFile(cmd.flags.Config.StatePath()).Load()
	if err != nil {
		if errors.Is(err, forager.ErrNoState) {
			if cmd.jsonOut {
				return iojson.Write(map[string]any{"active": false, "message": "no run state found"})
			}
			fmt.Fprintln(os.Stdout, "No run state found. Start one with 'forager run'.")
			return nil
		}
		return err
	}

	if cmd.jsonOut {
		return iojson.Write(state)
	}

	activity := statusIdleStyle.Render("idle")
	if state.Active {
		activity = statusActiveStyle.Render("active")
	}

	failed := fmt.Sprintf("%d", state.ItemsFailed)
	if state.ItemsFailed > 0 {
		failed = statusFailStyle.Render(failed)
	}

	fmt.Fprintln(os.Stdout, statusTitleStyle.Render("forager run state"))
	fmt.Fprintf(os.Stdout, "%s %s\n", statusLabelStyle.Render("status:"), activity)
	fmt.Fprintf(os.Stdout, "%s %d\n", statusLabelStyle.Render("batches:"), state.TotalBatches)
	fmt.Fprintf(os.Stdout, "%s %d\n", statusLabelStyle.Render("processed:"), state.ItemsProcessed)
	fmt.Fprintf(os.Stdout, "%s %d\n", statusLabelStyle.Render("completed:"), state.ItemsCompleted)
	fmt.Fprintf(os.Stdout, "%s %s\n", statusLabelStyle.Render("failed:"), failed)
	fmt.Fprintf(os.Stdout, "%s %s\n", statusLabelStyle.Render("started:"), state.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "%s %s\n", statusLabelStyle.Render("checkpoint:"), state.LastCheckpoint.Format(time.RFC3339))

	return nil
}
