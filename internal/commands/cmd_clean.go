package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

type CleanCmd struct {
	flags *Flags

	match   string
	archive bool
	force   bool
}

// NewCleanCmd creates a new clean command
func NewCleanCmd(flags *Flags) *CleanCmd {
	return &CleanCmd{flags: flags}
}

// Register adds the clean command to the application
func (cmd *CleanCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "clean",
		Usage:     "Remove or archive run artifacts and state",
		UsageText: "forager clean [--match GLOB] [--archive] --force",
		Description: `Deletes run workspaces, session transcripts, and the persisted run state
under the data directory. With --archive, matched artifacts are moved into
a timestamped archive directory instead of being deleted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "match",
				Usage:       "glob selecting artifacts relative to the data directory",
				Value:       "{runs,sessions}/**",
				Destination: &cmd.match,
			},
			&cli.BoolFlag{
				Name:        "archive",
				Usage:       "move artifacts into the archive directory instead of deleting",
				Destination: &cmd.archive,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "confirm the destructive operation",
				Destination: &cmd.force,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *CleanCmd) run(ctx context.Context, c *cli.Command) error {
	if !cmd.force {
		return fmt.Errorf("clean is destructive; re-run with --force to confirm")
	}

	dataDir := cmd.flags.Config.DataDir
	matched, err := cmd.collect(dataDir)
	if err != nil {
		return err
	}

	if len(matched) == 0 {
		fmt.Fprintln(os.Stdout, "Nothing to clean.")
		return nil
	}

	if cmd.archive {
		return cmd.archiveAll(dataDir, matched)
	}
	return cmd.deleteAll(dataDir, matched)
}

// collect returns the top-level matches of the glob under dataDir. Only
// the shallowest matched path per subtree is kept so a directory and its
// children are not processed twice.
func (cmd *CleanCmd) collect(dataDir string) ([]string, error) {
	fsys := os.DirFS(dataDir)

	all, err := doublestar.Glob(fsys, cmd.match)
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", cmd.match, err)
	}

	// State always goes with the artifacts it describes.
	if _, err := os.Stat(filepath.Join(dataDir, "state.json")); err == nil {
		all = append(all, "state.json")
	}

	// Glob results sort with parents before children, so a match whose
	// ancestor is already kept is redundant.
	sort.Strings(all)
	var roots []string
	for _, rel := range all {
		if len(roots) > 0 && strings.HasPrefix(rel, roots[len(roots)-1]+"/") {
			continue
		}
		roots = append(roots, rel)
	}
	return roots, nil
}

func (cmd *CleanCmd) archiveAll(dataDir string, matched []string) error {
	archiveDir := filepath.Join(cmd.flags.Config.ArchiveDir(), time.Now().Format("20060102-150405"))

	for _, rel := range matched {
		dest := filepath.Join(archiveDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create archive dir: %w", err)
		}
		if err := os.Rename(filepath.Join(dataDir, rel), dest); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		log.Debug().Str("path", rel).Msg("archived artifact")
	}

	fmt.Fprintf(os.Stdout, "Archived %d artifact(s) to %s\n", len(matched), archiveDir)
	return nil
}

func (cmd *CleanCmd) deleteAll(dataDir string, matched []string) error {
	for _, rel := range matched {
		if err := os.RemoveAll(filepath.Join(dataDir, rel)); err != nil {
			return fmt.Errorf("remove %s: %w", rel, err)
		}
		log.Debug().Str("path", rel).Msg("removed artifact")
	}

	fmt.Fprintf(os.Stdout, "Removed %d artifact(s)\n", len(matched))
	return nil
}
