package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/projsync/internal/journal"
	"github.com/steveyegge/projsync/internal/manifest"
	"github.com/steveyegge/projsync/internal/projectsystem"
	"github.com/steveyegge/projsync/internal/workspace"
)

var loadCmd = &cobra.Command{
	Use:     "load <manifest>",
	GroupID: "workspace",
	Short:   "Load a solution manifest and print the resulting workspace",
	Long: `Load a TOML or YAML solution manifest into a fresh workspace.

The manifest is validated first; nothing is created if any project is
invalid. Each project is then populated in a single batch, and references to
another project's output are converted to project references.

Example usage:
  psync load solution.toml
  psync load solution.yaml --record   # also append the events to the journal`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, _ := cmd.Flags().GetBool("record")
		ctx := cmd.Context()

		m, err := manifest.Load(args[0])
		if err != nil {
			return err
		}

		store := workspace.NewStore(workspace.WithLogger(newLogger("workspace")))
		defer store.Close()

		if record && cfg.Journal.Enabled {
			db, err := journal.Open(&journal.Config{Path: cfg.Journal.Path, Logger: newLogger("journal")})
			if err != nil {
				return err
			}
			defer db.Close()
			detach := db.Attach(store)
			defer detach()
		}

		factory := projectsystem.NewFactory(store,
			projectsystem.WithHost(projectsystem.MaxLanguageVersionHost{}),
			projectsystem.WithDynamicFilesDebounce(cfg.DynamicFiles.Debounce),
			projectsystem.WithLogger(newLogger("factory")))
		syncer := manifest.NewSyncer(factory, &manifest.Config{
			Concurrency: cfg.Sync.Concurrency,
			Logger:      newLogger("manifest"),
		})

		fmt.Printf("%s Loading %s...\n", renderAccent("→"), args[0])
		res, err := syncer.Sync(ctx, m)
		if err != nil {
			return err
		}
		if err := store.Flush(ctx); err != nil {
			return err
		}

		sol := store.CurrentSolution()
		fmt.Println(renderSolution(sol))
		fmt.Printf("%s Loaded %d projects in %v (version %d)\n",
			renderPass("✓"), res.Created, res.Duration.Round(time.Millisecond), sol.Version())

		state, err := factory.UpdateState(ctx)
		if err != nil {
			return err
		}
		if converted := countConverted(state, sol); converted > 0 {
			fmt.Printf("   %d metadata references converted to project references\n", converted)
		}
		return nil
	},
}

func countConverted(state projectsystem.ProjectUpdateState, sol *workspace.Solution) int {
	n := 0
	for _, id := range sol.ProjectIDs() {
		n += len(state.ReferenceInfo(id).ConvertedProjectReferences)
	}
	return n
}

func init() {
	loadCmd.Flags().Bool("record", false, "Record change events in the journal")
	rootCmd.AddCommand(loadCmd)
}

