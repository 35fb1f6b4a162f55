// Command psync keeps an in-memory workspace model in sync with a solution
// manifest and the metadata files its projects reference.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/projsync/internal/config"
)

var (
	configFile string
	configDir  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "psync",
	Short: "Project system synchronizer",
	Long: `psync builds a workspace model from a solution manifest and keeps it current.

Projects are declared in a TOML or YAML manifest. Metadata references whose
file is the output of another project become project references; the rest are
watched on disk and refreshed when they change.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile, configDir)
		if err != nil {
			return err
		}
		cfg = loaded
		return setupLogging(cfg.Log)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: psync.yaml or psync.toml in --dir)")
	rootCmd.PersistentFlags().StringVar(&configDir, "dir", ".", "Directory searched for the config file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "workspace", Title: "Workspace Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", renderFail("Error:"), err)
		os.Exit(1)
	}
}
