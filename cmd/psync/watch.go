package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/projsync/internal/dashboard"
	"github.com/steveyegge/projsync/internal/filewatch"
	"github.com/steveyegge/projsync/internal/journal"
	"github.com/steveyegge/projsync/internal/manifest"
	"github.com/steveyegge/projsync/internal/projectsystem"
	"github.com/steveyegge/projsync/internal/workspace"
)

const manifestWatchID = "psync:manifest"

var watchCmd = &cobra.Command{
	Use:     "watch <manifest>",
	GroupID: "workspace",
	Short:   "Keep the workspace in sync with a manifest and its reference files",
	Long: `Load a solution manifest and keep the workspace current until interrupted.

While running:
  - Metadata reference files are watched; when one changes (after the
    watch.debounce quiet period) every reference to it is refreshed.
  - The manifest itself is watched and re-synced when it changes. Only the
    differences are applied.
  - Committed changes are appended to the journal (journal.enabled).
  - Changes are streamed to WebSocket clients (dashboard.enabled).

Example usage:
  psync watch solution.toml
  PSYNC_DASHBOARD_ENABLED=true PSYNC_DASHBOARD_PORT=8080 psync watch solution.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return runWatch(cmd.Context(), path)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, manifestPath string) error {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	osWatcher, err := filewatch.NewFSNotifyWatcher(newLogger("fsnotify"))
	if err != nil {
		return err
	}
	defer osWatcher.Close()

	registry := filewatch.NewRegistry(osWatcher, &filewatch.Config{
		Debounce: cfg.Watch.Debounce,
		Logger:   newLogger("filewatch"),
	})
	defer registry.Close()

	store := workspace.NewStore(workspace.WithLogger(newLogger("workspace")))
	defer store.Close()

	if cfg.Journal.Enabled {
		db, err := journal.Open(&journal.Config{Path: cfg.Journal.Path, Logger: newLogger("journal")})
		if err != nil {
			return err
		}
		defer db.Close()
		detach := db.Attach(store)
		defer detach()
		db.AttachWatches(registry)
	}

	if cfg.Dashboard.Enabled {
		server := dashboard.NewServer(&dashboard.Config{
			Host:   cfg.Dashboard.Host,
			Port:   cfg.Dashboard.Port,
			Logger: newLogger("dashboard"),
		})
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()

		handler := dashboard.NewHandler(server, newLogger("dashboard"))
		detach := handler.Attach(store)
		defer detach()
		handler.AttachWatches(registry)
		fmt.Printf("%s Dashboard on http://%s (ws://%s/ws)\n", renderAccent("→"), server.Addr(), server.Addr())
	}

	factory := projectsystem.NewFactory(store,
		projectsystem.WithFileWatches(registry),
		projectsystem.WithHost(projectsystem.MaxLanguageVersionHost{}),
		projectsystem.WithDynamicFilesDebounce(cfg.DynamicFiles.Debounce),
		projectsystem.WithLogger(newLogger("factory")))
	syncer := manifest.NewSyncer(factory, &manifest.Config{
		Concurrency: cfg.Sync.Concurrency,
		Logger:      newLogger("manifest"),
	})

	res, err := syncer.Sync(ctx, m)
	if err != nil {
		return err
	}
	fmt.Printf("%s Loaded %d projects from %s\n", renderPass("✓"), res.Created, manifestPath)

	reload := make(chan struct{}, 1)
	manifestKey := filewatch.NormalizePath(manifestPath)
	registry.Subscribe(func(path string) {
		if filewatch.NormalizePath(path) != manifestKey {
			return
		}
		select {
		case reload <- struct{}{}:
		default:
		}
	})
	if err := registry.StartWatching(manifestWatchID, manifestPath); err != nil {
		return err
	}
	defer registry.StopWatching(manifestWatchID)

	fmt.Printf("Watching %s (debounce %v). Press Ctrl+C to stop...\n", manifestPath, cfg.Watch.Debounce)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-reload:
				resync(gCtx, syncer, manifestPath)
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				stats := registry.Stats()
				newLogger("watch").Printf("version=%d watched_paths=%d os_watches=%d pending=%d",
					store.CurrentSolution().Version(), stats.Paths, stats.OSWatches, stats.PendingNotifications)
			}
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := factory.CloseSolution(shutdownCtx); err != nil {
		return err
	}
	if err := syncer.Close(shutdownCtx); err != nil {
		return err
	}
	return store.Flush(shutdownCtx)
}

// resync applies the current manifest. A manifest that no longer loads or
// validates leaves the workspace as it was.
func resync(ctx context.Context, syncer *manifest.Syncer, path string) {
	m, err := manifest.Load(path)
	if err != nil {
		fmt.Printf("%s Manifest not applied: %v\n", renderWarn("⚠"), err)
		return
	}
	res, err := syncer.Sync(ctx, m)
	if err != nil {
		fmt.Printf("%s Sync failed: %v\n", renderFail("✗"), err)
		return
	}
	fmt.Printf("%s Re-synced: %d created, %d updated, %d removed in %v\n",
		renderPass("✓"), res.Created, res.Updated, res.Removed, res.Duration.Round(time.Millisecond))
}
