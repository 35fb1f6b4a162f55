package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/projsync/internal/journal"
)

var journalCmd = &cobra.Command{
	Use:     "journal",
	GroupID: "inspect",
	Short:   "Show recorded workspace changes",
	Long: `Display the change journal written by 'psync watch' and 'psync load --record'.

Shows:
  - The most recent change events, oldest first
  - Event counts by kind
  - Reference files that changed on disk`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := cmd.Context()

		if _, err := os.Stat(cfg.Journal.Path); os.IsNotExist(err) {
			fmt.Printf("\n%s No journal at %s\n", renderWarn("⚠"), cfg.Journal.Path)
			fmt.Printf("   Run 'psync watch' to start recording\n\n")
			return nil
		}

		db, err := journal.Open(&journal.Config{Path: cfg.Journal.Path, Logger: newLogger("journal")})
		if err != nil {
			return err
		}
		defer db.Close()

		events, err := db.Events(ctx, limit)
		if err != nil {
			return err
		}
		counts, err := db.KindCounts(ctx)
		if err != nil {
			return err
		}
		refs, err := db.ReferenceChanges(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s %s\n\n", headerStyle.Render("Journal"), renderMuted(db.Path()))
		if len(events) == 0 {
			fmt.Println(renderMuted("   (no events)"))
		}
		for _, e := range events {
			target := e.ProjectID
			if e.DocumentID != "" {
				target = e.DocumentID
			}
			fmt.Printf("   %s  v%-5d %-34s %s\n",
				renderMuted(e.RecordedAt.Local().Format(time.DateTime)), e.Version, renderAccent(e.Kind), target)
		}

		if len(counts) > 0 {
			fmt.Printf("\n%s\n", headerStyle.Render("By kind"))
			for _, kind := range slices.Sorted(maps.Keys(counts)) {
				fmt.Printf("   %-34s %d\n", kind, counts[kind])
			}
		}

		if len(refs) > 0 {
			fmt.Printf("\n%s\n", headerStyle.Render("Reference changes"))
			for _, r := range refs {
				fmt.Printf("   %s  %s\n", renderMuted(r.RecordedAt.Local().Format(time.DateTime)), r.Path)
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	journalCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show")
	rootCmd.AddCommand(journalCmd)
}
