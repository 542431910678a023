// ABOUTME: Sync run history and watermark status commands
// ABOUTME: Read-only views over sync_runs and sync_state
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/models"
)

// RunsCommand lists recent sync runs
func RunsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	_ = fs.Parse(args)

	runs, err := db.RecentRuns(database, *limit)
	if err != nil {
		return fmt.Errorf("failed to load runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No sync runs yet")
		return nil
	}

	fmt.Printf("Recent sync runs (%d):\n\n", len(runs))
	for _, run := range runs {
		fmt.Printf("  %-9s %-10s/%-13s %-11s %5d ok %4d failed  %s\n",
			statusGlyph(run.Status)+" "+run.Status,
			run.Source, run.ObjectType, run.Mode,
			run.RowsProcessed, run.RowsFailed,
			run.StartedAt.Local().Format("2006-01-02 15:04"))
		if run.ErrorMessage != nil {
			fmt.Printf("      %s\n", *run.ErrorMessage)
		}
	}

	return nil
}

// StatusCommand shows watermarks and the latest run per stream
func StatusCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	watermarks, err := db.AllWatermarks(database)
	if err != nil {
		return fmt.Errorf("failed to load watermarks: %w", err)
	}

	if len(watermarks) == 0 {
		fmt.Println("No watermarks yet — nothing has synced")
		return nil
	}

	keys := make([]string, 0, len(watermarks))
	for key := range watermarks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Println("Sync status:")
	for _, key := range keys {
		fmt.Printf("\n  %s\n", key)
		fmt.Printf("    watermark: %s\n", formatWatermark(watermarks[key]))
	}

	return nil
}

func statusGlyph(status string) string {
	switch status {
	case models.RunSuccess:
		return "✓"
	case models.RunPartial:
		return "⚠"
	case models.RunFailed:
		return "✗"
	default:
		return "…"
	}
}

// formatWatermark renders timestamps in local time; opaque cursors pass through.
func formatWatermark(watermark string) string {
	if t, err := time.Parse(time.RFC3339, watermark); err == nil {
		return t.Local().Format("2006-01-02 15:04:05")
	}
	return watermark
}
