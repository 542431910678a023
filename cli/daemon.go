// ABOUTME: Daemon mode running syncs and resolution on an interval
// ABOUTME: Handles interval validation, source selection, and graceful shutdown
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harperreed/corral/match"
	"github.com/harperreed/corral/models"
	"github.com/harperreed/corral/sync"
)

const minDaemonInterval = 5 * time.Minute

// DaemonCommand runs incremental syncs on a schedule until interrupted
func DaemonCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	interval := fs.Duration("interval", 15*time.Minute, "Time between sync cycles (min 5m)")
	sources := fs.String("sources", "all", "Comma-separated sources: crm, gmail, calls, sequences, or all")
	_ = fs.Parse(args)

	if *interval < minDaemonInterval {
		return fmt.Errorf("interval %s is below the minimum of %s", *interval, minDaemonInterval)
	}

	selected := parseSources(*sources)
	if len(selected) == 0 {
		return fmt.Errorf("no valid sources in %q", *sources)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	engine := sync.NewEngine(database)

	log.Printf("Daemon started: syncing %s every %s", strings.Join(selected, ", "), *interval)

	// Run one cycle immediately, then on the ticker
	runCycle(ctx, engine, database, selected)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle(ctx, engine, database, selected)
		case sig := <-sigChan:
			log.Printf("Received %s, shutting down", sig)
			cancel()
			return nil
		}
	}
}

func runCycle(ctx context.Context, engine *sync.Engine, database *sql.DB, sources []string) {
	for _, source := range sources {
		adapters, err := buildAdapters(source, "")
		if err != nil {
			log.Printf("Skipping %s: %v", source, err)
			continue
		}
		for _, adapter := range adapters {
			run, err := engine.Run(ctx, adapter, models.ModeIncremental)
			if err != nil {
				log.Printf("Sync %s/%s error: %v", adapter.Source(), adapter.ObjectType(), err)
				continue
			}
			log.Printf("Sync %s/%s: %s (%d ok, %d failed)",
				run.Source, run.ObjectType, run.Status, run.RowsProcessed, run.RowsFailed)
		}
	}

	result, err := match.ResolveBatch(database, 0)
	if err != nil {
		log.Printf("Resolution error: %v", err)
		return
	}
	if result.Examined > 0 {
		log.Printf("Resolution: examined %d, resolved %d", result.Examined, result.Resolved)
	}
}

// parseSources splits a comma-separated source list, expanding "all"
// and dropping unknown names.
func parseSources(input string) []string {
	if strings.TrimSpace(input) == "all" {
		return []string{models.SourceCRM, models.SourceGmail, models.SourceCalls, models.SourceSequences}
	}

	known := map[string]bool{
		models.SourceCRM:       true,
		models.SourceGmail:     true,
		models.SourceCalls:     true,
		models.SourceSequences: true,
	}

	result := []string{}
	for _, part := range strings.Split(input, ",") {
		source := strings.TrimSpace(part)
		if known[source] {
			result = append(result, source)
		}
	}
	return result
}
