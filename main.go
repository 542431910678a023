// ABOUTME: Entry point for the corral sync and resolution CLI
// ABOUTME: Routes global flags and subcommands to cli handlers
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/corral/cli"
	"github.com/harperreed/corral/db"
)

const version = "0.2.0"

func main() {
	// Env from .env if present; real env wins
	_ = godotenv.Load()

	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/corral/corral.db)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("corral version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	finalDBPath := getDatabasePath(*dbPath)
	database, err := db.OpenDatabase(finalDBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if *initOnly {
		log.Printf("Database initialized at %s", finalDBPath)
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "auth":
		if err := cli.AuthCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "sync":
		if err := cli.SyncCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "resolve":
		if err := cli.ResolveCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "map":
		if err := cli.MapCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "unmap":
		if err := cli.UnmapCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "mappings":
		if err := cli.MappingsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "runs":
		if err := cli.RunsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "status":
		if err := cli.StatusCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "daemon":
		if err := cli.DaemonCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "serve":
		if err := cli.ServeCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func getDatabasePath(override string) string {
	if override != "" {
		return override
	}
	return db.DefaultPath()
}

func printUsage() {
	fmt.Println(`corral - incremental sync and entity resolution

Usage:
  corral [flags] <command> [args]

Commands:
  auth       Authenticate with Google for Gmail sync
  sync       Run a sync (-source crm|gmail|calls|sequences|all, -object TYPE, -full)
  resolve    Re-resolve unmatched and fuzzy participants
  map        Create a manual identity mapping (-kind -value -contact)
  unmap      Deactivate a manual mapping (-kind -value)
  mappings   List active manual mappings
  runs       Show recent sync runs (-limit N)
  status     Show watermarks per stream
  daemon     Run periodic syncs (-interval 15m -sources all)
  serve      Start the HTTP status server (-port 8080)

Flags:
  -version   Show version
  -db-path   Database path (default: ~/.local/share/corral/corral.db)
  -init      Initialize database and exit`)
}
