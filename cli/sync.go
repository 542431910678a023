// ABOUTME: Sync CLI commands for all external sources
// ABOUTME: Handles OAuth setup and per-source sync runs
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"golang.org/x/oauth2"

	"github.com/harperreed/corral/models"
	"github.com/harperreed/corral/sync"
)

// AuthCommand runs the Google OAuth setup flow
func AuthCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()

	config, err := sync.GetClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to get OAuth config: %w", err)
	}

	// Start local server for OAuth callback
	callbackChan := make(chan *oauth2.Token)
	errChan := make(chan error)

	http.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			return
		}

		token, err := config.Exchange(ctx, code)
		if err != nil {
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			return
		}

		callbackChan <- token
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: ":8484"}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline)

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)

	_ = openBrowser(authURL)

	select {
	case token := <-callbackChan:
		_ = server.Shutdown(ctx)

		if err := sync.SaveToken(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Printf("\n✓ Authenticated successfully\n")
		fmt.Printf("✓ Tokens saved to %s\n\n", sync.TokenPath())
		fmt.Println("Ready to sync! Run 'corral sync -source gmail' to import messages.")

		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

// SyncCommand runs a sync for one source, or all of them
func SyncCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	source := fs.String("source", "all", "Source to sync: crm, gmail, calls, sequences, all")
	object := fs.String("object", "", "Limit CRM sync to one object type (contacts, accounts, ...)")
	full := fs.Bool("full", false, "Full import, ignoring watermarks")
	_ = fs.Parse(args)

	ctx := context.Background()
	engine := sync.NewEngine(database)

	mode := models.ModeIncremental
	if *full {
		mode = models.ModeFull
	}

	adapters, err := buildAdapters(*source, *object)
	if err != nil {
		return err
	}

	for _, adapter := range adapters {
		fmt.Printf("Syncing %s/%s...\n", adapter.Source(), adapter.ObjectType())
		run, err := engine.Run(ctx, adapter, mode)
		if err != nil {
			fmt.Printf("  ✗ %v\n", err)
			continue
		}
		reportRun(run)
	}

	return nil
}

// buildAdapters assembles the adapters for the given source selection.
// Each adapter reads its endpoint and token from the environment.
func buildAdapters(source, object string) ([]sync.Adapter, error) {
	var adapters []sync.Adapter

	want := func(s string) bool { return source == "all" || source == s }

	if want(models.SourceCRM) {
		token := os.Getenv("CRM_TOKEN")
		if token == "" && source == models.SourceCRM {
			return nil, fmt.Errorf("CRM_TOKEN not set")
		}
		if token != "" {
			baseURL := envOr("CRM_BASE_URL", "https://api.hubapi.com")
			objects := []string{
				models.ObjectAccounts,
				models.ObjectContacts,
				models.ObjectLeads,
				models.ObjectOpportunities,
				models.ObjectActivities,
			}
			for _, objectType := range objects {
				if object != "" && object != objectType {
					continue
				}
				adapter, err := sync.NewCRMAdapter(baseURL, token, objectType)
				if err != nil {
					return nil, err
				}
				adapters = append(adapters, adapter)
			}
		}
	}

	if want(models.SourceGmail) {
		token, err := sync.LoadToken()
		if err != nil {
			if source == models.SourceGmail {
				return nil, fmt.Errorf("no authentication token found. Run 'corral auth' first: %w", err)
			}
		} else {
			client, err := sync.NewGmailClient(token)
			if err != nil {
				return nil, fmt.Errorf("failed to create Gmail client: %w", err)
			}
			adapter, err := sync.NewGmailAdapter(client)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, adapter)
		}
	}

	if want(models.SourceCalls) {
		token := os.Getenv("CALLS_TOKEN")
		if token == "" && source == models.SourceCalls {
			return nil, fmt.Errorf("CALLS_TOKEN not set")
		}
		if token != "" {
			adapter, err := sync.NewCallsAdapter(envOr("CALLS_BASE_URL", "https://dialpad.com"), token)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, adapter)
		}
	}

	if want(models.SourceSequences) {
		token := os.Getenv("SEQUENCES_TOKEN")
		if token == "" && source == models.SourceSequences {
			return nil, fmt.Errorf("SEQUENCES_TOKEN not set")
		}
		if token != "" {
			adapter, err := sync.NewSequenceAdapter(envOr("SEQUENCES_BASE_URL", "https://api.outreach.io"), token)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, adapter)
		}
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no sources configured for %q (check env tokens)", source)
	}

	return adapters, nil
}

func reportRun(run *models.SyncRun) {
	switch run.Status {
	case models.RunSuccess:
		fmt.Printf("  ✓ %d rows synced\n", run.RowsProcessed)
	case models.RunPartial:
		fmt.Printf("  ⚠ partial: %d synced, %d failed\n", run.RowsProcessed, run.RowsFailed)
	case models.RunFailed:
		message := "unknown error"
		if run.ErrorMessage != nil {
			message = *run.ErrorMessage
		}
		fmt.Printf("  ✗ failed: %s\n", message)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	command := exec.Command(cmd, args...)
	return command.Start()
}
