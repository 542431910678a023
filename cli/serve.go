// ABOUTME: Serve command starting the HTTP status server
// ABOUTME: Wires env-configured adapters into the web sync endpoint
package cli

import (
	"database/sql"
	"flag"
	"fmt"

	"github.com/harperreed/corral/sync"
	"github.com/harperreed/corral/web"
)

// ServeCommand starts the web server
func ServeCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 8080, "Port to listen on")
	_ = fs.Parse(args)

	server, err := web.NewServer(database)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	server.BuildAdapter = func(source, objectType string) (sync.Adapter, error) {
		adapters, err := buildAdapters(source, objectType)
		if err != nil {
			return nil, err
		}
		for _, adapter := range adapters {
			if adapter.ObjectType() == objectType {
				return adapter, nil
			}
		}
		return nil, fmt.Errorf("no adapter for %s/%s", source, objectType)
	}

	return server.Start(*port)
}
