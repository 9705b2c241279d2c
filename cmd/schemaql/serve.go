package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/schemaql/bootstrap"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP query server",
	Long: `Start the schemaql HTTP server.

The server will:
  - Load configuration from schemaql.yaml (or --config)
  - Or load configuration from SCHEMAQL_* environment variables
  - Open the configured database connections
  - Serve POST /api/query and the /debug surface

Environment variables (for Docker deployments):
  SCHEMAQL_DATABASE_DSN     - Default connection DSN (default: schemaql.db)
  SCHEMAQL_SCHEMAS_DIR      - Schema document directory (default: schemas)
  SCHEMAQL_SERVER_PORT      - Server port (default: 8080)
  SCHEMAQL_LOG_LEVEL        - Log level: debug, info, warn, error
  SCHEMAQL_ADMIN_TOKEN_HASH - bcrypt hash guarding /debug

Examples:
  schemaql serve
  schemaql serve --config /etc/schemaql/config.yaml
  schemaql serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload the config file on change and on SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath:  cfgFile,
		WatchConfig: hotReload,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
