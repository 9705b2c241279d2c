package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/schemaql/adapters/schemastore"
	"github.com/artpar/schemaql/adapters/sqldb"
	"github.com/artpar/schemaql/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the schemaql configuration file.

Checks:
  - YAML syntax is valid
  - Connections, logging and admin settings are well formed
  - Every database connection answers a ping (optional)
  - Every known schema loads and validates (optional)

Examples:
  schemaql validate
  schemaql validate --check-connections --check-schemas
  schemaql validate --config /etc/schemaql/config.yaml`,
	RunE: runValidate,
}

var (
	validateCheckConnections bool
	validateCheckSchemas     bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckConnections, "check-connections", false, "ping every database connection")
	validateCmd.Flags().BoolVar(&validateCheckSchemas, "check-schemas", false, "load and validate every schema")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(cfgFile); statErr == nil {
		fmt.Fprintf(out, "  %s Config file exists\n", checkMark)
		cfg, err = config.Load(cfgFile)
	} else {
		fmt.Fprintf(out, "  %s Config file not found, using environment\n", checkMark)
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	// Show config summary
	fmt.Fprintf(out, "  %s Listen: %s:%d\n", checkMark, cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  %s Schemas: %s (bundled: %t)\n", checkMark, cfg.Schemas.Directory, cfg.Schemas.BundledEnabled())
	for _, c := range cfg.Connections {
		fmt.Fprintf(out, "  %s Connection %s: %s\n", checkMark, c.Name, c.Driver)
	}
	if cfg.Admin.TokenHash == "" {
		fmt.Fprintf(out, "  %s Admin token not set, /debug is open\n", crossMark)
	}

	failed := false

	if validateCheckConnections {
		for _, c := range cfg.Connections {
			if err := checkConnection(cmd.Context(), c); err != nil {
				failed = true
				fmt.Fprintf(out, "  %s Connection %s reachable\n", crossMark, c.Name)
				fmt.Fprintf(out, "      Error: %v\n", err)
			} else {
				fmt.Fprintf(out, "  %s Connection %s reachable\n", checkMark, c.Name)
			}
		}
	}

	if validateCheckSchemas {
		if n, err := checkSchemas(cmd.Context(), cfg, out); err != nil {
			failed = true
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s %d schemas valid\n", checkMark, n)
		}
	}

	fmt.Fprintln(out)
	if failed {
		return fmt.Errorf("validation failed")
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkConnection(ctx context.Context, c config.ConnectionConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := sqldb.Open(c.Driver, c.DSN, 1)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

// checkSchemas loads every known schema and reports how many loaded.
func checkSchemas(ctx context.Context, cfg *config.Config, out io.Writer) (int, error) {
	storeCfg := schemastore.Config{Dir: cfg.Schemas.Directory, Logger: zerolog.Nop()}
	if cfg.Schemas.BundledEnabled() {
		storeCfg.Bundled = schemastore.Bundled()
	}
	store, err := schemastore.New(storeCfg)
	if err != nil {
		return 0, err
	}

	names, err := store.Names()
	if err != nil {
		return 0, err
	}

	bad := 0
	for _, name := range names {
		if _, err := store.Load(ctx, name); err != nil {
			bad++
			fmt.Fprintf(out, "  %s Schema %s: %v\n", crossMark, name, err)
		}
	}
	if bad > 0 {
		return len(names) - bad, fmt.Errorf("%d of %d schemas invalid", bad, len(names))
	}
	return len(names), nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
