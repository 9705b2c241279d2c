package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/schemaql/bootstrap"
	"github.com/artpar/schemaql/core/formatter"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "schemaql",
	Short: "Schema-driven query federation over databases and REST APIs",
	Long: `schemaql answers batches of field-level queries against logical
schemas. Each schema maps namespaces onto a relational table, a REST
endpoint or a view joining several of them.

Quick start:
  schemaql serve                    # Start the HTTP server
  schemaql query -s customer -n customers -a customer_id=1 -f first_name

Schemas:
  schemaql schemas list             # List known schemas
  schemaql schemas show customer    # Show a schema definition
  schemaql validate                 # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "schemaql.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
}

// openApp builds the application without starting the HTTP server. Logs go
// to stderr only with --verbose so command output stays parseable.
func openApp() (*bootstrap.App, error) {
	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	return bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Version:    version,
		LogOutput:  out,
	})
}

// outputFormatter resolves the --output flag.
func outputFormatter(name string) (formatter.Formatter, error) {
	if name == "" {
		return formatter.Default(), nil
	}
	f, ok := formatter.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", name, formatter.List())
	}
	return f, nil
}
