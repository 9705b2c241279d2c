package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/schemaql/core/formatter"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/value"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query batch and print the results",
	Long: `Run one sub-query built from flags, or a whole batch read from a JSON
file in the same shape POST /api/query accepts.

Argument values are parsed as JSON when possible, so id=1 is a number and
name=ada is a string.

Examples:
  schemaql query -s customer -n customers -a customer_id=1 -f first_name,last_name
  schemaql query --file batch.json -o json
  cat batch.json | schemaql query --file -`,
	RunE: runQuery,
}

var (
	queryFile      string
	querySchema    string
	queryNamespace string
	queryFields    []string
	queryArgs      []string
	queryTypes     bool
	queryOutput    string
	queryColumns   []string
	queryCompact   bool
	queryTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryFile, "file", "", "read the batch from a JSON file (- for stdin)")
	queryCmd.Flags().StringVarP(&querySchema, "schema", "s", "", "schema name")
	queryCmd.Flags().StringVarP(&queryNamespace, "namespace", "n", "", "namespace name")
	queryCmd.Flags().StringSliceVarP(&queryFields, "fields", "f", nil, "fields to select")
	queryCmd.Flags().StringArrayVarP(&queryArgs, "arg", "a", nil, "argument as name=value (repeatable)")
	queryCmd.Flags().BoolVar(&queryTypes, "types", false, "include declared field types")
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", "table", "output format: table, json or yaml")
	queryCmd.Flags().StringSliceVar(&queryColumns, "columns", nil, "columns to print")
	queryCmd.Flags().BoolVar(&queryCompact, "compact", false, "compact json output")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", time.Minute, "overall timeout")
}

func runQuery(cmd *cobra.Command, args []string) error {
	f, err := outputFormatter(queryOutput)
	if err != nil {
		return err
	}

	batch, err := buildBatch(cmd.InOrStdin())
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer app.Shutdown()

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	resp, err := app.Queries.ProcessBatch(ctx, batch)
	if err != nil {
		f.FormatError(cmd.ErrOrStderr(), err)
		return fmt.Errorf("query failed")
	}

	return f.FormatResults(cmd.OutOrStdout(), resp, formatter.FormatOptions{
		Columns: queryColumns,
		Compact: queryCompact,
	})
}

// buildBatch reads --file, or assembles a single sub-query from flags.
func buildBatch(stdin io.Reader) (query.Batch, error) {
	if queryFile != "" {
		var r io.Reader = stdin
		if queryFile != "-" {
			file, err := os.Open(queryFile)
			if err != nil {
				return query.Batch{}, fmt.Errorf("open batch: %w", err)
			}
			defer file.Close()
			r = file
		}

		var batch query.Batch
		if err := json.NewDecoder(r).Decode(&batch); err != nil {
			return query.Batch{}, fmt.Errorf("decode batch: %w", err)
		}
		if queryTypes {
			batch.IncludeDataTypes = true
		}
		return batch, nil
	}

	if querySchema == "" {
		return query.Batch{}, fmt.Errorf("--schema or --file is required")
	}

	arguments, err := parseArguments(queryArgs)
	if err != nil {
		return query.Batch{}, err
	}

	return query.Batch{
		Queries: []query.SubQuery{{
			Schema:    querySchema,
			Namespace: queryNamespace,
			Arguments: arguments,
			Fields:    queryFields,
		}},
		IncludeDataTypes: queryTypes,
	}, nil
}

// parseArguments turns name=value pairs into arguments. Values that parse as
// JSON keep their JSON type; anything else is a string.
func parseArguments(pairs []string) (query.Arguments, error) {
	out := make(query.Arguments, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q must be name=value", p)
		}
		out[name] = value.String(raw)
		if json.Valid([]byte(raw)) {
			if x, err := value.Decode([]byte(raw)); err == nil {
				out[name] = value.FromAny(x)
			}
		}
	}
	return out, nil
}
