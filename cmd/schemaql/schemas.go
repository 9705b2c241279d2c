package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/schemaql/adapters/schemastore"
	"github.com/artpar/schemaql/core/formatter"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "Inspect, check and merge schema documents",
}

var schemasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schemas from the schema directory and the bundled set",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer app.Shutdown()

		names, err := app.Schemas.Names()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var schemasShowOutput string

var schemasShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a schema definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormatter(schemasShowOutput)
		if err != nil {
			return err
		}

		app, err := openApp()
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer app.Shutdown()

		sc, err := app.Schemas.Load(cmd.Context(), args[0])
		if err != nil {
			f.FormatError(cmd.ErrOrStderr(), err)
			return fmt.Errorf("load schema %q failed", args[0])
		}
		return f.FormatSchema(cmd.OutOrStdout(), sc, formatter.FormatOptions{})
	},
}

var schemasCheckCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Validate schema documents without loading configuration",
	Long: `Validate schema documents against the document schema and the
structural rules the server applies on load. Each file must be named
<schemaName>.json, .yaml or .yml.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			if err := checkDocument(cmd, path); err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s: %v\n", crossMark, path, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", checkMark, path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents invalid", failed, len(args))
		}
		return nil
	},
}

func checkDocument(cmd *cobra.Command, path string) error {
	store, err := schemastore.New(schemastore.Config{Dir: filepath.Dir(path), Logger: zerolog.Nop()})
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	_, err = store.Load(cmd.Context(), name)
	return err
}

var (
	mergeName    string
	mergeRenames []string
	mergeOutput  string
)

// newMergeCmd builds the merge command. It is mounted both under "schemas"
// and at the top level.
func newMergeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "merge <schema>...",
		Short: "Combine schemas into one and print the result",
		Long: `Merge the namespaces of several schemas into a new schema. The first
schema to provide a namespace supplies its metadata; later ones only add
fields not yet present. The result is printed as a document that can be
saved into the schema directory.

Examples:
  schemaql merge --name everything customer profile
  schemaql schemas merge --name crm customer --rename customers=people`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMerge,
	}

	c.Flags().StringVar(&mergeName, "name", "", "name of the merged schema (required)")
	c.Flags().StringArrayVar(&mergeRenames, "rename", nil, "rename a namespace as from=to (repeatable)")
	c.Flags().StringVarP(&mergeOutput, "output", "o", "yaml", "output format: table, json or yaml")
	c.MarkFlagRequired("name")
	return c
}

func runMerge(cmd *cobra.Command, args []string) error {
	f, err := outputFormatter(mergeOutput)
	if err != nil {
		return err
	}

	renames := make(map[string]string, len(mergeRenames))
	for _, r := range mergeRenames {
		from, to, ok := strings.Cut(r, "=")
		if !ok || from == "" || to == "" {
			return fmt.Errorf("rename %q must be from=to", r)
		}
		renames[from] = to
	}

	app, err := openApp()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer app.Shutdown()

	merged, err := app.Merger.Merge(cmd.Context(), mergeName, args, renames)
	if err != nil {
		f.FormatError(cmd.ErrOrStderr(), err)
		return fmt.Errorf("merge failed")
	}
	return f.FormatSchema(cmd.OutOrStdout(), merged, formatter.FormatOptions{})
}

func init() {
	rootCmd.AddCommand(schemasCmd)
	rootCmd.AddCommand(newMergeCmd())
	schemasCmd.AddCommand(schemasListCmd, schemasShowCmd, schemasCheckCmd, newMergeCmd())

	schemasShowCmd.Flags().StringVarP(&schemasShowOutput, "output", "o", "table", "output format: table, json or yaml")
}
