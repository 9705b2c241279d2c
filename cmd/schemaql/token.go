package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/artpar/schemaql/adapters/hasher"
)

var tokenCost int

var tokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash an admin token for admin.token_hash",
	Long: `Print the bcrypt hash of an admin token. Without an argument a random
token is generated and printed alongside its hash.

Examples:
  schemaql hash-token
  schemaql hash-token my-secret-token`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = strings.TrimSpace(args[0])
		}
		generated := token == ""
		if generated {
			token = strings.ReplaceAll(uuid.NewString(), "-", "")
		}

		hash, err := hasher.NewBcrypt(tokenCost).Hash(token)
		if err != nil {
			return fmt.Errorf("hash token: %w", err)
		}

		out := cmd.OutOrStdout()
		if generated {
			fmt.Fprintf(out, "token: %s\n", token)
		}
		fmt.Fprintf(out, "token_hash: '%s'\n", hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().IntVar(&tokenCost, "cost", 0, "bcrypt cost (default: bcrypt default)")
}
