package main

import (
	"fmt"
	"os"

	"github.com/burrow-ai/burrow/internal/cli"
	"github.com/burrow-ai/burrow/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "burrow",
		Short: "Burrow CLI - Knowledge ingestion and retrieval",
		Long: `Burrow CLI provides commands to ingest and search knowledge.

Environment variables:
  BURROW_API_KEY   API key for authentication (required)
  BURROW_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.AddCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.DeleteCmd())
	rootCmd.AddCommand(client.TaskCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
