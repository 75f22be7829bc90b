// Package cmd wires the ragdesk command line interface.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragdesk",
	Short: "Retrieval-augmented chat assistant over a document knowledge base",
	Long: `ragdesk ingests documents into namespaces, embeds them into a
PostgreSQL/pgvector knowledge base, and answers questions with a language
model that can look documents up mid-conversation.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()
	return rootCmd.Execute()
}
