package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var namespacesLimit int

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List namespaces that hold documents",
	RunE:  runNamespaces,
}

func init() {
	namespacesCmd.Flags().IntVar(&namespacesLimit, "limit", 50, "maximum namespaces to list")
	rootCmd.AddCommand(namespacesCmd)
}

func runNamespaces(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := setupStorage(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	namespaces, err := a.knowledge.ListNamespaces(ctx, namespacesLimit)
	if err != nil {
		return fmt.Errorf("listing namespaces: %w", err)
	}
	if len(namespaces) == 0 {
		fmt.Println("No namespaces yet. Ingest a document first.")
		return nil
	}

	for _, ns := range namespaces {
		fmt.Println(ns)
	}
	return nil
}
