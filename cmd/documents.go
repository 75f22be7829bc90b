package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var documentsLimit int

var documentsCmd = &cobra.Command{
	Use:   "documents <namespace>",
	Short: "List documents in a namespace, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocuments,
}

func init() {
	documentsCmd.Flags().IntVar(&documentsLimit, "limit", 20, "maximum documents to list")
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setupStorage(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.knowledge.ListDocuments(ctx, args[0], documentsLimit)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Printf("No documents in namespace %q.\n", args[0])
		return nil
	}

	for _, d := range docs {
		fmt.Printf("%s  %-40s  %8d bytes  ~%d tokens  %s  %s\n",
			d.CreatedAt.Format("2006-01-02"), d.FileName, d.SizeBytes, d.Tokens, d.SourceType, d.ID)
	}
	return nil
}
