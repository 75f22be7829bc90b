package cmd

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/ingest"
)

var (
	ingestNamespace string
	ingestURL       string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a local file or a URL into a namespace",
	Long: `Ingest chunks a document, embeds each chunk, and stores everything in
the knowledge base under the given namespace.

Either a file argument or --url must be provided.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestNamespace, "namespace", "n", "", "target namespace (required)")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "ingest a web page instead of a file")
	_ = ingestCmd.MarkFlagRequired("namespace")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (ingestURL == "") {
		return fmt.Errorf("provide either a file argument or --url")
	}

	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var result ingest.Result
	if ingestURL != "" {
		fetcher := ingest.NewURLFetcher(a.pipeline, nil)
		result, err = fetcher.IngestURL(ctx, ingestNamespace, ingestURL)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", ingestURL, err)
		}
	} else {
		path := args[0]
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "text/plain"
		}

		result, err = a.pipeline.Ingest(ctx, ingest.Input{
			Namespace: ingestNamespace,
			FileName:  filepath.Base(path),
			MimeType:  mimeType,
			SizeBytes: int64(len(content)),
			Content:   string(content),
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
	}

	fmt.Printf("Ingested %q into namespace %q: %d chunks, ~%d tokens (id %s)\n",
		result.Document.FileName, result.Document.Namespace,
		result.ChunkCount, result.Document.Tokens, result.Document.ID)
	return nil
}
