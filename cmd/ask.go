package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/chat"
)

var (
	askNamespace   string
	askShowContext bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question against a namespace",
	Long: `Ask runs one retrieval-augmented turn without session state: the
question is embedded, similar chunks are retrieved from the namespace, and
the model answers with the file lookup tool available.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askNamespace, "namespace", "n", "", "namespace to retrieve from (required)")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "print the retrieved context matches")
	_ = askCmd.MarkFlagRequired("namespace")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	reply, err := a.engine.Ask(ctx, chat.Request{Namespace: askNamespace, Prompt: question})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(reply.Answer)

	if askShowContext && len(reply.Context) > 0 {
		fmt.Println("\nContext:")
		for _, m := range reply.Context {
			fmt.Printf("  %.3f  %s [%s]\n", m.Similarity, m.Document.FileName, m.Document.Namespace)
		}
	}
	return nil
}
