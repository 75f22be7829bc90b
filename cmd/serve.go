package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP front door (health probes and inbound messages)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting ragdesk", "version", version, "addr", a.cfg.HTTPAddr)

	server := api.NewServer(a.pool, a.bot, a.logger)
	if err := server.Run(ctx, a.cfg.HTTPAddr); err != nil {
		return fmt.Errorf("running HTTP server: %w", err)
	}

	// Detached history appends may still be in flight.
	a.bot.Wait()
	return nil
}
