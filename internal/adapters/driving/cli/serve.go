package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jltournay/farmer-power-knowledge/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run background maintenance until interrupted",
	Long: `Runs the scheduler (stale job recovery and job pruning), reloads the
config file when it changes and, with --metrics-addr, serves Prometheus
metrics. Stops on SIGINT or SIGTERM.`,
	Args:        cobra.NoArgs,
	Annotations: withServices,
	RunE:        runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	scheduler, err := schedulerService()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	if services.Serve != nil {
		addr := CurrentSettings().MetricsAddr
		g.Go(func() error {
			return services.Serve(ctx, addr)
		})
	}

	logger.Info("serving", "metrics_addr", CurrentSettings().MetricsAddr)
	cmd.Println("fpkb serving, press Ctrl+C to stop.")

	err = g.Wait()
	_ = scheduler.Stop()
	return err
}
