package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resyncCmd = &cobra.Command{
	Use:               "resync",
	Short:             "Rebuild every spelling link from scratch and exit",
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: syncLogger,
	RunE:              runResync,
}

func runResync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.shutdown(shutdownCtx, logger)
	}()

	n, err := a.dispatcher.ResyncAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("Resync enqueued", zap.Int("spellings", n))

	if err := a.queue.Wait(ctx); err != nil {
		return fmt.Errorf("resync finished with failures: %w", err)
	}

	p := a.queue.Progress()
	logger.Info("Resync complete",
		zap.Int("completed", p.Completed),
		zap.Int("failed", p.Failed),
	)
	return nil
}
