package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inventory-app/glossary-sync/pkg/handlers"
	"github.com/inventory-app/glossary-sync/pkg/listener"
	"github.com/inventory-app/glossary-sync/pkg/middleware"
)

const shutdownTimeout = 30 * time.Second

var resyncOnStart bool

var workerCmd = &cobra.Command{
	Use:               "worker",
	Short:             "Run the sync worker with its database listener and operational endpoints",
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: syncLogger,
	RunE:              runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&resyncOnStart, "resync", false, "enqueue a sync for every spelling at startup")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.shutdown(shutdownCtx, logger)
	}()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, a.db, a.queue, a.registry, logger).RegisterRoutes(mux)
	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.Recover(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting operational server", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Sync.Listen {
		l := listener.New(cfg.Database.URL(), a.dispatcher, logger, listener.WithRecorder(a.metrics))
		g.Go(func() error {
			return l.Run(gctx)
		})
	}

	if resyncOnStart {
		g.Go(func() error {
			n, err := a.dispatcher.ResyncAll(gctx)
			if err != nil {
				return err
			}
			logger.Info("Startup resync enqueued", zap.Int("spellings", n))
			return nil
		})
	}

	err = g.Wait()
	logger.Info("Worker stopping", zap.Int("pending", a.queue.PendingCount()))
	return err
}
