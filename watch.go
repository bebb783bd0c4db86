package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tempohq/tempo-sync-go/internal/credfile"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run as a daemon: stay connected and sync continuously",
		Long: `Run until interrupted: connect the realtime channel, drain the queue
whenever connectivity returns, run periodic sync passes at the configured
interval, and reconnect with fresh credentials when the credential file
is rewritten by the auth flow.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(resolvedCfg)

	c, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := shutdownContext(cmd.Context(), logger)

	// Drain whatever accumulated while the daemon was down.
	if _, err := c.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// A failed connect is not fatal: the queue keeps accepting mutations,
	// periodic sync keeps draining, and a credential update retriggers the
	// connect.
	if err := c.Connect(ctx); err != nil {
		logger.Warn("realtime connect failed", slog.String("error", err.Error()))
	}

	c.StartPeriodicSync()
	defer c.StopPeriodicSync()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return credfile.Watch(gctx, resolvedCfg.CredentialPath(), logger, c.NotifyCredentialUpdated)
	})

	logger.Info("daemon running",
		slog.String("data_dir", resolvedCfg.DataDir),
		slog.Duration("sync_interval", resolvedCfg.Sync.IntervalDuration()),
	)

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("daemon stopped")

	return nil
}

// shutdownContext cancels on SIGINT/SIGTERM so the daemon can finish an
// in-flight sync pass. A second interrupt during the drain exits
// immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		if parent.Err() != nil {
			return
		}

		logger.Info("shutting down, interrupt again to force quit")

		force := make(chan os.Signal, 1)
		signal.Notify(force, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(force)

		select {
		case <-force:
			logger.Warn("second interrupt, exiting immediately")
			os.Exit(1)
		case <-parent.Done():
		}
	}()

	return ctx
}
