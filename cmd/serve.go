package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var drainInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic queue drainer",
		Long: `Starts the HTTP API and, unless disabled, a background loop that
drains the parse and notes queues on a fixed interval. Set
--drain-interval=0 to serve the API only and drain via POST /v1/drain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), a, drainInterval)
		},
	}

	cmd.Flags().DurationVar(&drainInterval, "drain-interval", time.Minute, "how often to drain the queues (0 disables)")
	return cmd
}

func runServe(ctx context.Context, a *app, drainInterval time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if drainInterval > 0 {
		go drainLoop(ctx, a, drainInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	a.log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}

func drainLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sched.DrainAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("drain pass failed", zap.Error(err))
			}
		}
	}
}
