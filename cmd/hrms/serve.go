package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/example/hrms/internal/http"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, root, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, root *rootOptions, migrate bool) error {
	cfg, logger, err := root.load(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if migrate {
		if _, err := storage.Migrate(ctx, logger); err != nil {
			return err
		}
	}

	services, err := newServices(cfg, storage, logger)
	if err != nil {
		return err
	}

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Registry: httptransport.NewProcedureRegistry(services),
		Sessions: services.Auth,
		Uploads:  services.Uploads,
		Limiter:  httptransport.NewLoginLimiter(cfg.LoginRatePerMin, cfg.LoginBurst),
		Cookies:  httptransport.CookieConfig{Secure: cfg.CookieSecure},
		Metrics:  httptransport.NewMetrics(),
		Health:   storage,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	jobs := cron.New()
	if cfg.SessionPruneEvery > 0 {
		if err := jobs.AddFunc("@every "+cfg.SessionPruneEvery.String(), func() {
			_, _ = services.Auth.PruneSessions(ctx)
		}); err != nil {
			return fmt.Errorf("schedule session pruning: %w", err)
		}
	}
	jobs.Start()
	defer jobs.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("hrms API listening", "addr", server.Addr, "timezone", cfg.Timezone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
