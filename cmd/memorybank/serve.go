package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/memorybank/internal/api"
	"github.com/odvcencio/memorybank/internal/auth"
)

func serveCmd(configPath *string) *cobra.Command {
	var enablePprof bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.cfg.ValidateServe(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, enablePprof)
		},
	}
	cmd.Flags().BoolVar(&enablePprof, "pprof", false, "expose /debug/pprof on admin-allowed addresses")
	return cmd
}

func serve(ctx context.Context, a *app, enablePprof bool) error {
	traceShutdown, err := initTracing(ctx, a.cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(shutdownCtx); err != nil {
			a.logger.Error("shutdown tracing", "error", err)
		}
	}()

	var authSvc *auth.Service
	if a.cfg.Auth.Enabled {
		dur, err := a.cfg.TokenDuration()
		if err != nil {
			return err
		}
		authSvc = auth.NewService(a.cfg.Auth.JWTSecret, dur)
	}

	server := api.NewServer(a.svc, api.ServerOptions{
		Logger:            a.logger,
		Auth:              authSvc,
		Metrics:           a.metrics,
		Gatherer:          a.metrics,
		TrustedProxies:    trustedProxyCIDRs(a.cfg),
		AdminAllowedCIDRs: a.cfg.Server.AdminAllowedCIDRs,
		ProjectRootHeader: a.cfg.Server.ProjectRootHeader,
		EnablePprof:       enablePprof,
	})

	httpServer := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// analysis calls can run for the full engine query timeout
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("memorybank listening", "addr", a.cfg.Addr(), "auth", authSvc != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
