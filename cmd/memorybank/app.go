package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/odvcencio/memorybank/internal/analysis"
	"github.com/odvcencio/memorybank/internal/config"
	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/graphdb/kuzu"
	"github.com/odvcencio/memorybank/internal/projection"
	"github.com/odvcencio/memorybank/internal/service"
	"github.com/odvcencio/memorybank/internal/session"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *prometheus.Registry
	registry *session.Registry
	svc      *service.MemoryService
}

func newApp(cfg *config.Config, driver graphdb.Driver, logger *slog.Logger) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry := session.NewRegistry(driver, session.Options{
		DatabaseFile: cfg.Engine.DatabaseFile,
		Logger:       logger,
		Metrics:      reg,
	})
	svc := service.New(registry, service.Options{
		Logger:            logger,
		Tracer:            otel.Tracer("github.com/odvcencio/memorybank/internal/service"),
		AnalysisDefaults:  analysisDefaults(cfg),
		AnalysisMetrics:   analysis.NewMetrics(reg),
		ProjectionMetrics: projection.NewMetrics(reg),
		BatchConcurrency:  cfg.Analysis.BatchConcurrency,
	})
	return &app{cfg: cfg, logger: logger, metrics: reg, registry: registry, svc: svc}
}

// loadApp loads and validates the config and opens the configured engine.
func loadApp(configPath string, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	driver, err := openDriver(cfg)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, driver, logger), nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.svc.Shutdown(ctx); err != nil {
		a.logger.Error("shutdown memory service", "error", err)
	}
}

func openDriver(cfg *config.Config) (graphdb.Driver, error) {
	switch cfg.Engine.Driver {
	case "kuzu":
		timeout, err := cfg.QueryTimeout()
		if err != nil {
			return nil, err
		}
		return kuzu.NewDriver(kuzu.Options{
			BufferPoolSize: cfg.Engine.BufferPoolMB << 20,
			MaxThreads:     cfg.Engine.MaxThreads,
			QueryTimeout:   timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported engine driver: %s", cfg.Engine.Driver)
	}
}

func analysisDefaults(cfg *config.Config) analysis.Defaults {
	return analysis.Defaults{
		DampingFactor:    cfg.Analysis.DampingFactor,
		MaxIterations:    cfg.Analysis.MaxIterations,
		Tolerance:        cfg.Analysis.Tolerance,
		LouvainPhases:    cfg.Analysis.LouvainPhases,
		MaxPathHops:      cfg.Analysis.MaxPathHops,
		ProjectionPrefix: cfg.Analysis.ProjectionPrefix,
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// trustedProxyCIDRs returns the configured proxy list. MEMORYBANK_TRUST_PROXY
// is the older switch that trusts every forwarder.
func trustedProxyCIDRs(cfg *config.Config) []string {
	if len(cfg.Server.TrustedProxies) > 0 {
		return cfg.Server.TrustedProxies
	}
	if envBool("MEMORYBANK_TRUST_PROXY") {
		return []string{"0.0.0.0/0", "::/0"}
	}
	return nil
}

func envBool(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
