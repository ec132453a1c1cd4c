package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/internal/observability"
	"github.com/loomlabs/loom/internal/team"
	"github.com/loomlabs/loom/internal/workerpool"
)

func buildRunCmd() *cobra.Command {
	var (
		configPath  string
		debug       bool
		metricsAddr string
		otlpAddr    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a team from a YAML configuration",
		Long: `Run a team of agents from a YAML configuration file.

Agents use the built-in echo LLM client unless the team configuration
is wired to a real provider programmatically. The process runs until
SIGINT/SIGTERM, then stops the team cooperatively.`,
		Example: `  # Run with a team config
  loom run --config team.yaml

  # Expose Prometheus metrics
  loom run --config team.yaml --metrics :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTeam(cmd.Context(), configPath, debug, metricsAddr, otlpAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "team.yaml", "Path to the YAML team configuration")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Prometheus metrics listen address (empty disables)")
	cmd.Flags().StringVar(&otlpAddr, "otlp", "", "OTLP gRPC collector endpoint for traces (empty disables)")
	return cmd
}

func buildValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a team configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := team.LoadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("team %q: %d node(s), coordinator %q, mode %s\n",
				cfg.Name, len(cfg.Nodes), cfg.Coordinator().Name(), cfg.NotificationMode)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "team.yaml", "Path to the YAML team configuration")
	return cmd
}

func runTeam(ctx context.Context, configPath string, debug bool, metricsAddr, otlpAddr string) error {
	level := "info"
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: level, Format: "text"})

	cfg, err := team.LoadConfig(configPath)
	if err != nil {
		return err
	}
	injectEchoFactory(cfg)

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName: "loom",
		Endpoint:    otlpAddr,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	deps := agent.Deps{
		Pool:    workerpool.New(workerpool.DefaultMaxWorkers),
		Logger:  logger,
		Metrics: observability.NewMetrics(registry),
		Tracer:  tracer,
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Close()
	}

	t, err := team.New(cfg, deps)
	if err != nil {
		return err
	}
	if err := t.Start(ctx); err != nil {
		return err
	}
	logger.Info("team running", "team", cfg.Name, "config", configPath)

	<-ctx.Done()
	logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return t.Stop(stopCtx)
}
