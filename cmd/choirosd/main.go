// Package main is choirosd, the orchestration core's process
// entrypoint: it wires coreconfig → corelog → the Event Store →
// internal/metrics/internal/tracing → internal/llmprovider → the
// Writer → the Conductor, and exposes a Prometheus /metrics endpoint.
// This is not a product CLI surface (spec §11 excludes the CLI and
// transport layer); it exists so the orchestration core can be run and
// exercised standalone for local development and integration tests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/choiros/core/internal/conductor"
	"github.com/choiros/core/internal/coreconfig"
	"github.com/choiros/core/internal/corelog"
	"github.com/choiros/core/internal/eventstore"
	"github.com/choiros/core/internal/harness"
	"github.com/choiros/core/internal/llmprovider"
	"github.com/choiros/core/internal/metrics"
	"github.com/choiros/core/internal/tracing"
	"github.com/choiros/core/internal/writer"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:     "choirosd",
		Short:   "ChoirOS orchestration core process",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

// core holds every wired component, for use by callers embedding the
// orchestration core directly (e.g. integration tests) rather than
// running it as a standalone process.
type core struct {
	cfg       coreconfig.Config
	log       *corelog.Logger
	store     *eventstore.MemoryStore
	metrics   *metrics.Core
	sink      harness.EventSink
	writer    *writer.Writer
	conductor *conductor.Conductor
	shutdown  []func(context.Context) error
}

func bootstrap(ctx context.Context, configPath string) (*core, error) {
	cfg, err := coreconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := corelog.New(corelog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	m := metrics.NewCore()

	store := eventstore.NewMemoryStore(cfg.EventStore.QueryLimitMax, log).WithMetrics(m)

	var sink harness.EventSink = harness.NewStoreSink(store, log)
	var shutdown []func(context.Context) error
	if len(cfg.Trace.PayloadBounds) > 0 {
		tracer, traceShutdown := tracing.NewTracer(tracing.Config{ServiceName: "choirosd"})
		jsonlSink := tracing.NewJSONLSink(os.Stdout, "", tracing.WithAppVersion(version))
		sink = tracing.NewSpanningSink(jsonlSink, tracer)
		shutdown = append(shutdown, func(ctx context.Context) error { return traceShutdown(ctx) })
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm providers: %w", err)
	}

	w := writer.NewWriter(sink, log, nil).WithMetrics(m)

	policy := conductor.NewHarnessPolicy(
		conductorAdapter(providers, "bootstrap"),
		conductorAdapter(providers, "decide"),
		sink, log, cfg,
	)
	cond := conductor.New(map[string]conductor.CapabilityWorker{}, policy, w, sink, log).WithMetrics(m)

	if runs, err := conductor.Rehydrate(ctx, store); err != nil {
		log.Warn(ctx, "rehydrate runs failed", "error", err)
	} else {
		cond.Restore(runs)
	}

	return &core{
		cfg: cfg, log: log, store: store, metrics: m,
		sink: sink, writer: w, conductor: cond, shutdown: shutdown,
	}, nil
}

func run(ctx context.Context, configPath string) error {
	c, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := c.cfg.Metrics.ListenAddr
	if addr == "" {
		addr = ":9090"
	}
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	for _, fn := range c.shutdown {
		_ = fn(shutdownCtx)
	}
	return nil
}

// buildProviders constructs the failover-composed LLMProvider from
// cfg.LLM.Providers, in configured priority order.
func buildProviders(cfg coreconfig.Config) (llmprovider.LLMProvider, error) {
	var providers []llmprovider.LLMProvider
	for _, pc := range cfg.LLM.Providers {
		switch pc.Name {
		case "anthropic":
			p, err := llmprovider.NewAnthropicProvider(llmprovider.AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"), DefaultModel: pc.DefaultModel,
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "openai":
			p, err := llmprovider.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), pc.DefaultModel)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "bedrock":
			p, err := llmprovider.NewBedrockProvider(context.Background(), llmprovider.BedrockConfig{DefaultModel: pc.DefaultModel})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "venice":
			p, err := llmprovider.NewVeniceProvider(os.Getenv("VENICE_API_KEY"), pc.DefaultModel)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown llm provider %q", pc.Name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return llmprovider.NewFailoverProvider(llmprovider.DefaultFailoverConfig(), providers...)
}

// conductorAdapter builds the bootstrap/decide policy adapter for
// role: both are finish-only (no tool calls), differing only in the
// system prompt the model is given.
func conductorAdapter(provider llmprovider.LLMProvider, role string) harness.CapabilityAdapter {
	prompt := func(ctx harness.PlanContext) string {
		return fmt.Sprintf("You are the ChoirOS Conductor's %s policy. Objective: %s", role, ctx.Objective)
	}
	return llmprovider.NewAdapter(provider, "", "conductor-"+role, prompt, nil)
}
