// Command loadbalance-gateway boots the load-balancing core in isolation:
// it loads a YAML config, wires the metrics store, selector, selection
// cache, health checker, and route coordinator together, and exposes a
// bare /healthz listener so `go run` produces something observable. The
// HTTP chat/models/admin surface, auth, and wire-format translation are
// external collaborators this entry point never implements.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/berrygate/loadbalance/backendclient"
	"github.com/berrygate/loadbalance/cache"
	"github.com/berrygate/loadbalance/gatewayconfig"
	"github.com/berrygate/loadbalance/gatewaytypes"
	"github.com/berrygate/loadbalance/health"
	"github.com/berrygate/loadbalance/metrics"
	"github.com/berrygate/loadbalance/route"
	"github.com/berrygate/loadbalance/selector"
)

var (
	version = "dev"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("loadbalance-gateway %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`loadbalance-gateway - LLM API gateway load-balancing core

Usage:
  loadbalance-gateway serve [--config path.yaml]
  loadbalance-gateway version
  loadbalance-gateway help`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	listenAddr := fs.String("addr", ":8080", "address for the /healthz listener")
	fs.Parse(args)

	logger := newLogger()
	defer logger.Sync()

	doc, err := gatewayconfig.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	models, providers := gatewayconfig.Resolve(doc)
	store := metrics.NewStore(
		metrics.WithInitialConfidence(doc.Settings.SmartAI.InitialConfidence),
		metrics.WithMinConfidence(doc.Settings.SmartAI.MinConfidence),
	)

	sel := selector.New(models, providers, store,
		selector.WithNonPremiumStabilityBonus(doc.Settings.SmartAI.NonPremiumStabilityBonus),
		selector.WithExplorationRatio(doc.Settings.SmartAI.ExplorationRatio),
	)
	selCache := cache.New(
		cache.WithTTL(doc.Settings.SelectionCacheTTL()),
		cache.WithCapacity(doc.Settings.SelectionCacheCapacity),
	)
	defer selCache.Stop()

	coordinator := route.New(models, providers, sel, selCache, store, route.Config{
		MaxInternalRetries: doc.Settings.MaxInternalRetries,
	})
	coordinator.SetCollector(metrics.NewCollector("loadbalance", logger))

	registry := buildClientRegistry(providers, doc.Settings.HealthCheckTimeout())
	checker := health.New(models, providers, store, registry, health.Config{
		HealthCheckInterval:   doc.Settings.HealthCheckInterval(),
		RecoveryCheckInterval: doc.Settings.RecoveryCheckInterval(),
		ProbeTimeout:          doc.Settings.HealthCheckTimeout(),
	}, func(providerID string) string {
		if p, ok := providers[providerID]; ok {
			return p.APIKey
		}
		return ""
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker.Start(ctx)
	defer checker.Stop()

	logger.Info("loadbalance-gateway started",
		zap.Int("providers", len(providers)),
		zap.Int("models", len(models)),
	)

	srv := &http.Server{
		Addr:              *listenAddr,
		Handler:           healthzHandler(coordinator, checker),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("healthz listener stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// healthzHandler exposes the core's InitialDone flag and unhealthy-backend
// count as a single smoke-test endpoint, just enough for an operator to
// confirm the process is alive.
func healthzHandler(coordinator *route.Coordinator, checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := coordinator.Stats()
		fmt.Fprintf(w, "ok initial_done=%v unhealthy_backends=%d total_requests=%d\n",
			checker.InitialDone(), len(stats.Unhealthy), stats.Routes.TotalRequests)
	})
	return mux
}

// buildClientRegistry instantiates one dialect adapter per enabled
// provider, keyed by provider id, so the health checker and (eventually)
// the HTTP surface can reach every upstream uniformly through C6.
func buildClientRegistry(providers map[string]gatewaytypes.Provider, timeout time.Duration) *backendclient.Registry {
	reg := backendclient.NewRegistry()
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		switch p.Dialect {
		case gatewaytypes.DialectClaude:
			reg.Register(p.ID, backendclient.NewClaudeClient(p.BaseURL, p.HeaderOverrides, timeout))
		case gatewaytypes.DialectGemini:
			reg.Register(p.ID, backendclient.NewGeminiClient(p.BaseURL, p.HeaderOverrides, timeout))
		default:
			reg.Register(p.ID, backendclient.NewOpenAIClient(p.BaseURL, "", p.HeaderOverrides, timeout))
		}
	}
	return reg
}

func newLogger() *zap.Logger {
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
