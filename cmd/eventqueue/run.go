package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/eventqueue/pkg/events"
	"github.com/ava-labs/eventqueue/pkg/metrics"
	"github.com/ava-labs/eventqueue/pkg/utils"
)

var errNotReady = errors.New("event bus not initialized")

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	if err := cfg.ValidateListener(); err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose, "run")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"backend", cfg.Backend,
		"explicitCredentials", cfg.ExplicitCredentials,
		"queues", cfg.Queues,
		"maxMessages", cfg.MaxMessages,
		"waitTime", cfg.WaitTime,
		"errorBackoff", cfg.ErrorBackoff,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Backend:       cfg.Backend,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeSvc, err := newQueueService(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer closeSvc()

	var ready atomic.Bool
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, metrics.WithReadiness(func() error {
		if !ready.Load() {
			return errNotReady
		}
		return nil
	}))
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	subs := make([]events.Subscription, 0, len(cfg.Queues))
	for _, name := range cfg.Queues {
		subs = append(subs, events.Subscription{
			Name:    name,
			Handler: logHandler(name, cfg.MaxMessages, sugar),
		})
	}

	bus, err := events.New(subs,
		events.WithLogger(sugar),
		events.WithMetrics(m),
		events.WithWaitTime(cfg.WaitTime),
		events.WithErrorBackoff(cfg.ErrorBackoff),
	)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}

	listenCtx, cancelListeners := context.WithCancel(ctx)
	defer cancelListeners()

	g, gctx := errgroup.WithContext(listenCtx)
	if err := bus.Init(gctx, svc); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	ready.Store(true)

	g.Go(func() error {
		// Every listener has stopped; release the metrics watcher too.
		defer cancelListeners()
		return bus.Wait()
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})

	err = g.Wait()
	ready.Store(false)
	switch {
	case err != nil:
		sugar.Errorw("run failed", "error", err)
	case ctx.Err() != nil:
		sugar.Infow("exiting due to context cancellation")
	default:
		sugar.Infow("all listeners stopped")
	}

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}

// logHandler logs every payload it receives. When limit is positive the
// listener stops after limit messages.
func logHandler(name string, limit int, log *zap.SugaredLogger) events.Handler {
	var handled atomic.Int64
	return func(_ context.Context, payload json.RawMessage) (events.Outcome, error) {
		n := handled.Add(1)
		log.Infow("event received",
			"queue", name,
			"count", n,
			"payload", string(payload),
		)
		if limit > 0 && n >= int64(limit) {
			return events.Stop, nil
		}
		return events.Continue, nil
	}
}
