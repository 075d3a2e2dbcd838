package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/eventqueue/pkg/events"
	"github.com/ava-labs/eventqueue/pkg/utils"
)

// ensure creates the queue behind every requested event name and prints
// "<name>\t<url>" for each.
func ensure(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose, "ensure")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeSvc, err := newQueueService(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer closeSvc()

	dir := events.NewDirectory(svc, sugar, nil)
	for _, name := range cfg.Queues {
		url, err := dir.Ensure(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to ensure queue %s: %w", name, err)
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", name, url)
	}
	return nil
}
