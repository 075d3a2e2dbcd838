package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/eventqueue/pkg/events"
	"github.com/ava-labs/eventqueue/pkg/utils"
)

var errInvalidPayload = errors.New("payload is not valid JSON")

// send publishes one event and prints the message id assigned by the backend.
func send(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	payload := json.RawMessage(cfg.Payload)
	if !json.Valid(payload) {
		return errInvalidPayload
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose, "send")
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

	bus, err := events.New(nil, events.WithLogger(sugar))
	if err != nil {
		return err
	}
	if err := bus.Init(ctx, svc); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	for _, name := range cfg.Queues {
		id, err := bus.Send(ctx, name, payload)
		if err != nil {
			return fmt.Errorf("failed to send to %s: %w", name, err)
		}
		fmt.Fprintln(c.App.Writer, id)
	}
	return nil
}
