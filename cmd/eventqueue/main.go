package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "eventqueue",
		Usage: "Publish and consume named events over durable queues",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Listen on one or more event queues and log every message",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "send",
				Usage:  "Publish a single JSON event",
				Flags:  sendFlags(),
				Action: send,
			},
			{
				Name:   "ensure",
				Usage:  "Create event queues that do not exist yet",
				Flags:  ensureFlags(),
				Action: ensure,
			},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
