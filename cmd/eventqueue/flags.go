package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// backendFlags are shared by every command that talks to a queue service.
func backendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "Queue backend to use (sqs, redis or memory)",
			EnvVars: []string{"QUEUE_BACKEND"},
			Value:   backendSQS,
		},
		&cli.BoolFlag{
			Name:    "explicit-credentials",
			Usage:   "Authenticate to SQS with AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY instead of the default credential chain",
			EnvVars: []string{"EXPLICIT_CREDENTIALS"},
			Value:   false,
		},
	}
}

func runFlags() []cli.Flag {
	return append(backendFlags(),
		&cli.StringSliceFlag{
			Name:     "queues",
			Aliases:  []string{"q"},
			Usage:    "Event names to listen on (comma-separated); names ending in .fifo are ordered",
			EnvVars:  []string{"QUEUES"},
			Required: true,
		},
		&cli.IntFlag{
			Name:    "max-messages",
			Aliases: []string{"n"},
			Usage:   "Stop each listener after it has handled this many messages (0 for unlimited)",
			EnvVars: []string{"MAX_MESSAGES"},
			Value:   0,
		},
		&cli.DurationFlag{
			Name:    "wait-time",
			Usage:   "Long poll duration for each receive",
			EnvVars: []string{"WAIT_TIME"},
			Value:   20 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "error-backoff",
			Usage:   "Pause after a failed receive before polling again",
			EnvVars: []string{"ERROR_BACKOFF"},
			Value:   1 * time.Second,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"R"},
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Aliases: []string{"P"},
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
			Value:   "",
		},
	)
}

func sendFlags() []cli.Flag {
	return append(backendFlags(),
		&cli.StringFlag{
			Name:     "queue",
			Aliases:  []string{"q"},
			Usage:    "Event name to publish to",
			EnvVars:  []string{"QUEUE"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "payload",
			Aliases:  []string{"p"},
			Usage:    "JSON payload to publish",
			Required: true,
		},
	)
}

func ensureFlags() []cli.Flag {
	return append(backendFlags(),
		&cli.StringSliceFlag{
			Name:     "queues",
			Aliases:  []string{"q"},
			Usage:    "Event names whose queues should exist (comma-separated)",
			EnvVars:  []string{"QUEUES"},
			Required: true,
		},
	)
}
