package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// Config holds all configuration for the eventqueue commands
type Config struct {
	// Application settings
	Verbose bool

	// Backend settings
	Backend             string
	ExplicitCredentials bool

	// Listener settings
	Queues       []string
	MaxMessages  int
	WaitTime     time.Duration
	ErrorBackoff time.Duration

	// Publish settings
	Payload string

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	if !slices.Contains(supportedBackends, c.Backend) {
		return fmt.Errorf("invalid backend %q, must be one of %s", c.Backend, strings.Join(supportedBackends, ", "))
	}
	if len(c.Queues) == 0 {
		return errors.New("at least one queue is required")
	}
	return nil
}

// ValidateListener checks the settings only the run command uses.
func (c *Config) ValidateListener() error {
	if c.MaxMessages < 0 {
		return fmt.Errorf("max-messages must be >= 0, got %d", c.MaxMessages)
	}
	if c.WaitTime <= 0 {
		return fmt.Errorf("wait-time must be > 0, got %s", c.WaitTime)
	}
	if c.ErrorBackoff <= 0 {
		return fmt.Errorf("error-backoff must be > 0, got %s", c.ErrorBackoff)
	}
	return nil
}

// buildConfig builds a Config from CLI context flags. Flags a command does
// not define read as zero values.
func buildConfig(c *cli.Context) (*Config, error) {
	queues := parseQueues(c.StringSlice("queues"))
	if name := strings.TrimSpace(c.String("queue")); name != "" {
		queues = append(queues, name)
	}

	cfg := &Config{
		Verbose:             c.Bool("verbose"),
		Backend:             strings.ToLower(strings.TrimSpace(c.String("backend"))),
		ExplicitCredentials: c.Bool("explicit-credentials"),
		Queues:              queues,
		MaxMessages:         c.Int("max-messages"),
		WaitTime:            c.Duration("wait-time"),
		ErrorBackoff:        c.Duration("error-backoff"),
		Payload:             c.String("payload"),
		MetricsHost:         c.String("metrics-host"),
		MetricsPort:         c.Int("metrics-port"),
		Environment:         c.String("environment"),
		Region:              c.String("region"),
		CloudProvider:       c.String("cloud-provider"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseQueues flattens comma-separated values, trims whitespace and drops
// empty and repeated names while keeping the first occurrence order.
func parseQueues(values []string) []string {
	var queues []string
	for _, value := range values {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" || slices.Contains(queues, name) {
				continue
			}
			queues = append(queues, name)
		}
	}
	return queues
}
