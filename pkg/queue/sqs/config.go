package sqs

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for an SQS-backed queue service.
//
// Region is always required. The static credential pair is only consulted when
// the client is built with explicit credentials (e.g. serverless deployments
// where the default provider chain is unavailable).
type Config struct {
	Region          string `env:"AWS_REGION"            envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string `env:"AWS_SESSION_TOKEN"`
	Endpoint        string `env:"AWS_ENDPOINT_URL"` // optional override, e.g. LocalStack
}

// LoadConfig loads SQS configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse sqs config: %w", err)
	}
	return cfg, nil
}

// Validate checks that cfg is usable with the requested credential mode.
func (c Config) Validate(explicitCredentials bool) error {
	if c.Region == "" {
		return errors.New("aws region cannot be empty")
	}
	if explicitCredentials && (c.AccessKeyID == "" || c.SecretAccessKey == "") {
		return errors.New("explicit credentials require AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
	}
	return nil
}
