package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/eventqueue/pkg/queue"
	"github.com/ava-labs/eventqueue/pkg/queue/inmemory"
	"github.com/ava-labs/eventqueue/pkg/queue/redisqueue"
	"github.com/ava-labs/eventqueue/pkg/queue/sqs"
)

const (
	backendSQS    = "sqs"
	backendRedis  = "redis"
	backendMemory = "memory"
)

var supportedBackends = []string{backendSQS, backendRedis, backendMemory}

// newQueueService connects to the configured backend. The returned close
// function releases its connections and is never nil.
func newQueueService(ctx context.Context, cfg *Config, log *zap.SugaredLogger) (queue.Service, func(), error) {
	switch cfg.Backend {
	case backendSQS:
		sqsCfg, err := sqs.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		client, err := sqs.NewClient(ctx, sqsCfg, cfg.ExplicitCredentials, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sqs client: %w", err)
		}
		log.Infow("using sqs backend", "region", sqsCfg.Region, "endpoint", sqsCfg.Endpoint)
		return client, func() {}, nil

	case backendRedis:
		redisCfg, err := redisqueue.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		client, err := redisqueue.Connect(ctx, redisCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Infow("using redis backend", "keyPrefix", redisCfg.KeyPrefix)
		svc := redisqueue.New(client, redisCfg.KeyPrefix, redisqueue.WithLogger(log))
		return svc, func() {
			if err := client.Close(); err != nil {
				log.Warnw("failed to close redis client", "error", err)
			}
		}, nil

	case backendMemory:
		log.Warn("using in-memory backend, queues live only as long as this process")
		return inmemory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("invalid backend: %s", cfg.Backend)
	}
}
