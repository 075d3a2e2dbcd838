package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/eventqueue/pkg/metrics"
	"github.com/ava-labs/eventqueue/pkg/queue"
)

// DefaultErrorBackoff is the pause after a failed receive when none is configured.
const DefaultErrorBackoff = time.Second

// Poller receives messages for a subscription and feeds them to a Dispatcher.
type Poller struct {
	svc          queue.Service
	dir          *Directory
	dispatcher   *Dispatcher
	log          *zap.SugaredLogger
	metrics      *metrics.Metrics
	waitTime     time.Duration
	errorBackoff time.Duration
}

// PollerConfig holds the timing knobs for a Poller.
type PollerConfig struct {
	WaitTime     time.Duration
	ErrorBackoff time.Duration
}

// NewPoller creates a Poller. Zero config values fall back to
// queue.DefaultWaitTime and DefaultErrorBackoff.
func NewPoller(
	svc queue.Service,
	dir *Directory,
	dispatcher *Dispatcher,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	cfg PollerConfig,
) *Poller {
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = queue.DefaultWaitTime
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	return &Poller{
		svc:          svc,
		dir:          dir,
		dispatcher:   dispatcher,
		log:          log,
		metrics:      m,
		waitTime:     cfg.WaitTime,
		errorBackoff: cfg.ErrorBackoff,
	}
}

// Receive long-polls the queue for name and returns at most one delivery.
//
// A nil delivery with a nil error means nothing usable arrived: either the
// wait elapsed or the message body was not valid JSON. Malformed messages are
// not deleted and reappear after their visibility timeout.
func (p *Poller) Receive(ctx context.Context, name string) (*Delivery, error) {
	url, err := p.dir.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("receive from %q: %w", name, queue.ErrQueueNotFound)
	}

	msgs, err := p.svc.ReceiveMessages(ctx, url, p.waitTime, 1)
	p.metrics.RecordReceive(name, err)
	if err != nil {
		return nil, fmt.Errorf("receive from %q: %w", name, err)
	}
	if len(msgs) == 0 {
		p.metrics.IncEmptyReceive(name)
		return nil, nil
	}
	if len(msgs) > 1 {
		p.log.Warnw("received more than one message, extra messages left for redelivery",
			"queue", name,
			"count", len(msgs),
		)
	}

	msg := msgs[0]
	if !json.Valid([]byte(msg.Body)) {
		p.metrics.IncMalformed(name)
		p.log.Errorw("discarding malformed message payload",
			"queue", name,
			"messageID", msg.ID,
			"bodyLength", len(msg.Body),
		)
		return nil, nil
	}

	return &Delivery{
		QueueName:     name,
		MessageID:     msg.ID,
		ReceiptHandle: msg.ReceiptHandle,
		Body:          json.RawMessage(msg.Body),
	}, nil
}

// Run polls the subscription's queue until ctx is done or the handler
// returns Stop. Only one message is processed at a time.
func (p *Poller) Run(ctx context.Context, sub Subscription) error {
	p.metrics.IncActiveListeners()
	defer p.metrics.DecActiveListeners()

	for {
		if ctx.Err() != nil {
			p.log.Infow("context done, stopping listener", "queue", sub.Name)
			return nil
		}

		delivery, err := p.Receive(ctx, sub.Name)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Errorw("failed to receive message, retrying",
				"queue", sub.Name,
				"backoff", p.errorBackoff,
				"error", err,
			)
			p.sleep(ctx, p.errorBackoff)
			continue
		}
		if delivery == nil {
			continue
		}

		if p.dispatcher.Dispatch(ctx, sub, delivery) == Stop {
			p.log.Infow("handler requested stop, listener exiting", "queue", sub.Name)
			return nil
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
