package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/eventqueue/pkg/metrics"
	"github.com/ava-labs/eventqueue/pkg/queue"
)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger shared by the bus and its listeners.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(b *Bus) { b.log = log }
}

// WithMetrics records bus activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithErrorHandler registers a callback for handler failures.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(b *Bus) { b.onError = fn }
}

// WithWaitTime sets the long poll duration of every listener.
func WithWaitTime(d time.Duration) Option {
	return func(b *Bus) { b.waitTime = d }
}

// WithErrorBackoff sets the pause after a failed receive.
func WithErrorBackoff(d time.Duration) Option {
	return func(b *Bus) { b.errorBackoff = d }
}

// WithDeduplicationIDFunc replaces the deduplication id generator used for
// ordered queues.
func WithDeduplicationIDFunc(fn func() string) Option {
	return func(b *Bus) { b.newDedupID = fn }
}

// Bus is the public entry point: it publishes events and runs one listener
// per subscription.
type Bus struct {
	subs         []Subscription
	log          *zap.SugaredLogger
	metrics      *metrics.Metrics
	onError      ErrorHandler
	waitTime     time.Duration
	errorBackoff time.Duration
	newDedupID   func() string

	mu        sync.RWMutex
	publisher *Publisher
	group     errgroup.Group
}

// New validates subs and returns an uninitialized Bus.
func New(subs []Subscription, opts ...Option) (*Bus, error) {
	if err := validateSubscriptions(subs); err != nil {
		return nil, err
	}

	b := &Bus{
		subs:         slices.Clone(subs),
		log:          zap.NewNop().Sugar(),
		waitTime:     queue.DefaultWaitTime,
		errorBackoff: DefaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Init binds the bus to svc and starts one listener goroutine per
// subscription. Each listener creates its queue if needed before polling.
// Listeners stop when ctx is done.
func (b *Bus) Init(ctx context.Context, svc queue.Service) error {
	if svc == nil {
		return errors.New("queue service cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publisher != nil {
		return ErrAlreadyInitialized
	}

	dir := NewDirectory(svc, b.log, b.metrics)
	dispatcher := NewDispatcher(svc, dir, b.log, b.metrics, b.onError)
	poller := NewPoller(svc, dir, dispatcher, b.log, b.metrics, PollerConfig{
		WaitTime:     b.waitTime,
		ErrorBackoff: b.errorBackoff,
	})
	b.publisher = NewPublisher(svc, dir, b.log, b.metrics, b.newDedupID)

	for _, sub := range b.subs {
		b.group.Go(func() error {
			return b.listen(ctx, dir, poller, sub)
		})
	}

	b.log.Infow("event bus initialized", "subscriptions", len(b.subs))
	return nil
}

func (b *Bus) listen(ctx context.Context, dir *Directory, poller *Poller, sub Subscription) error {
	if _, err := dir.Ensure(ctx, sub.Name); err != nil {
		b.log.Errorw("listener could not ensure queue", "queue", sub.Name, "error", err)
		return fmt.Errorf("listener %q: %w", sub.Name, err)
	}
	b.log.Infow("listening", "queue", sub.Name, "fifo", IsOrdered(sub.Name))
	return poller.Run(ctx, sub)
}

// Send publishes payload to the queue for name and returns the message id.
func (b *Bus) Send(ctx context.Context, name string, payload any) (string, error) {
	b.mu.RLock()
	publisher := b.publisher
	b.mu.RUnlock()

	if publisher == nil {
		return "", ErrNotInitialized
	}
	return publisher.Send(ctx, name, payload)
}

// Channels returns a copy of the registered subscriptions.
func (b *Bus) Channels() []Subscription {
	return slices.Clone(b.subs)
}

// Wait blocks until every listener has returned and reports the first
// listener error.
func (b *Bus) Wait() error {
	return b.group.Wait()
}

// Capabilities reports the optional operations this bus supports. Queue
// backed buses deliver each message to a single consumer, so none are
// available.
func (b *Bus) Capabilities() Capability {
	return 0
}
