package events

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ava-labs/eventqueue/pkg/metrics"
	"github.com/ava-labs/eventqueue/pkg/queue"
)

const orderedSuffix = "fifo"

// Directory resolves event names to queue URLs and creates missing queues.
//
// Resolved URLs are cached for the lifetime of the Directory. The first
// resolution of a name wins; later resolutions never overwrite it.
type Directory struct {
	svc     queue.Service
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	urls map[string]string
}

// NewDirectory creates a Directory backed by svc. m may be nil.
func NewDirectory(svc queue.Service, log *zap.SugaredLogger, m *metrics.Metrics) *Directory {
	return &Directory{
		svc:     svc,
		log:     log,
		metrics: m,
		urls:    make(map[string]string),
	}
}

// IsOrdered reports whether name denotes an ordered (FIFO) queue.
func IsOrdered(name string) bool {
	segments := strings.Split(name, ".")
	return segments[len(segments)-1] == orderedSuffix
}

// QueueAttributes returns the attributes used when creating the queue for name.
func QueueAttributes(name string) queue.Attributes {
	attrs := queue.Attributes{
		WaitTime:          queue.DefaultWaitTime,
		VisibilityTimeout: queue.DefaultVisibilityTimeout,
	}
	if IsOrdered(name) {
		attrs.FIFO = true
		attrs.ContentBasedDeduplication = false
	}
	return attrs
}

// Resolve returns the URL of the queue backing name.
//
// An empty string with a nil error means the queue does not exist or could
// not be looked up; lookup failures are logged, not returned.
func (d *Directory) Resolve(ctx context.Context, name string) (string, error) {
	if d == nil || d.svc == nil {
		return "", ErrNotInitialized
	}
	if name == "" {
		return "", nil
	}

	d.mu.RLock()
	url, ok := d.urls[name]
	d.mu.RUnlock()
	if ok {
		d.metrics.RecordLookup(metrics.LookupHit)
		return url, nil
	}

	url, err := d.svc.GetQueueURL(ctx, name)
	if err != nil || url == "" {
		d.metrics.RecordLookup(metrics.LookupAbsent)
		d.log.Errorw("failed to resolve queue", "queue", name, "error", err)
		return "", nil
	}
	d.metrics.RecordLookup(metrics.LookupMiss)

	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.urls[name]; ok {
		return cached, nil
	}
	d.urls[name] = url
	return url, nil
}

// Ensure returns the URL of the queue backing name, creating the queue if it
// does not exist yet.
func (d *Directory) Ensure(ctx context.Context, name string) (string, error) {
	url, err := d.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	if url != "" {
		return url, nil
	}
	if name == "" {
		return "", fmt.Errorf("%w: queue name cannot be empty", queue.ErrQueueNotFound)
	}

	attrs := QueueAttributes(name)
	_, err = d.svc.CreateQueue(ctx, name, attrs)
	d.metrics.RecordQueueCreated(err)
	if err != nil {
		d.log.Errorw("failed to create queue", "queue", name, "error", err)
		return "", fmt.Errorf("failed to create queue %q: %w", name, err)
	}
	d.log.Infow("queue created",
		"queue", name,
		"fifo", attrs.FIFO,
		"visibilityTimeout", attrs.VisibilityTimeout,
	)

	url, err = d.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("queue %q absent after creation: %w", name, queue.ErrQueueNotFound)
	}
	return url, nil
}
