package inmemory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ava-labs/eventqueue/pkg/queue"
)

const urlScheme = "memory://"

var _ queue.Service = (*Service)(nil)

type message struct {
	seq   uint64
	id    string
	body  string
	group string
}

type inflight struct {
	msg      *message
	deadline time.Time
}

type memQueue struct {
	name     string
	attrs    queue.Attributes
	ready    []*message
	inflight map[string]inflight // receipt handle -> delivery
	locked   map[string]string   // message group -> receipt handle in flight
	dedup    map[string]time.Time
	notify   chan struct{}
}

// signal wakes every blocked receiver. Must be called with s.mu held.
func (q *memQueue) signal() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Service is a thread-safe in-memory implementation of queue.Service.
//
// It honors long polling, visibility timeouts, FIFO deduplication windows and
// FIFO message groups (a group has at most one message in flight), which makes
// it a faithful stand-in for a real queue in tests and local runs.
type Service struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	seq    uint64
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for visibility and dedup deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an empty in-memory queue service.
func New(opts ...Option) *Service {
	s := &Service{
		queues: make(map[string]*memQueue),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueueURL returns the identifier the service assigns to name.
func QueueURL(name string) string {
	return urlScheme + name
}

func (s *Service) GetQueueURL(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[name]; !ok {
		return "", fmt.Errorf("get queue url %q: %w", name, queue.ErrQueueNotFound)
	}
	return QueueURL(name), nil
}

func (s *Service) CreateQueue(_ context.Context, name string, attrs queue.Attributes) (string, error) {
	if name == "" {
		return "", errors.New("queue name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[name]; ok {
		if q.attrs != attrs {
			return "", fmt.Errorf("queue %q already exists with different attributes", name)
		}
		return QueueURL(name), nil
	}

	s.queues[name] = &memQueue{
		name:     name,
		attrs:    attrs,
		inflight: make(map[string]inflight),
		locked:   make(map[string]string),
		dedup:    make(map[string]time.Time),
		notify:   make(chan struct{}),
	}
	return QueueURL(name), nil
}

func (s *Service) SendMessage(_ context.Context, queueURL string, in queue.SendInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.lookup(queueURL)
	if err != nil {
		return "", err
	}

	if q.attrs.FIFO {
		if in.GroupID == "" {
			return "", fmt.Errorf("queue %q: message group id is required", q.name)
		}
		if in.DeduplicationID == "" && !q.attrs.ContentBasedDeduplication {
			return "", fmt.Errorf("queue %q: deduplication id is required", q.name)
		}
	} else if in.GroupID != "" || in.DeduplicationID != "" {
		return "", fmt.Errorf("queue %q: ordering parameters are only valid on fifo queues", q.name)
	}

	now := s.now()
	if in.DeduplicationID != "" {
		for id, expires := range q.dedup {
			if !now.Before(expires) {
				delete(q.dedup, id)
			}
		}
		if _, dup := q.dedup[in.DeduplicationID]; dup {
			// Accepted but not enqueued, as a real FIFO queue does.
			return uuid.NewString(), nil
		}
		q.dedup[in.DeduplicationID] = now.Add(queue.DefaultDeduplicationWindow)
	}

	s.seq++
	msg := &message{seq: s.seq, id: uuid.NewString(), body: in.Body, group: in.GroupID}
	q.ready = append(q.ready, msg)
	q.signal()

	return msg.id, nil
}

func (s *Service) ReceiveMessages(
	ctx context.Context,
	queueURL string,
	wait time.Duration,
	max int,
) ([]queue.Message, error) {
	if max <= 0 {
		return nil, fmt.Errorf("max messages must be > 0, got %d", max)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		s.mu.Lock()
		q, err := s.lookup(queueURL)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}

		s.requeueExpired(q)
		if msgs := s.take(q, max); len(msgs) > 0 {
			s.mu.Unlock()
			return msgs, nil
		}
		notify := q.notify
		expiry, hasExpiry := s.nextExpiry(q)
		s.mu.Unlock()

		woke, err := await(ctx, timer.C, notify, expiry, hasExpiry)
		if !woke {
			return nil, err
		}
	}
}

// await reports true when the receive should look at the queue again and
// false when it should return.
func await(
	ctx context.Context,
	pollEnd <-chan time.Time,
	notify <-chan struct{},
	expiry time.Duration,
	hasExpiry bool,
) (bool, error) {
	var expired <-chan time.Time
	if hasExpiry {
		t := time.NewTimer(expiry)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-pollEnd:
		return false, nil
	case <-notify:
		return true, nil
	case <-expired:
		return true, nil
	}
}

func (s *Service) DeleteMessage(_ context.Context, queueURL string, receiptHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.lookup(queueURL)
	if err != nil {
		return err
	}
	if receiptHandle == "" {
		return queue.ErrInvalidReceipt
	}
	// Deleting an expired or unknown receipt is a no-op, matching SQS.
	d, ok := q.inflight[receiptHandle]
	if !ok {
		return nil
	}
	delete(q.inflight, receiptHandle)
	if s.unlock(q, d.msg, receiptHandle) {
		q.signal()
	}
	return nil
}

// Depth returns the number of ready and in-flight messages for name.
func (s *Service) Depth(name string) (ready, inFlight int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[name]
	if !ok {
		return 0, 0
	}
	s.requeueExpired(q)
	return len(q.ready), len(q.inflight)
}

// lookup must be called with s.mu held.
func (s *Service) lookup(queueURL string) (*memQueue, error) {
	name, ok := strings.CutPrefix(queueURL, urlScheme)
	if !ok {
		return nil, fmt.Errorf("%w: %q", queue.ErrInvalidQueueURL, queueURL)
	}
	q, ok := s.queues[name]
	if !ok {
		return nil, fmt.Errorf("queue %q: %w", name, queue.ErrQueueNotFound)
	}
	return q, nil
}

// requeueExpired moves deliveries whose visibility timeout elapsed back to the
// head of the ready list. Must be called with s.mu held.
func (s *Service) requeueExpired(q *memQueue) {
	now := s.now()
	var expired []*message
	for receipt, d := range q.inflight {
		if !now.Before(d.deadline) {
			expired = append(expired, d.msg)
			delete(q.inflight, receipt)
			s.unlock(q, d.msg, receipt)
		}
	}
	if len(expired) > 0 {
		slices.SortFunc(expired, func(a, b *message) int { return cmp.Compare(a.seq, b.seq) })
		q.ready = append(expired, q.ready...)
	}
}

// take claims up to max ready messages, skipping FIFO messages whose group
// already has one in flight. Must be called with s.mu held.
func (s *Service) take(q *memQueue, max int) []queue.Message {
	deadline := s.now().Add(q.attrs.VisibilityTimeout)

	var out []queue.Message
	remaining := q.ready[:0]
	for _, msg := range q.ready {
		if len(out) == max || s.isLocked(q, msg) {
			remaining = append(remaining, msg)
			continue
		}
		receipt := uuid.NewString()
		q.inflight[receipt] = inflight{msg: msg, deadline: deadline}
		if q.attrs.FIFO {
			q.locked[msg.group] = receipt
		}
		out = append(out, queue.Message{
			ID:            msg.id,
			ReceiptHandle: receipt,
			Body:          msg.body,
		})
	}
	clear(q.ready[len(remaining):])
	q.ready = remaining
	return out
}

func (s *Service) isLocked(q *memQueue, msg *message) bool {
	if !q.attrs.FIFO {
		return false
	}
	_, ok := q.locked[msg.group]
	return ok
}

// unlock releases the group lock held by receipt and reports whether it did.
func (s *Service) unlock(q *memQueue, msg *message, receipt string) bool {
	if !q.attrs.FIFO || q.locked[msg.group] != receipt {
		return false
	}
	delete(q.locked, msg.group)
	return true
}

// nextExpiry returns how long until the earliest in-flight delivery becomes
// visible again. Must be called with s.mu held.
func (s *Service) nextExpiry(q *memQueue) (time.Duration, bool) {
	if len(q.inflight) == 0 {
		return 0, false
	}
	var earliest time.Time
	for _, d := range q.inflight {
		if earliest.IsZero() || d.deadline.Before(earliest) {
			earliest = d.deadline
		}
	}
	return max(earliest.Sub(s.now()), 0), true
}
