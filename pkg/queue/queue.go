package queue

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultWaitTime is the long poll duration used both when creating
	// queues and when receiving from them.
	DefaultWaitTime = 20 * time.Second

	// DefaultVisibilityTimeout hides a received message long enough to cover
	// the slowest handler before it becomes receivable again.
	DefaultVisibilityTimeout = 12 * time.Hour

	// DefaultDeduplicationWindow is how long an ordered queue remembers a
	// deduplication id.
	DefaultDeduplicationWindow = 5 * time.Minute
)

var (
	ErrQueueNotFound   = errors.New("queue does not exist")
	ErrInvalidReceipt  = errors.New("invalid receipt handle")
	ErrInvalidQueueURL = errors.New("invalid queue url")
)

// Attributes are applied when a queue is created.
type Attributes struct {
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	// FIFO enables strict ordering within a message group.
	FIFO bool
	// ContentBasedDeduplication lets the service derive deduplication ids
	// from the body. When false on a FIFO queue every send must carry an id.
	ContentBasedDeduplication bool
}

// SendInput is a single outbound message.
//
// GroupID and DeduplicationID are only meaningful for FIFO queues and must be
// empty otherwise.
type SendInput struct {
	Body            string
	GroupID         string
	DeduplicationID string
}

// Message is a raw delivery as returned by the service.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
}

// Service is an external durable queue with at-least-once delivery.
//
// All methods may block on network I/O and honor ctx cancellation.
type Service interface {
	// GetQueueURL returns the identifier of the named queue or
	// ErrQueueNotFound if it does not exist.
	GetQueueURL(ctx context.Context, name string) (string, error)

	// CreateQueue creates the named queue. Creating a queue that already
	// exists with the same attributes succeeds and returns its identifier.
	CreateQueue(ctx context.Context, name string, attrs Attributes) (string, error)

	// SendMessage submits one message and returns the service message id.
	SendMessage(ctx context.Context, queueURL string, in SendInput) (string, error)

	// ReceiveMessages waits up to wait for messages and returns at most max
	// of them. An empty slice means nothing arrived within the window.
	ReceiveMessages(ctx context.Context, queueURL string, wait time.Duration, max int) ([]Message, error)

	// DeleteMessage acknowledges a delivery using its receipt handle.
	DeleteMessage(ctx context.Context, queueURL string, receiptHandle string) error
}
