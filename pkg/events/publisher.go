package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ava-labs/eventqueue/pkg/metrics"
	"github.com/ava-labs/eventqueue/pkg/queue"
)

// MessageGroupID is shared by every message sent to an ordered queue, so all
// of a queue's messages are delivered in send order.
const MessageGroupID = "1"

// Publisher serializes payloads and submits them to the queue for an event name.
type Publisher struct {
	svc        queue.Service
	dir        *Directory
	log        *zap.SugaredLogger
	metrics    *metrics.Metrics
	newDedupID func() string
}

// NewPublisher creates a Publisher. When newDedupID is nil, uuid.NewString
// is used.
func NewPublisher(
	svc queue.Service,
	dir *Directory,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	newDedupID func() string,
) *Publisher {
	if newDedupID == nil {
		newDedupID = uuid.NewString
	}
	return &Publisher{
		svc:        svc,
		dir:        dir,
		log:        log,
		metrics:    m,
		newDedupID: newDedupID,
	}
}

// Send publishes payload as JSON to the queue for name, creating the queue if
// needed, and returns the service-assigned message id.
func (p *Publisher) Send(ctx context.Context, name string, payload any) (messageID string, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordPublish(name, err, time.Since(start).Seconds())
	}()

	url, err := p.dir.Ensure(ctx, name)
	if err != nil {
		p.log.Errorw("failed to ensure queue for send", "queue", name, "error", err)
		return "", fmt.Errorf("send to %q: %w", name, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Errorw("failed to serialize payload", "queue", name, "error", err)
		return "", fmt.Errorf("send to %q: failed to serialize payload: %w", name, err)
	}

	in := queue.SendInput{Body: string(body)}
	if IsOrdered(name) {
		in.GroupID = MessageGroupID
		in.DeduplicationID = p.newDedupID()
	}

	messageID, err = p.svc.SendMessage(ctx, url, in)
	if err != nil {
		p.log.Errorw("failed to send message", "queue", name, "error", err)
		return "", fmt.Errorf("send to %q: %w", name, err)
	}

	p.log.Infow("message sent",
		"queue", name,
		"messageID", messageID,
		"deduplicationID", in.DeduplicationID,
	)
	return messageID, nil
}
