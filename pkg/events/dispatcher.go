package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/eventqueue/pkg/metrics"
	"github.com/ava-labs/eventqueue/pkg/queue"
)

// Dispatcher runs a subscription's handler for one delivery and acknowledges
// it on success.
type Dispatcher struct {
	svc     queue.Service
	dir     *Directory
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	onError ErrorHandler
}

// NewDispatcher creates a Dispatcher. onError may be nil.
func NewDispatcher(
	svc queue.Service,
	dir *Directory,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	onError ErrorHandler,
) *Dispatcher {
	return &Dispatcher{
		svc:     svc,
		dir:     dir,
		log:     log,
		metrics: m,
		onError: onError,
	}
}

// Dispatch invokes the handler and deletes the message if it succeeded.
//
// Handler errors and panics are logged and passed to the ErrorHandler; the
// message is left for redelivery and Continue is returned. Delete failures
// are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, sub Subscription, delivery *Delivery) Outcome {
	d.metrics.IncMessagesInFlight()
	defer d.metrics.DecMessagesInFlight()

	start := time.Now()
	outcome, err := d.invoke(ctx, sub, delivery)
	d.metrics.RecordMessageProcessed(delivery.QueueName, err, time.Since(start).Seconds())

	if err != nil {
		d.log.Errorw("handler failed, message left for redelivery",
			"queue", delivery.QueueName,
			"messageID", delivery.MessageID,
			"error", err,
		)
		if d.onError != nil {
			d.onError(ctx, *delivery, err)
		}
		return Continue
	}

	d.ack(ctx, delivery)
	return outcome
}

func (d *Dispatcher) invoke(ctx context.Context, sub Subscription, delivery *Delivery) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("handler panicked",
				"queue", delivery.QueueName,
				"messageID", delivery.MessageID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			outcome = Continue
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return sub.Handler(ctx, delivery.Body)
}

func (d *Dispatcher) ack(ctx context.Context, delivery *Delivery) {
	url, err := d.dir.Resolve(ctx, delivery.QueueName)
	if err != nil || url == "" {
		d.log.Errorw("cannot acknowledge message, queue not resolved",
			"queue", delivery.QueueName,
			"messageID", delivery.MessageID,
			"error", err,
		)
		return
	}

	err = d.svc.DeleteMessage(ctx, url, delivery.ReceiptHandle)
	d.metrics.RecordDelete(delivery.QueueName, err)
	if err != nil {
		d.log.Errorw("failed to delete message",
			"queue", delivery.QueueName,
			"messageID", delivery.MessageID,
			"error", err,
		)
		return
	}
	d.log.Debugw("message deleted", "queue", delivery.QueueName, "messageID", delivery.MessageID)
}
