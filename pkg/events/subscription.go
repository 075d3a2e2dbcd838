package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when the bus is used before Init.
	ErrNotInitialized = errors.New("event bus not initialized")
	// ErrAlreadyInitialized is returned when Init is called a second time.
	ErrAlreadyInitialized = errors.New("event bus already initialized")
	// ErrInvalidSubscription wraps every subscription validation failure.
	ErrInvalidSubscription = errors.New("invalid subscription")
	// ErrHandlerPanic is reported to the error handler when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// Outcome tells the listener whether to keep polling after a message.
type Outcome int

const (
	// Continue keeps the listener polling. It is the zero value.
	Continue Outcome = iota
	// Stop ends the listener after the current message is acknowledged.
	Stop
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Handler processes one message payload. Returning a nil error acknowledges
// the message; any error leaves it on the queue for redelivery.
type Handler func(ctx context.Context, payload json.RawMessage) (Outcome, error)

// ErrorHandler observes handler failures. The failed message is not deleted.
type ErrorHandler func(ctx context.Context, delivery Delivery, err error)

// Subscription binds an event name to its handler.
type Subscription struct {
	Name    string
	Handler Handler
}

// Delivery is a single received message.
type Delivery struct {
	QueueName     string
	MessageID     string
	ReceiptHandle string
	Body          json.RawMessage
}

func validateSubscriptions(subs []Subscription) error {
	seen := make(map[string]struct{}, len(subs))
	for i, sub := range subs {
		if sub.Name == "" {
			return fmt.Errorf("%w: subscription %d has an empty name", ErrInvalidSubscription, i)
		}
		if sub.Handler == nil {
			return fmt.Errorf("%w: subscription %q has no handler", ErrInvalidSubscription, sub.Name)
		}
		if _, dup := seen[sub.Name]; dup {
			return fmt.Errorf("%w: duplicate subscription %q", ErrInvalidSubscription, sub.Name)
		}
		seen[sub.Name] = struct{}{}
	}
	return nil
}
