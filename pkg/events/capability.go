package events

import (
	"context"
	"strings"
)

// Capability is a bit set of optional bus operations.
type Capability uint8

const (
	// CapBroadcast is fan-out of one event to every subscriber.
	CapBroadcast Capability = 1 << iota
	// CapUnsubscribe is removal of a subscription at runtime.
	CapUnsubscribe
	// CapPeek is reading queued messages without consuming them.
	CapPeek
)

// Has reports whether every bit in c2 is set in c.
func (c Capability) Has(c2 Capability) bool {
	return c&c2 == c2
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	if c.Has(CapBroadcast) {
		names = append(names, "broadcast")
	}
	if c.Has(CapUnsubscribe) {
		names = append(names, "unsubscribe")
	}
	if c.Has(CapPeek) {
		names = append(names, "peek")
	}
	return strings.Join(names, "|")
}

// Broadcaster is implemented by buses that support CapBroadcast.
type Broadcaster interface {
	Broadcast(ctx context.Context, name string, payload any) error
}

// Unsubscriber is implemented by buses that support CapUnsubscribe.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, name string) error
}

// Peeker is implemented by buses that support CapPeek.
type Peeker interface {
	Peek(ctx context.Context, name string, max int) ([]Delivery, error)
}
