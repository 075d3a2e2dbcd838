// Package events dispatches named events through durable queues.
//
// Every event name is backed by one queue of the same name. A Bus publishes
// JSON payloads to those queues and runs one listener per Subscription. Each
// listener long-polls its queue, hands one message at a time to the
// subscription's Handler and deletes the message only when the handler
// succeeds. Failed or malformed messages stay on the queue and become
// receivable again once their visibility timeout elapses.
//
// Names whose last dot-separated segment is "fifo" are ordered queues: all
// messages share MessageGroupID and every send carries a fresh deduplication
// id.
//
// Usage:
//
//	bus, err := events.New([]events.Subscription{
//		{Name: "orders.fifo", Handler: handleOrder},
//	}, events.WithLogger(log))
//	if err != nil { ... }
//	if err := bus.Init(ctx, svc); err != nil { ... }
//	_, err = bus.Send(ctx, "orders.fifo", order)
package events
