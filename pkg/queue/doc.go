// Package queue defines the contract between the event dispatcher and an
// external durable queue service.
//
// A Service exposes name-based lookup and creation of queues plus the
// send/receive/delete primitives of an at-least-once queue with visibility
// timeouts. Backends live in sub-packages: sqs (AWS SQS), redisqueue (Redis)
// and inmemory (tests and local runs).
//
// A queue that does not exist is reported as ErrQueueNotFound so callers can
// tell it apart from transport failures.
package queue
