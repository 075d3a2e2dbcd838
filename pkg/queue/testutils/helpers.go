package testutils

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/eventqueue/pkg/queue"
)

// NewTestLogger creates a test logger that writes to testing.T
func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewObservedLogger returns a logger whose entries can be inspected by the test.
func NewObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

// NewTestMessage creates a raw queue message with the given receipt handle and body
func NewTestMessage(id, receiptHandle, body string) queue.Message {
	return queue.Message{
		ID:            id,
		ReceiptHandle: receiptHandle,
		Body:          body,
	}
}
