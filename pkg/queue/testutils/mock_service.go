package testutils

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ava-labs/eventqueue/pkg/queue"
)

var _ queue.Service = (*MockService)(nil)

// MockService is a mock implementation of queue.Service for testing
type MockService struct {
	mock.Mock
}

// GetQueueURL mocks the GetQueueURL method
func (m *MockService) GetQueueURL(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// CreateQueue mocks the CreateQueue method
func (m *MockService) CreateQueue(ctx context.Context, name string, attrs queue.Attributes) (string, error) {
	args := m.Called(ctx, name, attrs)
	return args.String(0), args.Error(1)
}

// SendMessage mocks the SendMessage method
func (m *MockService) SendMessage(ctx context.Context, queueURL string, in queue.SendInput) (string, error) {
	args := m.Called(ctx, queueURL, in)
	return args.String(0), args.Error(1)
}

// ReceiveMessages mocks the ReceiveMessages method
func (m *MockService) ReceiveMessages(
	ctx context.Context,
	queueURL string,
	wait time.Duration,
	max int,
) ([]queue.Message, error) {
	args := m.Called(ctx, queueURL, wait, max)
	msgs, _ := args.Get(0).([]queue.Message)
	return msgs, args.Error(1)
}

// DeleteMessage mocks the DeleteMessage method
func (m *MockService) DeleteMessage(ctx context.Context, queueURL string, receiptHandle string) error {
	args := m.Called(ctx, queueURL, receiptHandle)
	return args.Error(0)
}
