package sqs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/eventqueue/pkg/queue"
)

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/000000000000/orders"

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) GetQueueUrl(ctx context.Context, params *awssqs.GetQueueUrlInput, _ ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*awssqs.GetQueueUrlOutput)
	return out, args.Error(1)
}

func (m *mockAPI) CreateQueue(ctx context.Context, params *awssqs.CreateQueueInput, _ ...func(*awssqs.Options)) (*awssqs.CreateQueueOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*awssqs.CreateQueueOutput)
	return out, args.Error(1)
}

func (m *mockAPI) SendMessage(ctx context.Context, params *awssqs.SendMessageInput, _ ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*awssqs.SendMessageOutput)
	return out, args.Error(1)
}

func (m *mockAPI) ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, _ ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*awssqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *mockAPI) DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, _ ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*awssqs.DeleteMessageOutput)
	return out, args.Error(1)
}

func newTestClient(t *testing.T) (*Client, *mockAPI) {
	api := &mockAPI{}
	t.Cleanup(func() { api.AssertExpectations(t) })
	return NewFromAPI(api, zaptest.NewLogger(t).Sugar()), api
}

func TestGetQueueURL(t *testing.T) {
	c, api := newTestClient(t)

	api.On("GetQueueUrl", mock.Anything, mock.MatchedBy(func(in *awssqs.GetQueueUrlInput) bool {
		return aws.ToString(in.QueueName) == "orders"
	})).Return(&awssqs.GetQueueUrlOutput{QueueUrl: aws.String(testQueueURL)}, nil).Once()

	url, err := c.GetQueueURL(t.Context(), "orders")
	require.NoError(t, err)
	assert.Equal(t, testQueueURL, url)
}

func TestGetQueueURL_NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "typed error",
			err:  &types.QueueDoesNotExist{Message: aws.String("nope")},
		},
		{
			name: "legacy error code",
			err:  &smithy.GenericAPIError{Code: nonExistentQueueCode, Message: "nope"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api := newTestClient(t)
			api.On("GetQueueUrl", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			_, err := c.GetQueueURL(t.Context(), "orders")
			require.ErrorIs(t, err, queue.ErrQueueNotFound)
		})
	}
}

func TestGetQueueURL_TransportError(t *testing.T) {
	c, api := newTestClient(t)
	api.On("GetQueueUrl", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	_, err := c.GetQueueURL(t.Context(), "orders")
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestCreateQueue_Attributes(t *testing.T) {
	tests := []struct {
		name     string
		attrs    queue.Attributes
		expected map[string]string
	}{
		{
			name: "standard queue",
			attrs: queue.Attributes{
				WaitTime:          queue.DefaultWaitTime,
				VisibilityTimeout: queue.DefaultVisibilityTimeout,
			},
			expected: map[string]string{
				"ReceiveMessageWaitTimeSeconds": "20",
				"VisibilityTimeout":             "43200",
			},
		},
		{
			name: "fifo queue",
			attrs: queue.Attributes{
				WaitTime:          queue.DefaultWaitTime,
				VisibilityTimeout: queue.DefaultVisibilityTimeout,
				FIFO:              true,
			},
			expected: map[string]string{
				"ReceiveMessageWaitTimeSeconds": "20",
				"VisibilityTimeout":             "43200",
				"FifoQueue":                     "true",
				"ContentBasedDeduplication":     "false",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api := newTestClient(t)
			api.On("CreateQueue", mock.Anything, mock.MatchedBy(func(in *awssqs.CreateQueueInput) bool {
				return assert.ObjectsAreEqual(tt.expected, in.Attributes)
			})).Return(&awssqs.CreateQueueOutput{QueueUrl: aws.String(testQueueURL)}, nil).Once()

			url, err := c.CreateQueue(t.Context(), "orders", tt.attrs)
			require.NoError(t, err)
			assert.Equal(t, testQueueURL, url)
		})
	}
}

func TestSendMessage(t *testing.T) {
	t.Run("standard", func(t *testing.T) {
		c, api := newTestClient(t)
		api.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *awssqs.SendMessageInput) bool {
			return aws.ToString(in.MessageBody) == `{"id":1}` &&
				in.MessageGroupId == nil &&
				in.MessageDeduplicationId == nil
		})).Return(&awssqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil).Once()

		id, err := c.SendMessage(t.Context(), testQueueURL, queue.SendInput{Body: `{"id":1}`})
		require.NoError(t, err)
		assert.Equal(t, "m-1", id)
	})

	t.Run("fifo", func(t *testing.T) {
		c, api := newTestClient(t)
		api.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *awssqs.SendMessageInput) bool {
			return aws.ToString(in.MessageGroupId) == "1" &&
				aws.ToString(in.MessageDeduplicationId) == "dedup-1"
		})).Return(&awssqs.SendMessageOutput{MessageId: aws.String("m-2")}, nil).Once()

		_, err := c.SendMessage(t.Context(), testQueueURL, queue.SendInput{
			Body:            `{"id":1}`,
			GroupID:         "1",
			DeduplicationID: "dedup-1",
		})
		require.NoError(t, err)
	})

	t.Run("error", func(t *testing.T) {
		c, api := newTestClient(t)
		api.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

		_, err := c.SendMessage(t.Context(), testQueueURL, queue.SendInput{Body: "{}"})
		require.ErrorContains(t, err, "throttled")
	})
}

func TestReceiveMessages(t *testing.T) {
	c, api := newTestClient(t)
	api.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *awssqs.ReceiveMessageInput) bool {
		return in.MaxNumberOfMessages == 1 && in.WaitTimeSeconds == 20
	})).Return(&awssqs.ReceiveMessageOutput{
		Messages: []types.Message{{
			MessageId:     aws.String("m-1"),
			ReceiptHandle: aws.String("r-1"),
			Body:          aws.String(`{"id":1}`),
		}},
	}, nil).Once()

	msgs, err := c.ReceiveMessages(t.Context(), testQueueURL, queue.DefaultWaitTime, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, queue.Message{ID: "m-1", ReceiptHandle: "r-1", Body: `{"id":1}`}, msgs[0])
}

func TestReceiveMessages_ClampsToServiceLimits(t *testing.T) {
	c, api := newTestClient(t)
	api.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *awssqs.ReceiveMessageInput) bool {
		return in.MaxNumberOfMessages == maxReceiveBatch && in.WaitTimeSeconds == 20
	})).Return(&awssqs.ReceiveMessageOutput{}, nil).Once()

	msgs, err := c.ReceiveMessages(t.Context(), testQueueURL, time.Minute, 50)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = c.ReceiveMessages(t.Context(), testQueueURL, time.Second, 0)
	require.Error(t, err)
}

func TestDeleteMessage(t *testing.T) {
	c, api := newTestClient(t)
	api.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *awssqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == "r-1" && aws.ToString(in.QueueUrl) == testQueueURL
	})).Return(&awssqs.DeleteMessageOutput{}, nil).Once()

	require.NoError(t, c.DeleteMessage(t.Context(), testQueueURL, "r-1"))
	require.ErrorIs(t, c.DeleteMessage(t.Context(), testQueueURL, ""), queue.ErrInvalidReceipt)
}

func TestDeleteMessage_InvalidReceipt(t *testing.T) {
	c, api := newTestClient(t)
	api.On("DeleteMessage", mock.Anything, mock.Anything).
		Return(nil, &types.ReceiptHandleIsInvalid{Message: aws.String("bad")}).Once()

	err := c.DeleteMessage(t.Context(), testQueueURL, "stale")
	require.ErrorIs(t, err, queue.ErrInvalidReceipt)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		explicit bool
		wantErr  bool
	}{
		{name: "default chain", cfg: Config{Region: "us-east-1"}},
		{name: "missing region", cfg: Config{}, wantErr: true},
		{name: "explicit without keys", cfg: Config{Region: "us-east-1"}, explicit: true, wantErr: true},
		{
			name:     "explicit with keys",
			cfg:      Config{Region: "us-east-1", AccessKeyID: "AKIA", SecretAccessKey: "secret"},
			explicit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.explicit)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_ENDPOINT_URL", "http://localhost:4566")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "AKIA", cfg.AccessKeyID)
	assert.Equal(t, "secret", cfg.SecretAccessKey)
	assert.Equal(t, "http://localhost:4566", cfg.Endpoint)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(t.Context(), Config{Region: "us-east-1"}, true, zaptest.NewLogger(t).Sugar())
	require.Error(t, err)
}
