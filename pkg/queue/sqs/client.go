package sqs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/ava-labs/eventqueue/pkg/queue"
)

const (
	// maxReceiveBatch is the SQS hard limit for MaxNumberOfMessages.
	maxReceiveBatch = 10
	// maxWaitTime is the SQS hard limit for WaitTimeSeconds.
	maxWaitTime = 20 * time.Second

	nonExistentQueueCode = "AWS.SimpleQueueService.NonExistentQueue"
)

var _ queue.Service = (*Client)(nil)

// API is the subset of the SQS client used by Client.
type API interface {
	GetQueueUrl(ctx context.Context, params *awssqs.GetQueueUrlInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, params *awssqs.CreateQueueInput, optFns ...func(*awssqs.Options)) (*awssqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

// Client implements queue.Service on top of AWS SQS.
type Client struct {
	api API
	log *zap.SugaredLogger
}

// NewClient builds an SQS-backed queue service.
//
// When explicitCredentials is true the static key pair from cfg is used;
// otherwise the default AWS credential chain resolves credentials.
func NewClient(ctx context.Context, cfg Config, explicitCredentials bool, log *zap.SugaredLogger) (*Client, error) {
	if err := cfg.Validate(explicitCredentials); err != nil {
		return nil, fmt.Errorf("invalid sqs config: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if explicitCredentials {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	api := awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	log.Infow("sqs client created",
		"region", cfg.Region,
		"explicitCredentials", explicitCredentials,
		"endpoint", cfg.Endpoint,
	)

	return NewFromAPI(api, log), nil
}

// NewFromAPI wraps an existing SQS API implementation.
func NewFromAPI(api API, log *zap.SugaredLogger) *Client {
	return &Client{api: api, log: log}
}

func (c *Client) GetQueueURL(ctx context.Context, name string) (string, error) {
	out, err := c.api.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		if isQueueNotFound(err) {
			return "", fmt.Errorf("get queue url %q: %w", name, queue.ErrQueueNotFound)
		}
		return "", fmt.Errorf("get queue url %q: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (c *Client) CreateQueue(ctx context.Context, name string, attrs queue.Attributes) (string, error) {
	out, err := c.api.CreateQueue(ctx, &awssqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: queueAttributes(attrs),
	})
	if err != nil {
		return "", fmt.Errorf("create queue %q: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (c *Client) SendMessage(ctx context.Context, queueURL string, in queue.SendInput) (string, error) {
	params := &awssqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(in.Body),
	}
	if in.GroupID != "" {
		params.MessageGroupId = aws.String(in.GroupID)
	}
	if in.DeduplicationID != "" {
		params.MessageDeduplicationId = aws.String(in.DeduplicationID)
	}

	out, err := c.api.SendMessage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("send message to %s: %w", queueURL, err)
	}
	return aws.ToString(out.MessageId), nil
}

func (c *Client) ReceiveMessages(
	ctx context.Context,
	queueURL string,
	wait time.Duration,
	max int,
) ([]queue.Message, error) {
	if max <= 0 {
		return nil, fmt.Errorf("max messages must be > 0, got %d", max)
	}
	if max > maxReceiveBatch {
		c.log.Warnw("clamping receive batch to sqs limit", "requested", max, "limit", maxReceiveBatch)
		max = maxReceiveBatch
	}
	if wait > maxWaitTime {
		wait = maxWaitTime
	}

	out, err := c.api.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: int32(max), //nolint:gosec // bounded by maxReceiveBatch
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		if isQueueNotFound(err) {
			return nil, fmt.Errorf("receive from %s: %w", queueURL, queue.ErrQueueNotFound)
		}
		return nil, fmt.Errorf("receive from %s: %w", queueURL, err)
	}

	msgs := make([]queue.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, queue.Message{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}
	return msgs, nil
}

func (c *Client) DeleteMessage(ctx context.Context, queueURL string, receiptHandle string) error {
	if receiptHandle == "" {
		return queue.ErrInvalidReceipt
	}
	_, err := c.api.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		var invalid *types.ReceiptHandleIsInvalid
		if errors.As(err, &invalid) {
			return fmt.Errorf("delete from %s: %w: %w", queueURL, queue.ErrInvalidReceipt, err)
		}
		return fmt.Errorf("delete from %s: %w", queueURL, err)
	}
	return nil
}

// queueAttributes maps queue.Attributes onto SQS attribute names.
func queueAttributes(attrs queue.Attributes) map[string]string {
	out := map[string]string{
		string(types.QueueAttributeNameReceiveMessageWaitTimeSeconds): seconds(attrs.WaitTime),
		string(types.QueueAttributeNameVisibilityTimeout):             seconds(attrs.VisibilityTimeout),
	}
	if attrs.FIFO {
		out[string(types.QueueAttributeNameFifoQueue)] = "true"
		out[string(types.QueueAttributeNameContentBasedDeduplication)] = strconv.FormatBool(attrs.ContentBasedDeduplication)
	}
	return out
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(math.Round(d.Seconds())), 10)
}

func isQueueNotFound(err error) bool {
	var notExist *types.QueueDoesNotExist
	if errors.As(err, &notExist) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == nonExistentQueueCode
}
