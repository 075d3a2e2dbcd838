// Package redisqueue implements queue.Service on top of Redis.
//
// Each queue is a set of keys under a common prefix:
//
//	<prefix>:queues                 set of queue names
//	<prefix>:q:<name>:attrs         hash of creation attributes
//	<prefix>:q:<name>:ready         list of message ids awaiting delivery
//	<prefix>:q:<name>:messages      hash of message id -> body
//	<prefix>:q:<name>:inflight      sorted set of receipt -> visibility deadline (unix ms)
//	<prefix>:q:<name>:receipts      hash of receipt -> message id
//	<prefix>:q:<name>:groups        hash of message id -> message group (FIFO only)
//	<prefix>:q:<name>:locks         hash of message group -> receipt in flight (FIFO only)
//	<prefix>:q:<name>:notify        list of wake-up tokens for blocked receivers
//	<prefix>:q:<name>:dedup:<id>    marker with a TTL of the deduplication window
//
// Receiving runs one Lua script that pushes expired deliveries back to the
// head of the ready list and moves ready ids into the in-flight set with a
// fresh receipt, so an id is always in exactly one of the two. Long polls
// block on the notify list between claims.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ava-labs/eventqueue/pkg/queue"
)

const (
	urlScheme = "redisqueue://"

	// notifyCap bounds the wake-up tokens kept for idle queues.
	notifyCap = 64
	// maxBlock bounds a single blocking wait inside a long poll.
	maxBlock = time.Second
)

// claimScript requeues expired deliveries, then claims up to ARGV[3] ready
// ids. On FIFO queues an id is skipped while its group holds a lock, so a
// group never has more than one message in flight.
//
// KEYS: ready, inflight, receipts, messages, groups, locks
// ARGV: now ms, deadline ms, max, fifo, receipt handles...
var claimScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
for i = #expired, 1, -1 do
	local receipt = expired[i]
	redis.call("ZREM", KEYS[2], receipt)
	local id = redis.call("HGET", KEYS[3], receipt)
	redis.call("HDEL", KEYS[3], receipt)
	if id then
		local group = redis.call("HGET", KEYS[5], id)
		if group and redis.call("HGET", KEYS[6], group) == receipt then
			redis.call("HDEL", KEYS[6], group)
		end
		redis.call("LPUSH", KEYS[1], id)
	end
end

local max = tonumber(ARGV[3])
local out = {}
if max <= 0 then
	return out
end

local fifo = ARGV[4] == "true"
local stop = max - 1
if fifo then
	stop = -1
end

local claimed = 0
for _, id in ipairs(redis.call("LRANGE", KEYS[1], 0, stop)) do
	if claimed >= max then
		break
	end
	local body = redis.call("HGET", KEYS[4], id)
	if not body then
		redis.call("LREM", KEYS[1], 1, id)
	else
		local group = false
		if fifo then
			group = redis.call("HGET", KEYS[5], id)
		end
		if not (group and redis.call("HEXISTS", KEYS[6], group) == 1) then
			claimed = claimed + 1
			local receipt = ARGV[4 + claimed]
			redis.call("LREM", KEYS[1], 1, id)
			redis.call("ZADD", KEYS[2], ARGV[2], receipt)
			redis.call("HSET", KEYS[3], receipt, id)
			if group then
				redis.call("HSET", KEYS[6], group, receipt)
			end
			table.insert(out, id)
			table.insert(out, receipt)
			table.insert(out, body)
		end
	end
end
return out
`)

// deleteScript removes a delivered message by receipt and releases its group
// lock, waking one blocked receiver.
//
// KEYS: inflight, receipts, messages, groups, locks, notify
// ARGV: receipt, last notify index
var deleteScript = redis.NewScript(`
local id = redis.call("HGET", KEYS[2], ARGV[1])
if not id then
	return 0
end
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[3], id)
local group = redis.call("HGET", KEYS[4], id)
if group then
	redis.call("HDEL", KEYS[4], id)
	if redis.call("HGET", KEYS[5], group) == ARGV[1] then
		redis.call("HDEL", KEYS[5], group)
		redis.call("RPUSH", KEYS[6], 1)
		redis.call("LTRIM", KEYS[6], 0, ARGV[2])
	end
end
return 1
`)

var _ queue.Service = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger used for requeue diagnostics.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the time source used for visibility deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is a Redis-backed queue.Service. The caller owns the client.
type Service struct {
	client redis.Cmdable
	prefix string
	log    *zap.SugaredLogger
	now    func() time.Time
}

// New creates a Redis-backed queue service storing keys under prefix.
func New(client redis.Cmdable, prefix string, opts ...Option) *Service {
	s := &Service{
		client: client,
		prefix: prefix,
		log:    zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueueURL returns the identifier the service assigns to name.
func QueueURL(name string) string {
	return urlScheme + name
}

func (s *Service) GetQueueURL(ctx context.Context, name string) (string, error) {
	ok, err := s.client.SIsMember(ctx, s.queuesKey(), name).Result()
	if err != nil {
		return "", fmt.Errorf("get queue url %q: %w", name, err)
	}
	if !ok {
		return "", fmt.Errorf("get queue url %q: %w", name, queue.ErrQueueNotFound)
	}
	return QueueURL(name), nil
}

func (s *Service) CreateQueue(ctx context.Context, name string, attrs queue.Attributes) (string, error) {
	if name == "" {
		return "", errors.New("queue name cannot be empty")
	}

	existing, found, err := s.attributes(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create queue %q: %w", name, err)
	}
	if found {
		if existing != attrs {
			return "", fmt.Errorf("queue %q already exists with different attributes", name)
		}
		return QueueURL(name), nil
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(name, "attrs"), attributesToMap(attrs))
	pipe.SAdd(ctx, s.queuesKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create queue %q: %w", name, err)
	}
	return QueueURL(name), nil
}

func (s *Service) SendMessage(ctx context.Context, queueURL string, in queue.SendInput) (string, error) {
	name, attrs, err := s.lookup(ctx, queueURL)
	if err != nil {
		return "", err
	}

	if attrs.FIFO {
		if in.GroupID == "" {
			return "", fmt.Errorf("queue %q: message group id is required", name)
		}
		if in.DeduplicationID == "" && !attrs.ContentBasedDeduplication {
			return "", fmt.Errorf("queue %q: deduplication id is required", name)
		}
	} else if in.GroupID != "" || in.DeduplicationID != "" {
		return "", fmt.Errorf("queue %q: ordering parameters are only valid on fifo queues", name)
	}

	if in.DeduplicationID != "" {
		fresh, err := s.client.SetNX(ctx, s.key(name, "dedup:"+in.DeduplicationID), 1, queue.DefaultDeduplicationWindow).Result()
		if err != nil {
			return "", fmt.Errorf("queue %q: dedup check: %w", name, err)
		}
		if !fresh {
			// Accepted but not enqueued.
			return uuid.NewString(), nil
		}
	}

	id := uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(name, "messages"), id, in.Body)
	if attrs.FIFO {
		pipe.HSet(ctx, s.key(name, "groups"), id, in.GroupID)
	}
	pipe.RPush(ctx, s.key(name, "ready"), id)
	pipe.RPush(ctx, s.key(name, "notify"), 1)
	pipe.LTrim(ctx, s.key(name, "notify"), 0, notifyCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("queue %q: enqueue: %w", name, err)
	}
	return id, nil
}

func (s *Service) ReceiveMessages(
	ctx context.Context,
	queueURL string,
	wait time.Duration,
	max int,
) ([]queue.Message, error) {
	if max <= 0 {
		return nil, fmt.Errorf("max messages must be > 0, got %d", max)
	}

	name, attrs, err := s.lookup(ctx, queueURL)
	if err != nil {
		return nil, err
	}

	until := time.Now().Add(wait)
	for {
		msgs, err := s.claim(ctx, name, attrs, max)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		remaining := time.Until(until)
		if remaining <= 0 {
			return nil, nil
		}
		if err := s.await(ctx, name, remaining); err != nil {
			return nil, err
		}
	}
}

func (s *Service) DeleteMessage(ctx context.Context, queueURL string, receiptHandle string) error {
	name, _, err := s.lookup(ctx, queueURL)
	if err != nil {
		return err
	}
	if receiptHandle == "" {
		return queue.ErrInvalidReceipt
	}

	// A receipt that expired or was already used deletes nothing.
	err = deleteScript.Run(ctx, s.client, []string{
		s.key(name, "inflight"),
		s.key(name, "receipts"),
		s.key(name, "messages"),
		s.key(name, "groups"),
		s.key(name, "locks"),
		s.key(name, "notify"),
	}, receiptHandle, notifyCap-1).Err()
	if err != nil {
		return fmt.Errorf("queue %q: delete message: %w", name, err)
	}
	return nil
}

// Depth returns the number of ready and in-flight messages for name.
func (s *Service) Depth(ctx context.Context, name string) (ready, inFlight int64, err error) {
	attrs, found, err := s.attributes(ctx, name)
	if err != nil {
		return 0, 0, fmt.Errorf("queue %q: %w", name, err)
	}
	if !found {
		return 0, 0, fmt.Errorf("queue %q: %w", name, queue.ErrQueueNotFound)
	}
	if _, err := s.claim(ctx, name, attrs, 0); err != nil {
		return 0, 0, err
	}

	pipe := s.client.Pipeline()
	readyCmd := pipe.LLen(ctx, s.key(name, "ready"))
	inflightCmd := pipe.ZCard(ctx, s.key(name, "inflight"))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue %q: depth: %w", name, err)
	}
	return readyCmd.Val(), inflightCmd.Val(), nil
}

// claim requeues expired deliveries and moves up to max deliverable ids into
// the in-flight set in one atomic script. With max 0 it only requeues.
func (s *Service) claim(ctx context.Context, name string, attrs queue.Attributes, max int) ([]queue.Message, error) {
	now := s.now()
	args := make([]any, 0, 4+max)
	args = append(args,
		now.UnixMilli(),
		now.Add(attrs.VisibilityTimeout).UnixMilli(),
		max,
		strconv.FormatBool(attrs.FIFO),
	)
	for range max {
		args = append(args, uuid.NewString())
	}

	reply, err := claimScript.Run(ctx, s.client, []string{
		s.key(name, "ready"),
		s.key(name, "inflight"),
		s.key(name, "receipts"),
		s.key(name, "messages"),
		s.key(name, "groups"),
		s.key(name, "locks"),
	}, args...).StringSlice()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("queue %q: claim: %w", name, err)
	}

	// The script replies with flat (id, receipt, body) triples.
	msgs := make([]queue.Message, 0, len(reply)/3)
	for i := 0; i+2 < len(reply); i += 3 {
		msgs = append(msgs, queue.Message{ID: reply[i], ReceiptHandle: reply[i+1], Body: reply[i+2]})
	}
	if len(msgs) > 0 {
		s.log.Debugw("claimed messages", "queue", name, "count", len(msgs))
	}
	return msgs, nil
}

// await blocks until a send or delete signals the queue, at most d. Blocks
// are capped at maxBlock so deliveries whose visibility timeout elapses
// during a long poll are picked up without a new send.
func (s *Service) await(ctx context.Context, name string, d time.Duration) error {
	if d < time.Second {
		// BLPOP timeouts have one second resolution.
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	err := s.client.BLPop(ctx, min(d, maxBlock).Truncate(time.Second), s.key(name, "notify")).Err()
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("queue %q: wait for messages: %w", name, err)
}

func (s *Service) lookup(ctx context.Context, queueURL string) (string, queue.Attributes, error) {
	name, ok := strings.CutPrefix(queueURL, urlScheme)
	if !ok {
		return "", queue.Attributes{}, fmt.Errorf("%w: %q", queue.ErrInvalidQueueURL, queueURL)
	}
	attrs, found, err := s.attributes(ctx, name)
	if err != nil {
		return "", queue.Attributes{}, fmt.Errorf("queue %q: %w", name, err)
	}
	if !found {
		return "", queue.Attributes{}, fmt.Errorf("queue %q: %w", name, queue.ErrQueueNotFound)
	}
	return name, attrs, nil
}

func (s *Service) attributes(ctx context.Context, name string) (queue.Attributes, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(name, "attrs")).Result()
	if err != nil {
		return queue.Attributes{}, false, fmt.Errorf("load attributes: %w", err)
	}
	if len(fields) == 0 {
		return queue.Attributes{}, false, nil
	}
	attrs, err := attributesFromMap(fields)
	if err != nil {
		return queue.Attributes{}, false, err
	}
	return attrs, true, nil
}

func (s *Service) queuesKey() string {
	return s.prefix + ":queues"
}

func (s *Service) key(name, suffix string) string {
	return s.prefix + ":q:" + name + ":" + suffix
}

func attributesToMap(attrs queue.Attributes) map[string]any {
	return map[string]any{
		"wait_ms":             attrs.WaitTime.Milliseconds(),
		"visibility_ms":       attrs.VisibilityTimeout.Milliseconds(),
		"fifo":                strconv.FormatBool(attrs.FIFO),
		"content_based_dedup": strconv.FormatBool(attrs.ContentBasedDeduplication),
	}
}

func attributesFromMap(m map[string]string) (queue.Attributes, error) {
	waitMs, err := strconv.ParseInt(m["wait_ms"], 10, 64)
	if err != nil {
		return queue.Attributes{}, fmt.Errorf("parse wait_ms: %w", err)
	}
	visibilityMs, err := strconv.ParseInt(m["visibility_ms"], 10, 64)
	if err != nil {
		return queue.Attributes{}, fmt.Errorf("parse visibility_ms: %w", err)
	}
	fifo, err := strconv.ParseBool(m["fifo"])
	if err != nil {
		return queue.Attributes{}, fmt.Errorf("parse fifo: %w", err)
	}
	contentDedup, err := strconv.ParseBool(m["content_based_dedup"])
	if err != nil {
		return queue.Attributes{}, fmt.Errorf("parse content_based_dedup: %w", err)
	}
	return queue.Attributes{
		WaitTime:                  time.Duration(waitMs) * time.Millisecond,
		VisibilityTimeout:         time.Duration(visibilityMs) * time.Millisecond,
		FIFO:                      fifo,
		ContentBasedDeduplication: contentDedup,
	}, nil
}
