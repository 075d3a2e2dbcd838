package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/eventqueue/pkg/queue"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var standardAttrs = queue.Attributes{
	WaitTime:          queue.DefaultWaitTime,
	VisibilityTimeout: time.Minute,
}

var fifoAttrs = queue.Attributes{
	WaitTime:          queue.DefaultWaitTime,
	VisibilityTimeout: time.Minute,
	FIFO:              true,
}

func TestGetQueueURL_NotFound(t *testing.T) {
	s := New()

	_, err := s.GetQueueURL(t.Context(), "orders")
	require.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestCreateQueue(t *testing.T) {
	s := New()

	url, err := s.CreateQueue(t.Context(), "orders", standardAttrs)
	require.NoError(t, err)
	assert.Equal(t, "memory://orders", url)

	got, err := s.GetQueueURL(t.Context(), "orders")
	require.NoError(t, err)
	assert.Equal(t, url, got)

	// Same attributes is idempotent
	again, err := s.CreateQueue(t.Context(), "orders", standardAttrs)
	require.NoError(t, err)
	assert.Equal(t, url, again)

	// Different attributes is rejected
	_, err = s.CreateQueue(t.Context(), "orders", fifoAttrs)
	require.Error(t, err)

	_, err = s.CreateQueue(t.Context(), "", standardAttrs)
	require.Error(t, err)
}

func TestSendReceiveDelete(t *testing.T) {
	s := New()
	ctx := t.Context()

	url, err := s.CreateQueue(ctx, "orders", standardAttrs)
	require.NoError(t, err)

	id, err := s.SendMessage(ctx, url, queue.SendInput{Body: `{"id":1}`})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, `{"id":1}`, msgs[0].Body)
	assert.NotEmpty(t, msgs[0].ReceiptHandle)

	ready, inFlight := s.Depth("orders")
	assert.Equal(t, 0, ready)
	assert.Equal(t, 1, inFlight)

	require.NoError(t, s.DeleteMessage(ctx, url, msgs[0].ReceiptHandle))

	ready, inFlight = s.Depth("orders")
	assert.Equal(t, 0, ready)
	assert.Equal(t, 0, inFlight)

	// Deleting twice is a no-op
	require.NoError(t, s.DeleteMessage(ctx, url, msgs[0].ReceiptHandle))
	require.ErrorIs(t, s.DeleteMessage(ctx, url, ""), queue.ErrInvalidReceipt)
}

func TestReceiveMessages_RespectsMax(t *testing.T) {
	s := New()
	ctx := t.Context()
	url, err := s.CreateQueue(ctx, "orders", standardAttrs)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.SendMessage(ctx, url, queue.SendInput{Body: "{}"})
		require.NoError(t, err)
	}

	msgs, err := s.ReceiveMessages(ctx, url, 0, 2)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	_, err = s.ReceiveMessages(ctx, url, 0, 0)
	require.Error(t, err)
}

func TestReceiveMessages_EmptyAfterWait(t *testing.T) {
	s := New()
	url, err := s.CreateQueue(t.Context(), "orders", standardAttrs)
	require.NoError(t, err)

	start := time.Now()
	msgs, err := s.ReceiveMessages(t.Context(), url, 50*time.Millisecond, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReceiveMessages_LongPollWakesOnSend(t *testing.T) {
	s := New()
	ctx := t.Context()
	url, err := s.CreateQueue(ctx, "orders", standardAttrs)
	require.NoError(t, err)

	done := make(chan []queue.Message, 1)
	go func() {
		msgs, err := s.ReceiveMessages(ctx, url, 5*time.Second, 1)
		assert.NoError(t, err)
		done <- msgs
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = s.SendMessage(ctx, url, queue.SendInput{Body: `"hello"`})
	require.NoError(t, err)

	select {
	case msgs := <-done:
		require.Len(t, msgs, 1)
		assert.Equal(t, `"hello"`, msgs[0].Body)
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not wake up on send")
	}
}

func TestReceiveMessages_ContextCanceled(t *testing.T) {
	s := New()
	url, err := s.CreateQueue(t.Context(), "orders", standardAttrs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = s.ReceiveMessages(ctx, url, time.Minute, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestVisibilityTimeout_Redelivers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(clock.Now))
	ctx := t.Context()

	url, err := s.CreateQueue(ctx, "orders", standardAttrs)
	require.NoError(t, err)
	_, err = s.SendMessage(ctx, url, queue.SendInput{Body: "{}"})
	require.NoError(t, err)

	first, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Hidden while in flight
	none, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, none)

	clock.Advance(standardAttrs.VisibilityTimeout)

	second, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[0].ReceiptHandle, second[0].ReceiptHandle)
}

func TestFIFO_Validation(t *testing.T) {
	s := New()
	ctx := t.Context()

	fifoURL, err := s.CreateQueue(ctx, "orders.fifo", fifoAttrs)
	require.NoError(t, err)
	stdURL, err := s.CreateQueue(ctx, "orders", standardAttrs)
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, fifoURL, queue.SendInput{Body: "{}", DeduplicationID: "a"})
	require.Error(t, err, "group id required")

	_, err = s.SendMessage(ctx, fifoURL, queue.SendInput{Body: "{}", GroupID: "1"})
	require.Error(t, err, "dedup id required")

	_, err = s.SendMessage(ctx, stdURL, queue.SendInput{Body: "{}", GroupID: "1"})
	require.Error(t, err, "ordering params on standard queue")
}

func TestFIFO_DeduplicationWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(clock.Now))
	ctx := t.Context()

	url, err := s.CreateQueue(ctx, "orders.fifo", fifoAttrs)
	require.NoError(t, err)

	in := queue.SendInput{Body: `{"id":1}`, GroupID: "1", DeduplicationID: "dup"}
	_, err = s.SendMessage(ctx, url, in)
	require.NoError(t, err)
	_, err = s.SendMessage(ctx, url, in)
	require.NoError(t, err)

	ready, _ := s.Depth("orders.fifo")
	assert.Equal(t, 1, ready, "duplicate within window is suppressed")

	clock.Advance(queue.DefaultDeduplicationWindow)
	_, err = s.SendMessage(ctx, url, in)
	require.NoError(t, err)

	ready, _ = s.Depth("orders.fifo")
	assert.Equal(t, 2, ready, "window expired")
}

func TestFIFO_PreservesOrder(t *testing.T) {
	s := New()
	ctx := t.Context()
	url, err := s.CreateQueue(ctx, "orders.fifo", fifoAttrs)
	require.NoError(t, err)

	bodies := []string{"1", "2", "3"}
	for i, b := range bodies {
		_, err := s.SendMessage(ctx, url, queue.SendInput{Body: b, GroupID: "1", DeduplicationID: bodies[i]})
		require.NoError(t, err)
	}

	for _, want := range bodies {
		msgs, err := s.ReceiveMessages(ctx, url, 0, 1)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, want, msgs[0].Body)
		require.NoError(t, s.DeleteMessage(ctx, url, msgs[0].ReceiptHandle))
	}
}

func TestFIFO_InFlightMessageBlocksItsGroup(t *testing.T) {
	s := New()
	ctx := t.Context()
	url, err := s.CreateQueue(ctx, "orders.fifo", fifoAttrs)
	require.NoError(t, err)

	for _, in := range []queue.SendInput{
		{Body: "1", GroupID: "1", DeduplicationID: "d-1"},
		{Body: "2", GroupID: "1", DeduplicationID: "d-2"},
		{Body: "a", GroupID: "2", DeduplicationID: "d-a"},
	} {
		_, err := s.SendMessage(ctx, url, in)
		require.NoError(t, err)
	}

	head, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	require.Len(t, head, 1)
	assert.Equal(t, "1", head[0].Body)

	// Group "1" is locked by the unacknowledged head; group "2" is not.
	other, err := s.ReceiveMessages(ctx, url, 0, 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "a", other[0].Body)

	blocked, err := s.ReceiveMessages(ctx, url, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	require.NoError(t, s.DeleteMessage(ctx, url, head[0].ReceiptHandle))

	next, err := s.ReceiveMessages(ctx, url, 0, 10)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "2", next[0].Body)
}

func TestFIFO_ExpiredHeadIsRedeliveredBeforeSuccessor(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(clock.Now))
	ctx := t.Context()
	url, err := s.CreateQueue(ctx, "orders.fifo", fifoAttrs)
	require.NoError(t, err)

	for _, b := range []string{"1", "2"} {
		_, err := s.SendMessage(ctx, url, queue.SendInput{Body: b, GroupID: "1", DeduplicationID: b})
		require.NoError(t, err)
	}

	// The head fails: it is received and never deleted.
	failed, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	none, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, none)

	clock.Advance(fifoAttrs.VisibilityTimeout)

	for _, want := range []string{"1", "2"} {
		msgs, err := s.ReceiveMessages(ctx, url, 0, 1)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, want, msgs[0].Body)
		require.NoError(t, s.DeleteMessage(ctx, url, msgs[0].ReceiptHandle))
	}
}

func TestFIFO_DeleteWakesBlockedReceiver(t *testing.T) {
	s := New()
	ctx := t.Context()
	url, err := s.CreateQueue(ctx, "orders.fifo", fifoAttrs)
	require.NoError(t, err)

	for _, b := range []string{"1", "2"} {
		_, err := s.SendMessage(ctx, url, queue.SendInput{Body: b, GroupID: "1", DeduplicationID: b})
		require.NoError(t, err)
	}
	head, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	require.Len(t, head, 1)

	done := make(chan []queue.Message, 1)
	go func() {
		msgs, err := s.ReceiveMessages(ctx, url, 5*time.Second, 1)
		assert.NoError(t, err)
		done <- msgs
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.DeleteMessage(ctx, url, head[0].ReceiptHandle))

	select {
	case msgs := <-done:
		require.Len(t, msgs, 1)
		assert.Equal(t, "2", msgs[0].Body)
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not wake up on delete")
	}
}

func TestReceiveMessages_LongPollWakesOnVisibilityExpiry(t *testing.T) {
	s := New()
	ctx := t.Context()
	attrs := queue.Attributes{WaitTime: queue.DefaultWaitTime, VisibilityTimeout: 50 * time.Millisecond}
	url, err := s.CreateQueue(ctx, "orders", attrs)
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, url, queue.SendInput{Body: "{}"})
	require.NoError(t, err)
	first, err := s.ReceiveMessages(ctx, url, 0, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	start := time.Now()
	second, err := s.ReceiveMessages(ctx, url, 5*time.Second, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInvalidQueueURL(t *testing.T) {
	s := New()

	_, err := s.SendMessage(t.Context(), "sqs://orders", queue.SendInput{Body: "{}"})
	require.ErrorIs(t, err, queue.ErrInvalidQueueURL)

	_, err = s.ReceiveMessages(t.Context(), "memory://missing", 0, 1)
	require.ErrorIs(t, err, queue.ErrQueueNotFound)
}
