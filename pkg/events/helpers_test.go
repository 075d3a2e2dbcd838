package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ava-labs/eventqueue/pkg/queue/testutils"
)

const (
	ordersURL = "https://queue.local/000000000000/orders"
	fifoURL   = "https://queue.local/000000000000/orders.fifo"
)

func newMockService(t *testing.T) *testutils.MockService {
	svc := &testutils.MockService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return svc
}

// expectResolved makes name resolvable to url exactly once; later lookups
// must come from the directory cache.
func expectResolved(svc *testutils.MockService, name, url string) {
	svc.On("GetQueueURL", mock.Anything, name).Return(url, nil).Once()
}

func handlerReturning(outcome Outcome, err error) Handler {
	return func(context.Context, json.RawMessage) (Outcome, error) {
		return outcome, err
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
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
