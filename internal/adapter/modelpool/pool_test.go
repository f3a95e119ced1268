package modelpool

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olla-run/olla/internal/config"
	"github.com/olla-run/olla/internal/logger"
	"github.com/olla-run/olla/theme"
)

func testPool(t *testing.T) *Pool {
	t.Helper()
	l := logger.NewStyledLogger(slog.New(slog.NewTextHandler(discard{}, nil)), theme.Default())
	cfg := config.ModelPoolConfig{
		DefaultMaxConcurrent:    2,
		DefaultMaxQueueDepth:    4,
		QueueTimeout:            200 * time.Millisecond,
		QueueTickInterval:       5 * time.Millisecond,
		BreakerFailureThreshold: 3,
		BreakerCooldown:         50 * time.Millisecond,
	}
	p := New(cfg, l)
	t.Cleanup(p.Close)
	return p
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestReserveRespectsCapacity(t *testing.T) {
	p := testPool(t)

	require.True(t, p.ReserveSlot("p1", "m1"))
	p.ConfirmSlot("p1", "m1")
	require.True(t, p.ReserveSlot("p1", "m1"))
	p.ConfirmSlot("p1", "m1")

	assert.False(t, p.ReserveSlot("p1", "m1"))
}

func TestReleaseFreesCapacity(t *testing.T) {
	p := testPool(t)

	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")
	p.ReleaseSlot("p1", "m1", true)

	assert.True(t, p.HasCapacity("p1", "m1"))
}

func TestCircuitBreakerTripsAfterFailures(t *testing.T) {
	p := testPool(t)

	for i := 0; i < 3; i++ {
		p.ReserveSlot("p1", "m1")
		p.ConfirmSlot("p1", "m1")
		p.ReleaseSlot("p1", "m1", false)
	}

	assert.False(t, p.IsAvailable("p1", "m1"))
}

func TestEnqueueWaitsForCapacity(t *testing.T) {
	p := testPool(t)

	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")
	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")

	done := make(chan error, 1)
	go func() {
		done <- p.Enqueue(context.Background(), "p1", "m1", 0)
	}()

	time.Sleep(10 * time.Millisecond)
	p.ReleaseSlot("p1", "m1", true)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock after release")
	}
}

func TestEnqueueTimesOut(t *testing.T) {
	p := testPool(t)

	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")
	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")

	err := p.Enqueue(context.Background(), "p1", "m1", 0)
	assert.Error(t, err)
}

func TestEnqueueServesHigherPriorityFirst(t *testing.T) {
	p := testPool(t)

	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")
	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")

	order := make(chan int, 3)
	enqueue := func(priority int) {
		go func() {
			if err := p.Enqueue(context.Background(), "p1", "m1", priority); err == nil {
				order <- priority
			}
		}()
	}

	// Low priority enqueues first; the two higher-priority waiters enqueue
	// after it but must still be served ahead of it, and the tie between
	// them breaks on enqueue order (FIFO within a priority).
	enqueue(0)
	time.Sleep(10 * time.Millisecond)
	enqueue(5)
	time.Sleep(10 * time.Millisecond)
	enqueue(5)
	time.Sleep(10 * time.Millisecond)

	p.ReleaseSlot("p1", "m1", true)
	p.ReleaseSlot("p1", "m1", true)
	p.ReleaseSlot("p1", "m1", true)

	var got []int
	for i := 0; i < 3; i++ {
		select {
		case priority := <-order:
			got = append(got, priority)
		case <-time.After(time.Second):
			t.Fatalf("only %d/3 waiters served", i)
		}
	}

	assert.Equal(t, []int{5, 5, 0}, got)
}

func TestClearQueuesFailsWaiters(t *testing.T) {
	p := testPool(t)

	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")
	p.ReserveSlot("p1", "m1")
	p.ConfirmSlot("p1", "m1")

	done := make(chan error, 1)
	go func() {
		done <- p.Enqueue(context.Background(), "p1", "m1", 0)
	}()
	time.Sleep(10 * time.Millisecond)

	cleared := p.ClearQueues()
	assert.Equal(t, 1, cleared)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("cleared waiter did not unblock")
	}
}
