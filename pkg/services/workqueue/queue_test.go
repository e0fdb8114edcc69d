package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testTask struct {
	id      string
	key     string
	execute func(ctx context.Context) error
}

func (t *testTask) ID() string   { return t.id }
func (t *testTask) Name() string { return "test " + t.id }
func (t *testTask) Key() string  { return t.key }
func (t *testTask) Execute(ctx context.Context) error {
	if t.execute == nil {
		return nil
	}
	return t.execute(ctx)
}

func fastRetries(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:     max,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestQueueRunsTasks(t *testing.T) {
	q := New(zap.NewNop())
	var ran atomic.Int32

	for i := 0; i < 3; i++ {
		q.Enqueue(&testTask{
			id:  fmt.Sprintf("t%d", i),
			key: fmt.Sprintf("key-%d", i),
			execute: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
	}
	q.Wait()

	assert.Equal(t, int32(3), ran.Load())
	for _, snap := range q.Snapshots() {
		assert.Equal(t, TaskStatusCompleted, snap.Status)
	}
}

func TestQueueSerializesSameKey(t *testing.T) {
	q := New(zap.NewNop())

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	var order []string

	exec := func(id string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			order = append(order, id)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		}
	}

	for i := 0; i < 4; i++ {
		q.Enqueue(&testTask{id: fmt.Sprintf("t%d", i), key: "prop/period/balance_sheet", execute: exec(fmt.Sprintf("t%d", i))})
	}
	q.Wait()

	assert.Equal(t, 1, maxInFlight, "tasks for one key must not overlap")
	assert.Equal(t, []string{"t0", "t1", "t2", "t3"}, order)
}

func TestQueueParallelAcrossKeys(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan string, 2)
	release := make(chan struct{})

	for _, key := range []string{"key-a", "key-b"} {
		key := key
		q.Enqueue(&testTask{
			id:  key,
			key: key,
			execute: func(ctx context.Context) error {
				started <- key
				<-release
				return nil
			},
		})
	}

	// Both tasks must start without either finishing.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks for distinct keys did not run in parallel")
		}
	}
	close(release)
	q.Wait()
}

func TestQueueRetriesTransientErrors(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetries(3)))

	var attempts atomic.Int32
	q.Enqueue(&testTask{
		id:  "flaky",
		key: "k",
		execute: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient db hiccup")
			}
			return nil
		},
	})
	q.Wait()

	assert.Equal(t, int32(3), attempts.Load())
	snaps := q.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, TaskStatusCompleted, snaps[0].Status)
}

func TestQueueFailsAfterMaxRetries(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetries(2)))

	var attempts atomic.Int32
	q.Enqueue(&testTask{
		id:  "broken",
		key: "k",
		execute: func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("still broken")
		},
	})
	q.Wait()

	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two retries")
	snaps := q.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, TaskStatusFailed, snaps[0].Status)
	assert.Contains(t, snaps[0].Error, "still broken")
}

func TestQueueDoesNotRetryCancellation(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetries(5)))

	var attempts atomic.Int32
	q.Enqueue(&testTask{
		id:  "cancelled",
		key: "k",
		execute: func(ctx context.Context) error {
			attempts.Add(1)
			return context.Canceled
		},
	})
	q.Wait()

	assert.Equal(t, int32(1), attempts.Load())
	snaps := q.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, TaskStatusCancelled, snaps[0].Status)
}

func TestQueueCancelStopsPending(t *testing.T) {
	q := New(zap.NewNop())

	running := make(chan struct{})
	q.Enqueue(&testTask{
		id:  "long",
		key: "k",
		execute: func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	// Same key, so it stays pending behind the running task.
	q.Enqueue(&testTask{id: "queued", key: "k"})

	<-running
	q.Cancel()
	q.Wait()

	statuses := make(map[string]TaskStatus)
	for _, snap := range q.Snapshots() {
		statuses[snap.ID] = snap.Status
	}
	assert.Equal(t, TaskStatusCancelled, statuses["long"])
	assert.Equal(t, TaskStatusCancelled, statuses["queued"])

	// The queue refuses new work after cancellation.
	q.Enqueue(&testTask{id: "late", key: "k2"})
	assert.Len(t, q.Snapshots(), 2)
}

func TestQueueReusableAcrossBatches(t *testing.T) {
	q := New(zap.NewNop())

	q.Enqueue(&testTask{id: "first", key: "k"})
	q.Wait()

	q.Enqueue(&testTask{id: "second", key: "k"})
	q.Wait()

	snaps := q.Snapshots()
	require.Len(t, snaps, 2)
	for _, snap := range snaps {
		assert.Equal(t, TaskStatusCompleted, snap.Status)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("run aborted: %w", context.DeadlineExceeded)))
}
