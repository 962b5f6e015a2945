package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueueProcessesTasks(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 3)

	q := NewQueue("test", func(ctx context.Context, task Task) error {
		mu.Lock()
		got = append(got, task.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, Config{Workers: 2}, zap.NewNop())

	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Task{ID: id}))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 3)
}

func TestQueueRetriesFailedTasks(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, task Task) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, Config{Workers: 1, MaxRetries: 3, RetryDelay: 10 * time.Millisecond}, zap.NewNop())

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{ID: "flaky"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, task Task) error { return nil }, Config{}, zap.NewNop())
	assert.Error(t, q.Enqueue(Task{ID: "early"}))
}

func TestQueueRejectsWhenFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, task Task) error {
		<-block
		return nil
	}, Config{Workers: 1, BufferSize: 1}, zap.NewNop())

	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	// First task occupies the worker, second fills the buffer; eventually
	// the buffer is full and enqueue must fail instead of blocking.
	var sawErr bool
	for i := 0; i < 4; i++ {
		if err := q.Enqueue(Task{ID: "t"}); err != nil {
			sawErr = true
			break
		}
	}
	assert.True(t, sawErr)
}
