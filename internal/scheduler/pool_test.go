package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// blockingExecutor records ids and holds each attempt until release is closed
type blockingExecutor struct {
	mu      sync.Mutex
	ids     []string
	started chan string
	release chan struct{}
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{started: make(chan string, 16), release: make(chan struct{})}
}

func (e *blockingExecutor) Execute(ctx context.Context, appID string) (*models.Application, error) {
	e.mu.Lock()
	e.ids = append(e.ids, appID)
	e.mu.Unlock()
	e.started <- appID

	select {
	case <-e.release:
		return &models.Application{ID: appID, Status: models.StatusCompleted}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *blockingExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

func waitStarted(t *testing.T, e *blockingExecutor) string {
	t.Helper()
	select {
	case id := <-e.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("attempt never started")
		return ""
	}
}

func newPool(exec Executor, workers, size int) *LocalPool {
	return NewLocalPool(exec, workers, size, NewMetrics(prometheus.NewRegistry()), zap.NewNop().Sugar())
}

func TestLocalPoolRunsDispatchedApplications(t *testing.T) {
	exec := newBlockingExecutor()
	close(exec.release)
	pool := newPool(exec, 2, 4)
	pool.Start(context.Background())

	require.NoError(t, pool.Dispatch(context.Background(), "a1"))
	require.NoError(t, pool.Dispatch(context.Background(), "a2"))

	got := []string{waitStarted(t, exec), waitStarted(t, exec)}
	assert.ElementsMatch(t, []string{"a1", "a2"}, got)
	require.NoError(t, pool.Stop(context.Background()))
}

func TestLocalPoolSkipsDuplicateInFlight(t *testing.T) {
	exec := newBlockingExecutor()
	pool := newPool(exec, 1, 4)
	pool.Start(context.Background())

	require.NoError(t, pool.Dispatch(context.Background(), "a1"))
	assert.Equal(t, "a1", waitStarted(t, exec))
	// running: a second dispatch is a no-op
	require.NoError(t, pool.Dispatch(context.Background(), "a1"))

	close(exec.release)
	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, []string{"a1"}, exec.executed())
}

func TestLocalPoolRejectsWhenFull(t *testing.T) {
	exec := newBlockingExecutor()
	pool := newPool(exec, 1, 1)
	pool.Start(context.Background())

	require.NoError(t, pool.Dispatch(context.Background(), "a1"))
	waitStarted(t, exec)
	require.NoError(t, pool.Dispatch(context.Background(), "a2"))
	assert.True(t, pool.Full())

	err := pool.Dispatch(context.Background(), "a3")
	assert.True(t, errors.Is(err, ErrQueueFull))

	close(exec.release)
	require.NoError(t, pool.Stop(context.Background()))
}

func TestLocalPoolStopWaitsForRunningAttempts(t *testing.T) {
	exec := newBlockingExecutor()
	pool := newPool(exec, 1, 2)
	pool.Start(context.Background())

	require.NoError(t, pool.Dispatch(context.Background(), "a1"))
	waitStarted(t, exec)

	stopped := make(chan error, 1)
	go func() { stopped <- pool.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while an attempt was running")
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, errors.Is(pool.Dispatch(context.Background(), "a2"), ErrPoolStopped))
	close(exec.release)
	require.NoError(t, <-stopped)
}

func TestLocalPoolStopCancelsAfterDeadline(t *testing.T) {
	exec := newBlockingExecutor()
	pool := newPool(exec, 1, 2)
	pool.Start(context.Background())

	require.NoError(t, pool.Dispatch(context.Background(), "a1"))
	waitStarted(t, exec)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Stop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRedisQueueFeedsPool(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	queue := NewRedisQueue(client, "test:queue", zap.NewNop().Sugar())
	queue.block = 50 * time.Millisecond

	ctx := context.Background()
	require.NoError(t, queue.Dispatch(ctx, "a1"))
	require.NoError(t, queue.Dispatch(ctx, "a2"))
	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	exec := newBlockingExecutor()
	close(exec.release)
	pool := newPool(exec, 1, 4)
	pool.Start(ctx)

	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- queue.Consume(consumeCtx, pool) }()

	// LPUSH then BRPOP keeps dispatch order
	assert.Equal(t, "a1", waitStarted(t, exec))
	assert.Equal(t, "a2", waitStarted(t, exec))

	stop()
	require.NoError(t, <-done)
	require.NoError(t, pool.Stop(ctx))

	n, err = queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisQueueDispatchError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	queue := NewRedisQueue(client, "", zap.NewNop().Sugar())

	mr.Close()
	assert.Error(t, queue.Dispatch(context.Background(), "a1"))
}

func TestRedisQueueDefaultKeyMatchesConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	queue := NewRedisQueue(client, "", zap.NewNop().Sugar())

	require.NoError(t, queue.Dispatch(context.Background(), "a1"))

	items, err := mr.List(config.DefaultQueueKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, items)
}
