package scheduler

import (
	"context"
	"sync"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/worker"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("worker queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Executor runs one attempt for an application
type Executor interface {
	Execute(ctx context.Context, appID string) (*models.Application, error)
}

// LocalPool runs attempts on a fixed number of goroutines fed by a bounded queue.
// An id already queued or running is not queued twice.
type LocalPool struct {
	exec    Executor
	workers int
	log     *zap.SugaredLogger
	metrics *Metrics

	mu       sync.Mutex
	queue    chan string
	inflight map[string]struct{}
	stopping bool

	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewLocalPool(exec Executor, workers, queueSize int, metrics *Metrics, log *zap.SugaredLogger) *LocalPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	return &LocalPool{
		exec:     exec,
		workers:  workers,
		log:      log,
		metrics:  metrics,
		queue:    make(chan string, queueSize),
		inflight: make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

// Start launches the worker goroutines. Attempts run on a context derived from ctx.
func (p *LocalPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Infof("👷 Worker pool started with %d workers", p.workers)
}

// Dispatch queues appID without blocking. ErrQueueFull leaves the application
// waiting in the store for the cleanup sweep.
func (p *LocalPool) Dispatch(_ context.Context, appID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return ErrPoolStopped
	}
	if _, ok := p.inflight[appID]; ok {
		return nil
	}
	select {
	case p.queue <- appID:
		p.inflight[appID] = struct{}{}
		p.setDepth()
		return nil
	default:
		return errors.WithDetailf(ErrQueueFull, "capacity %d", cap(p.queue))
	}
}

// Full reports whether Dispatch would be rejected for capacity
func (p *LocalPool) Full() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == cap(p.queue)
}

// Stop refuses new work and waits for running attempts to finish. When ctx expires
// first the running attempts are cancelled. Ids still queued stay pending or queued
// in the store and are picked up again by the cleanup sweep.
func (p *LocalPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	close(p.stop)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("👷 Worker pool drained")
		return nil
	case <-ctx.Done():
		p.log.Warn("⚠️ Drain timed out, cancelling running attempts")
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (p *LocalPool) run(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		// stop wins over a non-empty queue
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case appID := <-p.queue:
			p.mu.Lock()
			p.setDepth()
			p.mu.Unlock()
			p.execute(ctx, n, appID)
		}
	}
}

func (p *LocalPool) execute(ctx context.Context, n int, appID string) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, appID)
		p.mu.Unlock()
	}()

	app, err := p.exec.Execute(ctx, appID)
	switch {
	case err == nil:
		p.log.Debugw("attempt finished", "worker", n, "application_id", appID, "status", app.Status)
	case errors.IsAny(err, worker.ErrNotClaimable, worker.ErrStaleAttempt):
		p.log.Debugw("attempt skipped", "worker", n, "application_id", appID, "reason", err)
	default:
		p.log.Errorw("❌ Attempt errored", "worker", n, "application_id", appID, "error", err)
	}
}

func (p *LocalPool) setDepth() {
	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(len(p.queue)))
	}
}
