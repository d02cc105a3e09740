package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-openclaw-autoapply/internal/errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper runs CleanupStale and RetryFailedEligible on fixed intervals.
// A sweep still running when its next tick fires is skipped.
type Sweeper struct {
	sched   *Scheduler
	cron    *cron.Cron
	log     *zap.SugaredLogger
	metrics *Metrics

	cleanupEvery time.Duration
	retryEvery   time.Duration

	mu      sync.Mutex
	running map[string]bool
	started bool
}

func NewSweeper(sched *Scheduler, cleanupEvery, retryEvery time.Duration, metrics *Metrics, log *zap.SugaredLogger) *Sweeper {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Sweeper{
		sched:        sched,
		cron:         cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log:          log,
		metrics:      metrics,
		cleanupEvery: cleanupEvery,
		retryEvery:   retryEvery,
		running:      make(map[string]bool),
	}
}

// Start registers both sweeps and starts the cron loop. Each sweep also runs
// once immediately so records left by a previous process are recovered on boot.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cleanupEvery <= 0 || s.retryEvery <= 0 {
		return errors.Newf("sweep intervals must be positive: cleanup=%s retry=%s", s.cleanupEvery, s.retryEvery)
	}
	if _, err := s.cron.AddFunc(every(s.cleanupEvery), func() { s.RunCleanup(ctx) }); err != nil {
		return errors.Wrap(err, "schedule cleanup sweep")
	}
	if _, err := s.cron.AddFunc(every(s.retryEvery), func() { s.RunRetry(ctx) }); err != nil {
		return errors.Wrap(err, "schedule retry sweep")
	}

	s.cron.Start()
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.log.Infow("⏱️ Sweeps scheduled", "cleanup_every", s.cleanupEvery.String(), "retry_every", s.retryEvery.String())

	go func() {
		s.RunCleanup(ctx)
		s.RunRetry(ctx)
	}()
	return nil
}

// Stop halts the cron loop and waits for running sweeps or ctx, whichever comes first
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}

	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
		s.log.Info("⏱️ Sweeps stopped")
	case <-ctx.Done():
		s.log.Warn("⚠️ Timed out waiting for sweeps to stop")
	}
}

// RunCleanup performs one cleanup sweep
func (s *Sweeper) RunCleanup(ctx context.Context) {
	s.guard(ctx, "cleanup", func(ctx context.Context) error {
		res, err := s.sched.CleanupStale(ctx)
		if res.Failed+res.Redispatched > 0 {
			s.log.Infow("🧹 Cleanup sweep", "failed", res.Failed, "requeued", res.Requeued, "redispatched", res.Redispatched)
		}
		return err
	})
}

// RunRetry performs one automatic retry sweep
func (s *Sweeper) RunRetry(ctx context.Context) {
	s.guard(ctx, "retry", func(ctx context.Context) error {
		n, err := s.sched.RetryFailedEligible(ctx)
		if n > 0 {
			s.log.Infow("🔁 Retry sweep", "requeued", n)
		}
		return err
	})
}

func (s *Sweeper) guard(ctx context.Context, name string, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.observe(name, "skipped")
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	if err := fn(ctx); err != nil {
		s.observe(name, "error")
		s.log.Errorw("❌ Sweep failed", "sweep", name, "error", err)
		return
	}
	s.observe(name, "ok")
}

func (s *Sweeper) observe(name, result string) {
	if s.metrics != nil {
		s.metrics.Sweeps.WithLabelValues(name, result).Inc()
	}
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
