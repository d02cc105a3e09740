// Package scheduler owns the application lifecycle outside a running attempt:
// enqueue, manual retry and cancel, and the recovery sweeps. Every status
// change goes through store.Transition, the same compare-and-set the worker
// claims with.
package scheduler

import (
	"context"
	"time"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/notify"
	"go-openclaw-autoapply/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrDuplicateApplication = errors.New("an active application already exists for this job")
	ErrNotRetryable         = errors.New("application is not retryable")
	ErrNotCancellable       = errors.New("application can no longer be cancelled")
	ErrJobNotFound          = errors.New("job not found")
	ErrInvalidRequest       = errors.New("user_id and job_id are required")
)

// StaleMessage is recorded on attempts reclaimed by CleanupStale
const StaleMessage = "stale: worker timeout"

// errSkip aborts a sweep transition whose preconditions no longer hold
var errSkip = errors.New("skip")

// Dispatcher hands an application id to a worker, locally or through a queue
type Dispatcher interface {
	Dispatch(ctx context.Context, appID string) error
}

type Scheduler struct {
	apps       store.ApplicationStore
	jobs       store.JobSource
	dispatcher Dispatcher
	notifier   notify.Notifier
	policy     automation.Policy
	cfg        config.SchedulerConfig
	metrics    *Metrics
	log        *zap.SugaredLogger

	now   func() time.Time
	newID func() string
}

func New(apps store.ApplicationStore, jobs store.JobSource, dispatcher Dispatcher, notifier notify.Notifier,
	policy automation.Policy, cfg config.SchedulerConfig, metrics *Metrics, log *zap.SugaredLogger) *Scheduler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Scheduler{
		apps:       apps,
		jobs:       jobs,
		dispatcher: dispatcher,
		notifier:   notifier,
		policy:     policy,
		cfg:        cfg,
		metrics:    metrics,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Get returns one application
func (s *Scheduler) Get(ctx context.Context, appID string) (*models.Application, error) {
	return s.apps.Get(ctx, appID)
}

// Enqueue creates a pending application for (user, job) and dispatches it.
// A failed dispatch leaves the record pending for the cleanup sweep.
func (s *Scheduler) Enqueue(ctx context.Context, userID, jobID string) (*models.Application, error) {
	if userID == "" || jobID == "" {
		return nil, ErrInvalidRequest
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errors.WithSecondaryError(ErrJobNotFound, err)
		}
		return nil, errors.Wrap(err, "load job")
	}

	app := models.NewApplication(s.newID(), userID, jobID, s.now())
	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errors.WithSecondaryError(ErrDuplicateApplication, err)
		}
		return nil, errors.Wrap(err, "create application")
	}
	s.count("enqueued")
	s.log.Infow("📥 Application queued", "application_id", app.ID, "user_id", userID, "job_id", jobID)

	s.emit(app, notify.TypeQueued, map[string]any{
		"application_id": app.ID,
		"job_id":         jobID,
		"job_title":      job.Title,
		"company":        job.Company,
		"status":         string(app.Status),
	})
	s.dispatch(ctx, app.ID)
	return app, nil
}

// Retry re-queues a failed application on user request. It is allowed after the
// automatic budget is spent, up to the policy's manual attempt limit.
func (s *Scheduler) Retry(ctx context.Context, appID string) (*models.Application, error) {
	now := s.now()
	app, err := s.apps.Transition(ctx, appID, []models.ApplicationStatus{models.StatusFailed}, func(a *models.Application) error {
		if limit := s.policy.ManualLimit(); a.TotalAttempts >= limit {
			return errors.WithDetailf(ErrNotRetryable, "application used all %d attempts", limit)
		}
		requeue(a, now)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrStatusConflict):
			return nil, errors.WithSecondaryError(ErrNotRetryable, err)
		case errors.Is(err, store.ErrDuplicate):
			return nil, errors.WithSecondaryError(ErrDuplicateApplication, err)
		}
		return nil, err
	}
	s.count("manual_retry")
	s.log.Infow("🔁 Application re-queued", "application_id", appID, "attempts", app.TotalAttempts)
	s.emit(app, notify.TypeQueued, map[string]any{
		"application_id": app.ID,
		"job_id":         app.JobID,
		"status":         string(app.Status),
		"retry":          true,
	})
	s.dispatch(ctx, app.ID)
	return app, nil
}

// Cancel stops an application a worker has not claimed yet
func (s *Scheduler) Cancel(ctx context.Context, appID string) (*models.Application, error) {
	now := s.now()
	app, err := s.apps.Transition(ctx, appID, []models.ApplicationStatus{models.StatusPending, models.StatusQueued}, func(a *models.Application) error {
		a.Status = models.StatusCancelled
		a.NextRetryAt = nil
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, errors.WithSecondaryError(ErrNotCancellable, err)
		}
		return nil, err
	}
	s.log.Infow("🛑 Application cancelled", "application_id", appID)
	s.emit(app, notify.TypeCancelled, map[string]any{"application_id": app.ID, "job_id": app.JobID})
	return app, nil
}

// SweepResult counts what one CleanupStale pass did
type SweepResult struct {
	Failed       int `json:"failed"`
	Requeued     int `json:"requeued"`
	Redispatched int `json:"redispatched"`
}

// CleanupStale fails attempts stuck in_progress past the staleness threshold,
// re-queuing them when the budget allows, and re-dispatches pending or queued
// applications nobody picked up within the dispatch grace period.
func (s *Scheduler) CleanupStale(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	running, err := s.apps.ListByStatus(ctx, models.StatusInProgress)
	if err != nil {
		return res, errors.Wrap(err, "list in-progress applications")
	}
	for _, candidate := range running {
		if !s.isStale(candidate, now) {
			continue
		}
		var retry bool
		app, err := s.apps.Transition(ctx, candidate.ID, []models.ApplicationStatus{models.StatusInProgress}, func(a *models.Application) error {
			if !s.isStale(a, now) {
				return errSkip
			}
			retry = s.policy.ShouldRetry(automation.CategoryTimeout, a.TotalAttempts)
			a.FailAttempt(StaleMessage, string(automation.CategoryTimeout), retry, nil, now)
			if retry {
				requeue(a, now)
			}
			return nil
		})
		if err != nil {
			if s.raced(err) {
				continue
			}
			s.log.Errorw("❌ Failed to reclaim stale application", "application_id", candidate.ID, "error", err)
			continue
		}

		res.Failed++
		s.count("stale")
		s.log.Warnw("⚠️ Reclaimed stale application", "application_id", app.ID, "attempt", app.TotalAttempts, "requeued", retry)
		s.emit(app, notify.TypeFailed, map[string]any{
			"application_id":  app.ID,
			"job_id":          app.JobID,
			"attempt":         app.TotalAttempts,
			"error":           StaleMessage,
			"category":        string(automation.CategoryTimeout),
			"retry_scheduled": retry,
		})
		if retry {
			res.Requeued++
			s.dispatch(ctx, app.ID)
		}
	}

	waiting, err := s.apps.ListByStatus(ctx, models.StatusPending, models.StatusQueued)
	if err != nil {
		return res, errors.Wrap(err, "list waiting applications")
	}
	for _, candidate := range waiting {
		if now.Sub(candidate.UpdatedAt) <= s.cfg.DispatchGrace {
			continue
		}
		// touching UpdatedAt through the CAS keeps the next sweep from re-dispatching it again
		_, err := s.apps.Transition(ctx, candidate.ID, []models.ApplicationStatus{models.StatusPending, models.StatusQueued}, func(a *models.Application) error {
			a.UpdatedAt = now
			return nil
		})
		if err != nil {
			if !s.raced(err) {
				s.log.Errorw("❌ Failed to touch waiting application", "application_id", candidate.ID, "error", err)
			}
			continue
		}
		res.Redispatched++
		s.count("redispatch")
		s.log.Infow("📤 Re-dispatching waiting application", "application_id", candidate.ID, "status", candidate.Status)
		s.dispatch(ctx, candidate.ID)
	}

	return res, nil
}

// RetryFailedEligible re-queues failed applications whose category is retryable,
// whose budget remains and whose backoff has elapsed. Returns how many were re-queued.
func (s *Scheduler) RetryFailedEligible(ctx context.Context) (int, error) {
	now := s.now()
	failed, err := s.apps.ListByStatus(ctx, models.StatusFailed)
	if err != nil {
		return 0, errors.Wrap(err, "list failed applications")
	}

	requeued := 0
	for _, candidate := range failed {
		if !s.retryDue(candidate, now) {
			continue
		}
		app, err := s.apps.Transition(ctx, candidate.ID, []models.ApplicationStatus{models.StatusFailed}, func(a *models.Application) error {
			if !s.retryDue(a, now) {
				return errSkip
			}
			requeue(a, now)
			return nil
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				s.giveUp(ctx, candidate.ID, now)
				continue
			}
			if !s.raced(err) {
				s.log.Errorw("❌ Failed to re-queue application", "application_id", candidate.ID, "error", err)
			}
			continue
		}

		requeued++
		s.count("auto_retry")
		s.log.Infow("🔁 Automatic retry", "application_id", app.ID, "attempts", app.TotalAttempts, "category", candidate.FailureCategory)
		s.emit(app, notify.TypeQueued, map[string]any{
			"application_id": app.ID,
			"job_id":         app.JobID,
			"status":         string(app.Status),
			"retry":          true,
		})
		s.dispatch(ctx, app.ID)
	}
	return requeued, nil
}

// RetryAt is when a failed application becomes due for the automatic retry
func (s *Scheduler) RetryAt(app *models.Application) time.Time {
	return app.LastFinishedAt().Add(s.policy.Backoff(app.TotalAttempts))
}

func (s *Scheduler) retryDue(app *models.Application, now time.Time) bool {
	if app.Status != models.StatusFailed || !app.Retryable {
		return false
	}
	if !s.policy.ShouldRetry(automation.Category(app.FailureCategory), app.TotalAttempts) {
		return false
	}
	return !now.Before(s.RetryAt(app))
}

func (s *Scheduler) isStale(app *models.Application, now time.Time) bool {
	if app.Status != models.StatusInProgress {
		return false
	}
	started := app.UpdatedAt
	if cur := app.CurrentAttempt(); cur != nil {
		if !cur.Running() {
			return false
		}
		started = cur.StartedAt
	}
	return now.Sub(started) > s.cfg.StaleAfter
}

// giveUp stops retrying an application a newer active one for the same job superseded
func (s *Scheduler) giveUp(ctx context.Context, appID string, now time.Time) {
	_, err := s.apps.Transition(ctx, appID, []models.ApplicationStatus{models.StatusFailed}, func(a *models.Application) error {
		a.Retryable = false
		a.NextRetryAt = nil
		a.UpdatedAt = now
		return nil
	})
	if err != nil && !s.raced(err) {
		s.log.Warnw("⚠️ Failed to stop retries", "application_id", appID, "error", err)
		return
	}
	s.log.Infow("Superseded by a newer application, retries stopped", "application_id", appID)
}

func requeue(a *models.Application, now time.Time) {
	a.Status = models.StatusQueued
	a.NextRetryAt = nil
	a.UpdatedAt = now
}

// raced reports errors that mean another actor already moved the application
func (s *Scheduler) raced(err error) bool {
	return errors.IsAny(err, errSkip, store.ErrStatusConflict, store.ErrNotFound)
}

func (s *Scheduler) dispatch(ctx context.Context, appID string) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, appID); err != nil {
		s.count("dispatch_failed")
		s.log.Warnw("⚠️ Dispatch failed, cleanup sweep will retry", "application_id", appID, "error", err)
	}
}

func (s *Scheduler) emit(app *models.Application, msgType string, data map[string]any) {
	s.notifier.Notify(notify.NewMessage(msgType, app.UserID, data))
}

func (s *Scheduler) count(event string) {
	if s.metrics != nil {
		s.metrics.Events.WithLabelValues(event).Inc()
	}
}
