// Package worker runs exactly one attempt of one application: claim, resolve
// collaborators, drive the portal strategy in a browser session, finalize.
package worker

import (
	"context"
	"path/filepath"
	"runtime/debug"
	"time"

	"go-openclaw-autoapply/internal/automation"
	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/evidence"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/notify"
	"go-openclaw-autoapply/internal/portal"
	"go-openclaw-autoapply/internal/store"

	"go.uber.org/zap"
)

var (
	// ErrNotClaimable means the application was not pending or queued at claim time
	ErrNotClaimable = errors.New("application is not claimable")
	// ErrStaleAttempt means the application moved on (stale sweep) before the attempt finished
	ErrStaleAttempt = errors.New("attempt result is stale")
)

// finalizeTimeout bounds the store write that records an attempt result
const finalizeTimeout = 30 * time.Second

// failureShotTimeout bounds the best-effort screenshot after a failure
const failureShotTimeout = 10 * time.Second

// ResumeResolver picks the resume file for an attempt
type ResumeResolver interface {
	Resolve(ctx context.Context, job *models.Job, profile *models.Profile) (path string, optimized bool, err error)
}

type Deps struct {
	Applications store.ApplicationStore
	Jobs         store.JobSource
	Profiles     store.ProfileSource
	Resumes      ResumeResolver
	Driver       browser.Driver
	Evidence     *evidence.Store
	Notifier     notify.Notifier
	Metrics      *Metrics
}

type Worker struct {
	Deps
	policy         automation.Policy
	attemptTimeout time.Duration
	log            *zap.SugaredLogger

	now      func() time.Time
	strategy func(url string) portal.Strategy
}

func New(deps Deps, policy automation.Policy, attemptTimeout time.Duration, log *zap.SugaredLogger) *Worker {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Worker{
		Deps:           deps,
		policy:         policy,
		attemptTimeout: attemptTimeout,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
		strategy:       portal.Select,
	}
}

// attempt is what one run produced, before it is written back
type attempt struct {
	job       *models.Job
	portal    string
	optimized bool
	result    *portal.Result
	err       error
}

// Execute claims appID, runs one attempt and records its outcome. Attempt failures
// are recorded on the application and do not surface as errors; the returned error
// is only for claim and persistence problems.
func (w *Worker) Execute(ctx context.Context, appID string) (*models.Application, error) {
	app, err := w.claim(ctx, appID)
	if err != nil {
		return nil, err
	}
	number := app.CurrentAttempt().AttemptNumber
	log := w.log.With("application_id", appID, "attempt", number)
	log.Infow("🚀 Attempt started", "job_id", app.JobID, "user_id", app.UserID)

	if w.Metrics != nil {
		w.Metrics.InFlight.Inc()
		defer w.Metrics.InFlight.Dec()
	}
	started := time.Now()

	w.emit(app, notify.TypeStarted, map[string]any{
		"application_id": app.ID,
		"job_id":         app.JobID,
		"attempt":        number,
	})

	rec := w.Evidence.Recorder(appID, number)
	out := w.run(ctx, app, rec, log)

	final, err := w.finish(ctx, app, number, rec, out, log)
	if w.Metrics != nil {
		w.Metrics.AttemptDuration.WithLabelValues(portalLabel(out.portal)).Observe(time.Since(started).Seconds())
	}
	return final, err
}

func (w *Worker) claim(ctx context.Context, appID string) (*models.Application, error) {
	claimable := []models.ApplicationStatus{models.StatusPending, models.StatusQueued}
	app, err := w.Applications.Transition(ctx, appID, claimable, func(a *models.Application) error {
		a.BeginAttempt(w.now())
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, errors.WithSecondaryError(ErrNotClaimable, err)
		}
		return nil, errors.Wrapf(err, "claim application %s", appID)
	}
	return app, nil
}

// run resolves collaborators and drives the strategy. It never panics.
func (w *Worker) run(ctx context.Context, app *models.Application, rec *evidence.Recorder, log *zap.SugaredLogger) (out attempt) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("❌ Attempt panicked", "panic", r, "stack", string(debug.Stack()))
			out.err = automation.Wrap(automation.CategoryUnknown, "attempt", errors.Newf("panic: %v", r))
		}
	}()

	if w.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.attemptTimeout)
		defer cancel()
	}

	w.progress(app, "resolving", 10)
	job, err := w.Jobs.GetJob(ctx, app.JobID)
	if err != nil {
		out.err = collaboratorError("load job", err, automation.CategoryUnsupportedFlow)
		return out
	}
	out.job = job

	profile, err := w.Profiles.GetProfile(ctx, app.UserID)
	if err != nil {
		out.err = collaboratorError("load profile", err, automation.CategoryFormIncomplete)
		return out
	}

	resumePath, optimized, err := w.Resumes.Resolve(ctx, job, profile)
	if err != nil {
		out.err = err
		return out
	}
	out.optimized = optimized
	rec.Logf("resume %s (tailored: %t)", filepath.Base(resumePath), optimized)

	strategy := w.strategy(job.URL)
	out.portal = strategy.Name()
	log = log.With("portal", out.portal)
	rec.Logf("strategy %s for %s", out.portal, job.URL)

	sess, err := w.Driver.Open(ctx, out.portal)
	if err != nil {
		out.err = err
		return out
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warnw("⚠️ Failed to close browser session", "error", err)
		}
	}()
	w.progress(app, "browser_ready", 20)

	req := portal.Request{
		Job:        job,
		Profile:    profile,
		ResumePath: resumePath,
		Recorder:   rec,
		Progress: func(step string, percent int) {
			rec.Logf("step %s (%d%%)", step, percent)
			w.progress(app, step, percent)
		},
	}
	out.result, out.err = w.apply(ctx, strategy, sess, req, log)
	if out.err != nil {
		w.failureScreenshot(ctx, sess, rec, log)
	}
	return out
}

// apply isolates strategy panics so the failure screenshot and session close still happen
func (w *Worker) apply(ctx context.Context, strategy portal.Strategy, sess browser.Session, req portal.Request, log *zap.SugaredLogger) (res *portal.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("❌ Strategy panicked", "panic", r, "stack", string(debug.Stack()))
			res, err = nil, automation.Wrap(automation.CategoryUnknown, strategy.Name(), errors.Newf("panic: %v", r))
		}
	}()
	res, err = strategy.Apply(ctx, sess, req)
	if err == nil && res == nil {
		err = automation.New(automation.CategoryUnknown, strategy.Name(), "strategy returned no result")
	}
	return res, err
}

// failureScreenshot is skipped when the session is gone and never retried
func (w *Worker) failureScreenshot(ctx context.Context, sess browser.Session, rec *evidence.Recorder, log *zap.SugaredLogger) {
	if !sess.Alive() {
		rec.Logf("session unresponsive, skipping failure screenshot")
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureShotTimeout)
	defer cancel()
	data, err := sess.Screenshot(shotCtx)
	if err != nil {
		log.Debugw("Failure screenshot not captured", "error", err)
		return
	}
	rec.Screenshot("failure", data)
}

func (w *Worker) finish(ctx context.Context, app *models.Application, number int, rec *evidence.Recorder, out attempt, log *zap.SugaredLogger) (*models.Application, error) {
	now := w.now()
	shots := rec.Screenshots()

	var (
		category automation.Category
		message  string
		retry    bool
		mutate   store.MutateFunc
	)
	if out.err == nil {
		data := &models.SubmissionData{
			ConfirmationNumber: out.result.ConfirmationNumber,
			FormFields:         out.result.FormFields,
			ResumeFilename:     out.result.ResumeFilename,
			Screenshots:        shots,
			LogRef:             rec.LogRef(),
			FinalURL:           out.result.FinalURL,
			SubmittedAt:        now,
		}
		mutate = func(a *models.Application) error {
			if !ownsAttempt(a, number) {
				return ErrStaleAttempt
			}
			a.CompleteAttempt(data, out.result.FormFields, now)
			a.CurrentAttempt().Portal = out.portal
			return nil
		}
	} else {
		category = automation.Classify(out.err)
		message = automation.Message(out.err)
		mutate = func(a *models.Application) error {
			if !ownsAttempt(a, number) {
				return ErrStaleAttempt
			}
			retry = w.policy.ShouldRetry(category, a.TotalAttempts)
			a.FailAttempt(message, string(category), retry, shots, now)
			a.CurrentAttempt().Portal = out.portal
			if retry {
				next := now.Add(w.policy.Backoff(a.TotalAttempts))
				a.NextRetryAt = &next
			}
			return nil
		}
	}

	// the result must be recorded even when the caller's context is already done
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	final, err := w.Applications.Transition(fctx, app.ID, []models.ApplicationStatus{models.StatusInProgress}, mutate)
	if err != nil {
		if errors.Is(err, ErrStaleAttempt) || errors.Is(err, store.ErrStatusConflict) {
			log.Warnw("⚠️ Discarding stale attempt result", "error", err)
			if w.Metrics != nil {
				w.Metrics.StaleFinishes.Inc()
			}
			return nil, errors.WithSecondaryError(ErrStaleAttempt, err)
		}
		log.Errorw("❌ Failed to record attempt result", "error", err)
		return nil, errors.Wrapf(err, "finalize application %s", app.ID)
	}

	data := map[string]any{
		"application_id": final.ID,
		"job_id":         final.JobID,
		"attempt":        number,
	}
	if out.job != nil {
		data["job_title"] = out.job.Title
		data["company"] = out.job.Company
	}

	if out.err == nil {
		log.Infow("✅ Application submitted", "confirmation_number", out.result.ConfirmationNumber, "screenshots", len(shots))
		rec.Logf("completed")
		if out.result.ConfirmationNumber != "" {
			data["confirmation_number"] = out.result.ConfirmationNumber
		}
		w.recordAttempt(out.portal, "completed", "")
		w.progress(final, "finished", 100)
		w.emit(final, notify.TypeCompleted, data)
		return final, nil
	}

	log.Warnw("❌ Attempt failed", "category", category, "retry_scheduled", retry, "error", message)
	rec.Logf("failed (%s): %s", category, message)
	data["error"] = message
	data["category"] = string(category)
	data["retry_scheduled"] = retry
	if final.NextRetryAt != nil {
		data["next_retry_at"] = final.NextRetryAt
	}
	w.recordAttempt(out.portal, "failed", string(category))
	w.progress(final, "finished", 100)
	w.emit(final, notify.TypeFailed, data)
	return final, nil
}

func ownsAttempt(a *models.Application, number int) bool {
	cur := a.CurrentAttempt()
	return cur != nil && cur.AttemptNumber == number && cur.Running()
}

func (w *Worker) recordAttempt(portalName, result, category string) {
	if w.Metrics == nil {
		return
	}
	w.Metrics.AttemptsTotal.WithLabelValues(portalLabel(portalName), result, category).Inc()
}

func (w *Worker) emit(app *models.Application, msgType string, data map[string]any) {
	w.Notifier.Notify(notify.NewMessage(msgType, app.UserID, data))
}

func (w *Worker) progress(app *models.Application, step string, percent int) {
	w.emit(app, notify.TypeProgress, map[string]any{
		"application_id": app.ID,
		"step":           step,
		"percent":        percent,
	})
}

// collaboratorError classifies lookup failures. A missing record gets missing, anything else is classified.
func collaboratorError(op string, err error, missing automation.Category) error {
	if errors.Is(err, store.ErrNotFound) {
		return automation.Wrap(missing, op, err)
	}
	return automation.Wrap(automation.Classify(err), op, err)
}

func portalLabel(name string) string {
	if name == "" {
		return "none"
	}
	return name
}
