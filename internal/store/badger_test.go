package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *Badger {
	t.Helper()
	s, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestBadgerCreateRejectsActiveDuplicate(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, models.NewApplication("a1", "u1", "j1", t0)))

	err := s.Create(ctx, models.NewApplication("a2", "u1", "j1", t0))
	assert.True(t, errors.Is(err, ErrDuplicate))

	// other job for the same user is fine
	require.NoError(t, s.Create(ctx, models.NewApplication("a3", "u1", "j2", t0)))

	// once the first one failed a new application may be created
	_, err = s.Transition(ctx, "a1", []models.ApplicationStatus{models.StatusPending}, func(app *models.Application) error {
		app.BeginAttempt(t0)
		return nil
	})
	require.NoError(t, err)
	_, err = s.Transition(ctx, "a1", []models.ApplicationStatus{models.StatusInProgress}, func(app *models.Application) error {
		app.FailAttempt("unsupported_flow: no easy apply", "unsupported_flow", false, nil, t0)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Create(ctx, models.NewApplication("a4", "u1", "j1", t0)))

	// re-queueing the old failed one now collides with a4
	_, err = s.Transition(ctx, "a1", []models.ApplicationStatus{models.StatusFailed}, func(app *models.Application) error {
		app.Status = models.StatusQueued
		return nil
	})
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestBadgerTransitionCompareAndSet(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, models.NewApplication("a1", "u1", "j1", t0)))

	app, err := s.Transition(ctx, "a1", []models.ApplicationStatus{models.StatusPending, models.StatusQueued}, func(app *models.Application) error {
		app.BeginAttempt(t0)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, app.Status)
	assert.Equal(t, 1, app.TotalAttempts)

	_, err = s.Transition(ctx, "a1", []models.ApplicationStatus{models.StatusPending, models.StatusQueued}, func(app *models.Application) error {
		app.BeginAttempt(t0)
		return nil
	})
	assert.True(t, errors.Is(err, ErrStatusConflict))

	_, err = s.Transition(ctx, "missing", []models.ApplicationStatus{models.StatusPending}, func(app *models.Application) error { return nil })
	assert.True(t, errors.Is(err, ErrNotFound))

	// mutate errors abort without writing
	boom := errors.New("boom")
	_, err = s.Transition(ctx, "a1", []models.ApplicationStatus{models.StatusInProgress}, func(app *models.Application) error {
		app.Status = models.StatusCompleted
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	stored, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	require.Len(t, stored.Attempts, 1)
	assert.Equal(t, t0, stored.Attempts[0].StartedAt)
}

func TestBadgerConcurrentClaimOnlyOneWins(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, models.NewApplication("a1", "u1", "j1", t0)))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, "a1", []models.ApplicationStatus{models.StatusPending}, func(app *models.Application) error {
				app.BeginAttempt(time.Now())
				return nil
			})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	app, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, app.Attempts, 1)
}

func TestBadgerListByStatus(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, models.NewApplication("a1", "u1", "j1", t0)))
	require.NoError(t, s.Create(ctx, models.NewApplication("a2", "u1", "j2", t0.Add(time.Second))))
	_, err := s.Transition(ctx, "a2", []models.ApplicationStatus{models.StatusPending}, func(app *models.Application) error {
		app.Status = models.StatusQueued
		return nil
	})
	require.NoError(t, err)

	pending, err := s.ListByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].ID)

	both, err := s.ListByStatus(ctx, models.StatusPending, models.StatusQueued)
	require.NoError(t, err)
	assert.Len(t, both, 2)

	none, err := s.ListByStatus(ctx, models.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBadgerJobsAndProfiles(t *testing.T) {
	s := newTestBadger(t)
	ctx := context.Background()

	_, err := s.GetJob(ctx, "j1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.SaveJob(ctx, &models.Job{ID: "j1", URL: "https://www.linkedin.com/jobs/view/1", Title: "Go Developer"}))
	job, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "Go Developer", job.Title)

	require.NoError(t, s.SaveProfile(ctx, &models.Profile{UserID: "u1", Email: "u1@example.com", Answers: map[string]string{"sponsorship": "No"}}))
	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", p.Email)
	assert.Equal(t, "No", p.Answers["sponsorship"])
}
