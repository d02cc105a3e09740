package store

import (
	"context"
	"os"
	"testing"
	"time"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// integration test: needs a disposable database in TEST_DATABASE_URL
func TestPostgresApplicationLifecycle(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := ConnectPostgres(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	jobID := uuid.NewString()
	require.NoError(t, db.SaveJob(ctx, &models.Job{ID: jobID, URL: "https://jobs.example.com/1", Title: "Backend"}))
	job, err := db.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "Backend", job.Title)

	now := time.Now().UTC().Truncate(time.Microsecond)
	app := models.NewApplication(uuid.NewString(), "user-"+jobID, jobID, now)
	require.NoError(t, db.Create(ctx, app))

	err = db.Create(ctx, models.NewApplication(uuid.NewString(), app.UserID, jobID, now))
	assert.True(t, errors.Is(err, ErrDuplicate))

	claimed, err := db.Transition(ctx, app.ID, []models.ApplicationStatus{models.StatusPending}, func(a *models.Application) error {
		a.BeginAttempt(now)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, claimed.Status)

	_, err = db.Transition(ctx, app.ID, []models.ApplicationStatus{models.StatusPending}, func(a *models.Application) error { return nil })
	assert.True(t, errors.Is(err, ErrStatusConflict))

	_, err = db.Transition(ctx, app.ID, []models.ApplicationStatus{models.StatusInProgress}, func(a *models.Application) error {
		a.CompleteAttempt(&models.SubmissionData{ConfirmationNumber: "ABC123"}, nil, now)
		return nil
	})
	require.NoError(t, err)

	stored, err := db.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.SubmissionData)
	assert.Equal(t, "ABC123", stored.SubmissionData.ConfirmationNumber)
	assert.Len(t, stored.Attempts, 1)
}
