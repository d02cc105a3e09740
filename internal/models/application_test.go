package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationAttemptLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := NewApplication("app-1", "user-1", "job-1", now)
	assert.Equal(t, StatusPending, app.Status)
	assert.True(t, app.IsActive())
	assert.Nil(t, app.CurrentAttempt())

	att := app.BeginAttempt(now)
	require.NotNil(t, att)
	assert.Equal(t, 1, att.AttemptNumber)
	assert.True(t, att.Running())
	assert.Equal(t, StatusInProgress, app.Status)

	app.FailAttempt("timeout: fill email: deadline exceeded", "timeout", true, []string{"a/1/failure.png"}, now.Add(time.Minute))
	assert.Equal(t, StatusFailed, app.Status)
	assert.False(t, app.IsActive())
	assert.Equal(t, now.Add(time.Minute), app.LastFinishedAt())
	assert.Equal(t, []string{"a/1/failure.png"}, app.CurrentAttempt().Screenshots)

	app.BeginAttempt(now.Add(time.Hour))
	app.CompleteAttempt(&SubmissionData{ConfirmationNumber: "ABC123", Screenshots: []string{"x", "y", "z"}}, map[string]string{"email": "a@b.c"}, now.Add(2*time.Hour))

	assert.Equal(t, StatusCompleted, app.Status)
	assert.Equal(t, OutcomeApplied, app.Outcome)
	assert.Equal(t, 2, app.TotalAttempts)
	assert.Equal(t, len(app.Attempts), app.TotalAttempts)
	assert.Equal(t, 1, app.SuccessfulAttempts)
	require.NotNil(t, app.AppliedAt)
	assert.Equal(t, now.Add(2*time.Hour), *app.AppliedAt)
	assert.Empty(t, app.LastError)
	for i, a := range app.Attempts {
		assert.Equal(t, i+1, a.AttemptNumber)
	}
}

func TestProfileFieldValue(t *testing.T) {
	p := &Profile{FirstName: "Quang", LastName: "Do", Email: "q@example.com", City: "Can Tho", YearsOfExp: 2}

	assert.Equal(t, "Quang Do", p.FieldValue("full_name"))
	assert.Equal(t, "Can Tho", p.FieldValue("location"))
	assert.Equal(t, "2", p.FieldValue("experience_years"))
	assert.Equal(t, "", p.FieldValue("website"))
	assert.Equal(t, "", p.FieldValue("favourite_color"))
}
