package models

import (
	"time"
)

type ApplicationStatus string

const (
	StatusPending    ApplicationStatus = "pending"
	StatusQueued     ApplicationStatus = "queued"
	StatusInProgress ApplicationStatus = "in_progress"
	StatusCompleted  ApplicationStatus = "completed"
	StatusFailed     ApplicationStatus = "failed"
	StatusCancelled  ApplicationStatus = "cancelled"
)

// Outcome is set after a confirmed submission, by the workflow (applied) or by the user
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeViewed             Outcome = "viewed"
	OutcomeRejected           Outcome = "rejected"
	OutcomeInterviewScheduled Outcome = "interview_scheduled"
	OutcomeInterviewCompleted Outcome = "interview_completed"
	OutcomeOfferReceived      Outcome = "offer_received"
	OutcomeOfferAccepted      Outcome = "offer_accepted"
	OutcomeOfferDeclined      Outcome = "offer_declined"
)

// Attempt is one execution of the automation workflow for an application.
// Immutable once CompletedAt is set.
type Attempt struct {
	AttemptNumber int               `json:"attempt_number"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Success       bool              `json:"success"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	ErrorCategory string            `json:"error_category,omitempty"`
	Portal        string            `json:"portal,omitempty"`
	Screenshots   []string          `json:"screenshots,omitempty"`
	FormDataUsed  map[string]string `json:"form_data_used,omitempty"`
}

// Running reports whether the attempt has not finished yet
func (a *Attempt) Running() bool {
	return a.CompletedAt == nil
}

type SubmissionData struct {
	ConfirmationNumber string            `json:"confirmation_number,omitempty"`
	FormFields         map[string]string `json:"form_fields,omitempty"`
	ResumeFilename     string            `json:"resume_filename,omitempty"`
	Screenshots        []string          `json:"screenshots,omitempty"`
	LogRef             string            `json:"log_ref,omitempty"`
	FinalURL           string            `json:"final_url,omitempty"`
	SubmittedAt        time.Time         `json:"submitted_at"`
}

type Application struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	JobID              string            `json:"job_id"`
	Status             ApplicationStatus `json:"status"`
	Outcome            Outcome           `json:"outcome,omitempty"`
	TotalAttempts      int               `json:"total_attempts"`
	SuccessfulAttempts int               `json:"successful_attempts"`
	Attempts           []Attempt         `json:"attempts"`
	SubmissionData     *SubmissionData   `json:"submission_data,omitempty"`
	// retry bookkeeping for the scheduler sweeps
	LastError       string     `json:"last_error,omitempty"`
	FailureCategory string     `json:"failure_category,omitempty"`
	Retryable       bool       `json:"retryable"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`

	Notes     string     `json:"notes,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// NewApplication returns a pending application with no attempts
func NewApplication(id, userID, jobID string, now time.Time) *Application {
	return &Application{
		ID:        id,
		UserID:    userID,
		JobID:     jobID,
		Status:    StatusPending,
		Attempts:  []Attempt{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive is true while the application blocks a new enqueue for the same job
func (a *Application) IsActive() bool {
	return a.Status != StatusFailed && a.Status != StatusCancelled
}

// IsTerminal reports completed and cancelled; failed is terminal only when the scheduler gives up.
func (a *Application) IsTerminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

// CurrentAttempt returns the latest attempt or nil
func (a *Application) CurrentAttempt() *Attempt {
	if len(a.Attempts) == 0 {
		return nil
	}
	return &a.Attempts[len(a.Attempts)-1]
}

// BeginAttempt appends the next attempt and moves the application to in_progress.
// TotalAttempts tracks len(Attempts).
func (a *Application) BeginAttempt(now time.Time) *Attempt {
	a.Attempts = append(a.Attempts, Attempt{
		AttemptNumber: len(a.Attempts) + 1,
		StartedAt:     now,
	})
	a.TotalAttempts = len(a.Attempts)
	a.Status = StatusInProgress
	a.NextRetryAt = nil
	a.UpdatedAt = now
	return a.CurrentAttempt()
}

// CompleteAttempt records a confirmed submission on the running attempt.
func (a *Application) CompleteAttempt(data *SubmissionData, formData map[string]string, now time.Time) {
	att := a.CurrentAttempt()
	att.Success = true
	att.CompletedAt = &now
	att.FormDataUsed = formData
	if data != nil {
		att.Screenshots = data.Screenshots
	}

	a.SuccessfulAttempts++
	a.SubmissionData = data
	a.Status = StatusCompleted
	a.Outcome = OutcomeApplied
	a.LastError = ""
	a.FailureCategory = ""
	a.Retryable = false
	if a.AppliedAt == nil {
		a.AppliedAt = &now
	}
	a.UpdatedAt = now
}

// FailAttempt closes the running attempt as failed and records retry eligibility.
func (a *Application) FailAttempt(message, category string, retryable bool, screenshots []string, now time.Time) {
	att := a.CurrentAttempt()
	att.Success = false
	att.CompletedAt = &now
	att.ErrorMessage = message
	att.ErrorCategory = category
	if len(screenshots) > 0 {
		att.Screenshots = screenshots
	}

	a.Status = StatusFailed
	a.LastError = message
	a.FailureCategory = category
	a.Retryable = retryable
	a.UpdatedAt = now
}

// LastFinishedAt returns when the latest attempt completed, zero if none did
func (a *Application) LastFinishedAt() time.Time {
	att := a.CurrentAttempt()
	if att == nil || att.CompletedAt == nil {
		return time.Time{}
	}
	return *att.CompletedAt
}
