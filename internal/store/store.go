// Package store persists applications and reads the job and profile
// collaborators. Every status change goes through Transition, which is the
// compare-and-set that keeps one worker per application.
package store

import (
	"context"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("active application already exists for user and job")
	ErrStatusConflict = errors.New("application status changed concurrently")
)

// MutateFunc edits the application inside a transition. Returning an error aborts without writing.
type MutateFunc func(app *models.Application) error

type ApplicationStore interface {
	// Create inserts a new application, ErrDuplicate when an active one exists for (user, job)
	Create(ctx context.Context, app *models.Application) error
	Get(ctx context.Context, id string) (*models.Application, error)
	// Transition atomically checks the current status is one of from, applies mutate and saves.
	// Returns ErrStatusConflict when the status does not match.
	Transition(ctx context.Context, id string, from []models.ApplicationStatus, mutate MutateFunc) (*models.Application, error)
	ListByStatus(ctx context.Context, statuses ...models.ApplicationStatus) ([]*models.Application, error)
	Close() error
}

type JobSource interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Store is everything a binary needs from persistence
type Store interface {
	ApplicationStore
	JobSource
	ProfileSource
	SaveJob(ctx context.Context, job *models.Job) error
	SaveProfile(ctx context.Context, p *models.Profile) error
}

func statusIn(s models.ApplicationStatus, set []models.ApplicationStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

func conflict(id string, current models.ApplicationStatus) error {
	return errors.WithDetailf(ErrStatusConflict, "application %s is %s", id, current)
}
