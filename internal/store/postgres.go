package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const activeIndexName = "applications_active_user_job"

const applicationColumns = `id, user_id, job_id, status, outcome, total_attempts, successful_attempts,
	attempts, submission_data, last_error, failure_category, retryable, next_retry_at,
	notes, tags, created_at, updated_at, applied_at`

// Postgres is the shared store used when the API and workers run as separate processes.
type Postgres struct {
	db *pgxpool.Pool
}

func ConnectPostgres(ctx context.Context, connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	// PgBouncer in transaction mode does not keep prepared statements around
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &Postgres{db: pool}, nil
}

// Migrate creates the tables and indexes if they are missing
func (r *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (r *Postgres) Close() error {
	if r.db != nil {
		r.db.Close()
	}
	return nil
}

// ---------------- APPLICATION OPERATIONS ----------------

func (r *Postgres) Create(ctx context.Context, app *models.Application) error {
	args, err := applicationArgs(app)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isActiveConflict(err) {
			return errors.WithDetailf(ErrDuplicate, "user %s job %s", app.UserID, app.JobID)
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func (r *Postgres) Get(ctx context.Context, id string) (*models.Application, error) {
	row := r.db.QueryRow(ctx, "SELECT "+applicationColumns+" FROM applications WHERE id = $1", id)
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithDetailf(ErrNotFound, "application %s", id)
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// Transition locks the row with SELECT ... FOR UPDATE, so the status check and write are one step.
func (r *Postgres) Transition(ctx context.Context, id string, from []models.ApplicationStatus, mutate MutateFunc) (*models.Application, error) {
	var out *models.Application
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "SELECT "+applicationColumns+" FROM applications WHERE id = $1 FOR UPDATE", id)
		app, err := scanApplication(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.WithDetailf(ErrNotFound, "application %s", id)
			}
			return fmt.Errorf("failed to lock application: %w", err)
		}
		if !statusIn(app.Status, from) {
			return conflict(id, app.Status)
		}
		if err := mutate(app); err != nil {
			return err
		}

		args, err := applicationArgs(app)
		if err != nil {
			return err
		}
		query := `
			UPDATE applications SET status = $4, outcome = $5, total_attempts = $6, successful_attempts = $7,
				attempts = $8::jsonb, submission_data = $9::jsonb, last_error = $10, failure_category = $11,
				retryable = $12, next_retry_at = $13, notes = $14, tags = $15, updated_at = $17, applied_at = $18
			WHERE id = $1 AND user_id = $2 AND job_id = $3 AND created_at = $16`
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			if isActiveConflict(err) {
				return errors.WithDetailf(ErrDuplicate, "user %s job %s", app.UserID, app.JobID)
			}
			return fmt.Errorf("failed to update application: %w", err)
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Postgres) ListByStatus(ctx context.Context, statuses ...models.ApplicationStatus) ([]*models.Application, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	rows, err := r.db.Query(ctx, "SELECT "+applicationColumns+" FROM applications WHERE status = ANY($1) ORDER BY created_at", values)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// ---------------- JOB OPERATIONS ----------------

func (r *Postgres) SaveJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, portal, external_id, title, company, location, url, description, required_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET portal = EXCLUDED.portal, title = EXCLUDED.title, company = EXCLUDED.company,
			location = EXCLUDED.location, url = EXCLUDED.url, description = EXCLUDED.description,
			required_fields = EXCLUDED.required_fields`
	fields := job.RequiredFields
	if fields == nil {
		fields = []string{}
	}
	_, err := r.db.Exec(ctx, query, job.ID, job.Portal, job.ExternalID, job.Title, job.Company, job.Location, job.URL, job.Description, fields)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (r *Postgres) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	query := `SELECT id, portal, external_id, title, company, location, url, description, required_fields, created_at FROM jobs WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).
		Scan(&job.ID, &job.Portal, &job.ExternalID, &job.Title, &job.Company, &job.Location, &job.URL, &job.Description, &job.RequiredFields, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithDetailf(ErrNotFound, "job %s", id)
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}
	return &job, nil
}

// ---------------- PROFILE OPERATIONS ----------------

func (r *Postgres) SaveProfile(ctx context.Context, p *models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	query := `
		INSERT INTO profiles (user_id, data) VALUES ($1, $2::jsonb)
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	if _, err := r.db.Exec(ctx, query, p.UserID, string(data)); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (r *Postgres) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var data []byte
	err := r.db.QueryRow(ctx, "SELECT data FROM profiles WHERE user_id = $1", userID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithDetailf(ErrNotFound, "profile %s", userID)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.UserID = userID
	return &p, nil
}

// ---------------- HELPERS ----------------

func isActiveConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeIndexName
}

// applicationArgs returns the column values in applicationColumns order
func applicationArgs(app *models.Application) ([]any, error) {
	attempts := app.Attempts
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	attemptsJSON, err := json.Marshal(attempts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attempts: %w", err)
	}

	var submission *string
	if app.SubmissionData != nil {
		b, err := json.Marshal(app.SubmissionData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode submission data: %w", err)
		}
		s := string(b)
		submission = &s
	}

	tags := app.Tags
	if tags == nil {
		tags = []string{}
	}

	return []any{
		app.ID, app.UserID, app.JobID, string(app.Status), string(app.Outcome),
		app.TotalAttempts, app.SuccessfulAttempts, string(attemptsJSON), submission,
		app.LastError, app.FailureCategory, app.Retryable, app.NextRetryAt,
		app.Notes, tags, app.CreatedAt, app.UpdatedAt, app.AppliedAt,
	}, nil
}

func scanApplication(row pgx.Row) (*models.Application, error) {
	var (
		app                  models.Application
		status, outcome      string
		attemptsJSON, submit []byte
	)
	err := row.Scan(&app.ID, &app.UserID, &app.JobID, &status, &outcome, &app.TotalAttempts, &app.SuccessfulAttempts,
		&attemptsJSON, &submit, &app.LastError, &app.FailureCategory, &app.Retryable, &app.NextRetryAt,
		&app.Notes, &app.Tags, &app.CreatedAt, &app.UpdatedAt, &app.AppliedAt)
	if err != nil {
		return nil, err
	}

	app.Status = models.ApplicationStatus(status)
	app.Outcome = models.Outcome(outcome)
	if err := json.Unmarshal(attemptsJSON, &app.Attempts); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}
	if len(submit) > 0 {
		app.SubmissionData = &models.SubmissionData{}
		if err := json.Unmarshal(submit, app.SubmissionData); err != nil {
			return nil, fmt.Errorf("failed to decode submission data: %w", err)
		}
	}
	return &app, nil
}
