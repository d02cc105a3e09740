package store

import (
	"context"
	"fmt"
	"os"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// maxTxRetries bounds optimistic transaction retries on badger.ErrConflict
const maxTxRetries = 5

// activeIndex points (user, job) at its latest application. Reading and writing it in the
// same transaction serializes concurrent Create calls for one pair.
type activeIndex struct {
	ApplicationID string
}

// Badger is the embedded store used by the single-process server, the CLI and tests.
type Badger struct {
	store *badgerhold.Store
}

// OpenBadger opens (or creates) the store at path. An empty path keeps everything in memory.
func OpenBadger(path string) (*Badger, error) {
	options := badgerhold.DefaultOptions
	if path == "" {
		options.InMemory = true
		options.Dir = ""
		options.ValueDir = ""
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
	}
	options.Logger = nil

	s, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Badger{store: s}, nil
}

func (b *Badger) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

func (b *Badger) update(fn func(tx *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = b.store.Badger().Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return errors.Wrap(err, "badger transaction kept conflicting")
}

func indexKey(userID, jobID string) string {
	return userID + "|" + jobID
}

func (b *Badger) Create(ctx context.Context, app *models.Application) error {
	return b.update(func(tx *badger.Txn) error {
		var idx activeIndex
		err := b.store.TxGet(tx, indexKey(app.UserID, app.JobID), &idx)
		switch {
		case err == nil:
			var existing models.Application
			if err := b.store.TxGet(tx, idx.ApplicationID, &existing); err == nil && existing.IsActive() {
				return errors.WithDetailf(ErrDuplicate, "existing application %s is %s", existing.ID, existing.Status)
			}
		case !errors.Is(err, badgerhold.ErrNotFound):
			return errors.Wrap(err, "failed to read application index")
		}

		if err := b.store.TxUpsert(tx, indexKey(app.UserID, app.JobID), &activeIndex{ApplicationID: app.ID}); err != nil {
			return errors.Wrap(err, "failed to write application index")
		}
		if err := b.store.TxInsert(tx, app.ID, app); err != nil {
			return errors.Wrap(err, "failed to insert application")
		}
		return nil
	})
}

func (b *Badger) Get(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := b.store.Get(id, &app); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, errors.WithDetailf(ErrNotFound, "application %s", id)
		}
		return nil, errors.Wrap(err, "failed to get application")
	}
	return &app, nil
}

func (b *Badger) Transition(ctx context.Context, id string, from []models.ApplicationStatus, mutate MutateFunc) (*models.Application, error) {
	var out *models.Application
	err := b.update(func(tx *badger.Txn) error {
		var app models.Application
		if err := b.store.TxGet(tx, id, &app); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return errors.WithDetailf(ErrNotFound, "application %s", id)
			}
			return err
		}
		if !statusIn(app.Status, from) {
			return conflict(id, app.Status)
		}
		wasActive := app.IsActive()
		if err := mutate(&app); err != nil {
			return err
		}
		if !wasActive && app.IsActive() {
			if err := b.reactivate(tx, &app); err != nil {
				return err
			}
		}
		if err := b.store.TxUpdate(tx, id, &app); err != nil {
			return errors.Wrap(err, "failed to update application")
		}
		out = &app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) ListByStatus(ctx context.Context, statuses ...models.ApplicationStatus) ([]*models.Application, error) {
	values := make([]interface{}, len(statuses))
	for i, s := range statuses {
		values[i] = s
	}

	var apps []models.Application
	if err := b.store.Find(&apps, badgerhold.Where("Status").In(values...).SortBy("CreatedAt")); err != nil {
		return nil, errors.Wrap(err, "failed to list applications")
	}

	out := make([]*models.Application, len(apps))
	for i := range apps {
		out[i] = &apps[i]
	}
	return out, nil
}

func (b *Badger) SaveJob(ctx context.Context, job *models.Job) error {
	if err := b.store.Upsert(job.ID, job); err != nil {
		return errors.Wrap(err, "failed to save job")
	}
	return nil
}

func (b *Badger) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := b.store.Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, errors.WithDetailf(ErrNotFound, "job %s", id)
		}
		return nil, errors.Wrap(err, "failed to get job")
	}
	return &job, nil
}

func (b *Badger) SaveProfile(ctx context.Context, p *models.Profile) error {
	if err := b.store.Upsert(p.UserID, p); err != nil {
		return errors.Wrap(err, "failed to save profile")
	}
	return nil
}

func (b *Badger) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := b.store.Get(userID, &p); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, errors.WithDetailf(ErrNotFound, "profile %s", userID)
		}
		return nil, errors.Wrap(err, "failed to get profile")
	}
	return &p, nil
}

// reactivate claims the (user, job) index for an application leaving failed,
// refusing when a newer application for the pair is still active.
func (b *Badger) reactivate(tx *badger.Txn, app *models.Application) error {
	key := indexKey(app.UserID, app.JobID)
	var idx activeIndex
	err := b.store.TxGet(tx, key, &idx)
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return errors.Wrap(err, "failed to read application index")
	}
	if err == nil && idx.ApplicationID != app.ID {
		var other models.Application
		if err := b.store.TxGet(tx, idx.ApplicationID, &other); err == nil && other.IsActive() {
			return errors.WithDetailf(ErrDuplicate, "application %s is %s", other.ID, other.Status)
		}
	}
	return b.store.TxUpsert(tx, key, &activeIndex{ApplicationID: app.ID})
}
