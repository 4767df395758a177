// Package store provides the job store: the single source of truth for
// export job state, with per-job mutation serialization.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/blog-ueditor/export-api/internal/domain/model"
)

// ErrNotFound is returned when an export job does not exist in the store.
var ErrNotFound = errors.New("export job not found")

// ErrAlreadyExists is returned when creating a job whose ID is taken.
var ErrAlreadyExists = errors.New("export job already exists")

// Store is the port for export job state. All mutation of a given job must
// pass through Mutate, which serializes writers per job identifier.
// Mutations to different jobs proceed independently.
type Store interface {
	// Create inserts a new job. Fails with ErrAlreadyExists on ID collision.
	Create(ctx context.Context, job *model.ExportJob) error

	// Get returns a deep-copied snapshot safe to read without any lock.
	Get(ctx context.Context, id string) (*model.ExportJob, error)

	// Mutate applies fn to the live job while holding that job's lock.
	// At most one mutation per job is in flight at a time. An error from fn
	// aborts nothing already applied; fn should mutate, not fail, unless the
	// job state makes the operation illegal.
	Mutate(ctx context.Context, id string, fn func(*model.ExportJob) error) error

	// Delete removes the job. Deleting an absent job returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// ListExpired returns the IDs of all jobs past their expiry at now.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
}

// IdempotencyIndex maps client idempotency keys to job IDs for the lifetime
// of the original job. Entries expire with the job's TTL.
type IdempotencyIndex interface {
	// Put records key → jobID with the given TTL.
	Put(ctx context.Context, key, jobID string, ttl time.Duration) error

	// Lookup returns the job ID recorded for key, or ok=false if absent
	// or expired.
	Lookup(ctx context.Context, key string) (jobID string, ok bool, err error)

	// Forget drops the key. Forgetting an absent key is not an error.
	Forget(ctx context.Context, key string) error
}
