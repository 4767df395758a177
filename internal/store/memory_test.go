package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blog-ueditor/export-api/internal/domain/model"
)

func newTestJob(id string, ttl time.Duration) *model.ExportJob {
	now := time.Now().UTC()
	return &model.ExportJob{
		ID:        id,
		Status:    model.StatusQueued,
		HTML:      "<p>x</p>",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	job := newTestJob("exp_aaaa1111", time.Hour)

	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, "exp_aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, got.Status)

	// The stored record is detached from the caller's copy.
	job.Status = model.StatusFailed
	got, err = s.Get(ctx, "exp_aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, got.Status)
}

func TestMemoryStore_Create_DuplicateID(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestJob("exp_aaaa1111", time.Hour)))
	err := s.Create(ctx, newTestJob("exp_aaaa1111", time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "exp_missing1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Mutate(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestJob("exp_aaaa1111", time.Hour)))

	err := s.Mutate(ctx, "exp_aaaa1111", func(job *model.ExportJob) error {
		job.Status = model.StatusProcessing
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "exp_aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
}

func TestMemoryStore_Mutate_SerializesWriters(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	job := newTestJob("exp_aaaa1111", time.Hour)
	job.Progress = model.Progress{Total: 100}
	require.NoError(t, s.Create(ctx, job))

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Mutate(ctx, "exp_aaaa1111", func(j *model.ExportJob) error {
				j.Progress.Done++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "exp_aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress.Done)
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTestJob("exp_aaaa1111", time.Hour)))

	require.NoError(t, s.Delete(ctx, "exp_aaaa1111"))

	_, err := s.Get(ctx, "exp_aaaa1111")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Mutate(ctx, "exp_aaaa1111", func(*model.ExportJob) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "exp_aaaa1111"), ErrNotFound)
}

func TestMemoryStore_ListExpired(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestJob("exp_live0001", time.Hour)))
	require.NoError(t, s.Create(ctx, newTestJob("exp_dead0001", -time.Minute)))
	require.NoError(t, s.Create(ctx, newTestJob("exp_dead0002", -time.Hour)))

	expired, err := s.ListExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exp_dead0001", "exp_dead0002"}, expired)
}
