package store

import (
	"context"
	"sync"
	"time"

	"github.com/blog-ueditor/export-api/internal/domain/model"
)

// MemoryStore is the in-memory Store implementation. Each job carries its own
// mutex so mutations to different jobs never contend; the map lock is only
// held for entry lookup and insertion, never across a mutation callback.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

type jobEntry struct {
	mu      sync.Mutex
	job     *model.ExportJob
	deleted bool
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*jobEntry),
	}
}

var _ Store = (*MemoryStore)(nil)

// Create inserts a new job, cloning it so the caller's copy stays detached.
func (s *MemoryStore) Create(_ context.Context, job *model.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrAlreadyExists
	}
	s.jobs[job.ID] = &jobEntry{job: job.Clone()}
	return nil
}

// Get returns a deep-copied snapshot of the job.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.ExportJob, error) {
	entry := s.lookup(id)
	if entry == nil {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return nil, ErrNotFound
	}
	return entry.job.Clone(), nil
}

// Mutate applies fn under the job's own lock.
func (s *MemoryStore) Mutate(_ context.Context, id string, fn func(*model.ExportJob) error) error {
	entry := s.lookup(id)
	if entry == nil {
		return ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		// Entry was removed while we waited for its lock.
		return ErrNotFound
	}
	return fn(entry.job)
}

// Delete removes the job and marks the entry so in-flight mutations waiting
// on its lock observe the deletion instead of writing to a dropped record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	entry.mu.Lock()
	entry.deleted = true
	entry.mu.Unlock()
	return nil
}

// ListExpired returns IDs of jobs past their expiry timestamp.
func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	entries := make(map[string]*jobEntry, len(s.jobs))
	for id, entry := range s.jobs {
		entries[id] = entry
	}
	s.mu.RUnlock()

	var expired []string
	for id, entry := range entries {
		entry.mu.Lock()
		if !entry.deleted && entry.job.Expired(now) {
			expired = append(expired, id)
		}
		entry.mu.Unlock()
	}
	return expired, nil
}

// lookup fetches the entry under the map read lock.
func (s *MemoryStore) lookup(id string) *jobEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}
