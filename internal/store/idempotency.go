package store

import (
	"context"
	"sync"
	"time"
)

// MemoryIdempotencyIndex is the default in-process idempotency index.
// Entries expire lazily on lookup; the sweeper's TTL alignment with job
// expiry keeps the map from growing unbounded.
type MemoryIdempotencyIndex struct {
	mu      sync.Mutex
	entries map[string]idemEntry
}

type idemEntry struct {
	jobID     string
	expiresAt time.Time
}

// NewMemoryIdempotencyIndex creates an empty in-memory idempotency index.
func NewMemoryIdempotencyIndex() *MemoryIdempotencyIndex {
	return &MemoryIdempotencyIndex{
		entries: make(map[string]idemEntry),
	}
}

var _ IdempotencyIndex = (*MemoryIdempotencyIndex)(nil)

// Put records key → jobID with the given TTL.
func (i *MemoryIdempotencyIndex) Put(_ context.Context, key, jobID string, ttl time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[key] = idemEntry{
		jobID:     jobID,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Lookup returns the job ID recorded for key if the entry has not expired.
func (i *MemoryIdempotencyIndex) Lookup(_ context.Context, key string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, ok := i.entries[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(i.entries, key)
		return "", false, nil
	}
	return entry.jobID, true, nil
}

// Forget drops the key.
func (i *MemoryIdempotencyIndex) Forget(_ context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, key)
	return nil
}
