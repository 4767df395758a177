package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyIndex_PutLookup(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIdempotencyIndex()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, "key-1", "exp_aaaa1111", time.Hour))

	jobID, ok, err := idx.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "exp_aaaa1111", jobID)
}

func TestMemoryIdempotencyIndex_Lookup_Miss(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIdempotencyIndex()
	_, ok, err := idx.Lookup(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryIdempotencyIndex_Lookup_Expired(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIdempotencyIndex()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, "key-1", "exp_aaaa1111", -time.Second))

	_, ok, err := idx.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryIdempotencyIndex_Forget(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIdempotencyIndex()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, "key-1", "exp_aaaa1111", time.Hour))
	require.NoError(t, idx.Forget(ctx, "key-1"))

	_, ok, err := idx.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Forgetting an absent key is not an error.
	assert.NoError(t, idx.Forget(ctx, "never-stored"))
}

func TestMemoryIdempotencyIndex_PutOverwrites(t *testing.T) {
	t.Parallel()

	idx := NewMemoryIdempotencyIndex()
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, "key-1", "exp_aaaa1111", time.Hour))
	require.NoError(t, idx.Put(ctx, "key-1", "exp_bbbb2222", time.Hour))

	jobID, ok, err := idx.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "exp_bbbb2222", jobID)
}
