package store

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreProcessedExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	seen, err := m.IsProcessed(ctx, "7")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.MarkProcessed(ctx, "7", time.Minute))
	seen, _ = m.IsProcessed(ctx, "7")
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = m.IsProcessed(ctx, "7")
	assert.False(t, seen)
}

func TestMemoryStoreCommandState(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.SetCommandState(ctx, "4", "executing_on_system", time.Hour))
	require.NoError(t, m.SetCommandState(ctx, "4", "completed", time.Hour))
	state, err := m.CommandState(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, "completed", state)

	state, err = m.CommandState(ctx, "5")
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestMemoryStoreSweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	for i := 0; i < sweepEvery-1; i++ {
		require.NoError(t, m.MarkProcessed(ctx, strconv.Itoa(i), time.Second))
	}
	now = now.Add(time.Minute)
	require.NoError(t, m.MarkProcessed(ctx, "fresh", time.Hour))

	assert.Equal(t, 1, m.Len())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r := NewRedisStore(addr)
	defer r.Close()
	require.NoError(t, r.Ping(ctx))

	id := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	seen, err := r.IsProcessed(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, r.MarkProcessed(ctx, id, time.Minute))
	seen, err = r.IsProcessed(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, r.SetCommandState(ctx, id, "completed", time.Minute))
	state, err := r.CommandState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "completed", state)
}
