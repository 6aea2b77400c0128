package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(got))

	now = now.Add(time.Minute)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryAddIfAbsent(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, err := m.AddIfAbsent(ctx, "lock", []byte("a"), 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.AddIfAbsent(ctx, "lock", []byte("b"), 30*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	now = now.Add(31 * time.Second)
	ok, err = m.AddIfAbsent(ctx, "lock", []byte("c"), 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Forget(ctx, "lock"))
	ok, err = m.AddIfAbsent(ctx, "lock", []byte("d"), 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	type payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, PutJSON(ctx, m, "p", payload{Count: 3}, 0))
	got, ok, err := GetJSON[payload](ctx, m, "p")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, got.Count)

	_, ok, err = GetJSON[payload](ctx, m, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeysLayout(t *testing.T) {
	k := Keys{Prefix: "sharepoint_"}
	require.Equal(t, "sharepoint_basic_stats", k.BasicStats())
	require.Equal(t, "sharepoint_chunk_3", k.Chunk(ChunkKey(3)))
	require.Equal(t, "sharepoint_chunk_done_run1_chunk_3", k.ChunkDone("run1", ChunkKey(3)))
}

func TestMemoryForgetIfValue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "lock", []byte("owner-b"), time.Minute))

	ok, err := m.ForgetIfValue(ctx, "lock", []byte("owner-a"))
	require.NoError(t, err)
	require.False(t, ok)
	_, present, _ := m.Get(ctx, "lock")
	require.True(t, present)

	ok, err = m.ForgetIfValue(ctx, "lock", []byte("owner-b"))
	require.NoError(t, err)
	require.True(t, ok)
	_, present, _ = m.Get(ctx, "lock")
	require.False(t, present)
}
