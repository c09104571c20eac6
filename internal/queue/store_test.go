package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	entry := Entry{Queue: Parse, OwnerKey: "board-a", RowID: "7", Payload: "https://example.com/job"}

	added, err := s.EnqueueIfAbsent(ctx, entry)
	require.NoError(t, err)
	require.True(t, added)

	// Second enqueue of the same key while the first is live is a no-op.
	added, err = s.EnqueueIfAbsent(ctx, entry)
	require.NoError(t, err)
	require.False(t, added)

	depth, err := s.Depth(ctx, Parse)
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	// A different row, and the same row on the other queue, both go in.
	added, err = s.EnqueueIfAbsent(ctx, Entry{Queue: Parse, OwnerKey: "board-a", RowID: "8"})
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.EnqueueIfAbsent(ctx, Entry{Queue: Notes, OwnerKey: "board-a", RowID: "7"})
	require.NoError(t, err)
	require.True(t, added)

	entries, err := s.ListQueued(ctx, Parse, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "7", entries[0].RowID, "oldest first")
	require.Equal(t, "8", entries[1].RowID)
	require.False(t, entries[0].EnqueuedAt.IsZero())

	// Batch limit.
	entries, err = s.ListQueued(ctx, Parse, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Failed entries leave the queued pool but stay until removed.
	full, err := s.ListQueued(ctx, Parse, 10)
	require.NoError(t, err)
	require.NoError(t, s.SetError(ctx, full[0].ID, "fetch failed"))
	depth, err = s.Depth(ctx, Parse)
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	// Once the errored entry is gone, the key can be enqueued again.
	require.NoError(t, s.Remove(ctx, []int64{full[0].ID}))
	added, err = s.EnqueueIfAbsent(ctx, entry)
	require.NoError(t, err)
	require.True(t, added)

	require.NoError(t, s.Remove(ctx, nil))
}

func TestMemoryStoreContract(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testStoreContract(t, s)
}

func TestSQLiteStoreContract(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "joblink.db"))
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "joblink.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.EnqueueIfAbsent(ctx, Entry{Queue: Parse, OwnerKey: "o", RowID: "1", Payload: "u"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	depth, err := s.Depth(ctx, Parse)
	require.NoError(t, err)
	require.Equal(t, 1, depth)
}
