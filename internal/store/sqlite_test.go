package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewSQLiteStore(context.Background(), ":memory:", logger)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := Row{Name: "shared/a.txt", Kind: 0, Hash: [32]byte{1, 2, 3}, VersionJSON: []byte(`{"peer":1}`)}
	require.NoError(t, s.Upsert(ctx, row))

	got, found, err := s.Get(ctx, "shared/a.txt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, row, got)
}

func TestSQLiteStore_UpsertAndGet_TombstoneSurvivesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := Row{Name: "shared/sub", Kind: 1, Hash: [32]byte{}, Tombstone: true, VersionJSON: []byte(`{"peer":1}`)}
	require.NoError(t, s.Upsert(ctx, row))

	got, found, err := s.Get(ctx, "shared/sub")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, row, got)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Row{Name: "a", Kind: 0, VersionJSON: []byte(`{}`)}))
	require.NoError(t, s.Upsert(ctx, Row{Name: "a", Kind: 1, VersionJSON: []byte(`{"x":2}`)}))

	got, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, got.Kind)
	assert.Equal(t, []byte(`{"x":2}`), got.VersionJSON)
}

func TestSQLiteStore_ListAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Row{Name: "a", VersionJSON: []byte(`{}`)}))
	require.NoError(t, s.Upsert(ctx, Row{Name: "b", VersionJSON: []byte(`{}`)}))

	rows, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Row{Name: "a", VersionJSON: []byte(`{}`)}))
	require.NoError(t, s.Delete(ctx, "a"))

	_, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}
