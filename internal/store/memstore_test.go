package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_SatisfiesStoreContract(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Upsert(ctx, Row{Name: "a", VersionJSON: []byte(`{}`)}))

	got, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", got.Name)

	rows, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, s.Delete(ctx, "a"))

	rows, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
