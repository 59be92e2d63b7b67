package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "/Projections/dst/src/Source Index")
	require.NoError(t, err)
	assert.False(t, exists)

	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	require.NoError(t, store.WriteAt(ctx, "/Projections/dst/src/Source Index", 4, 0, data))

	exists, err = store.Exists(ctx, "/Projections/dst/src/Source Index")
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := store.Size(ctx, "/Projections/dst/src/Source Index", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), size)

	got, err := store.ReadAt(ctx, "/Projections/dst/src/Source Index", 4, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0, 0, 0, 3, 0, 0, 0}, got)
}

func TestStore_WriteAtExtends(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteAt(ctx, "ds", 4, 0, []byte{1, 0, 0, 0}))
	require.NoError(t, store.WriteAt(ctx, "ds", 4, 1, []byte{2, 0, 0, 0}))

	size, err := store.Size(ctx, "ds", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), size)
}

func TestStore_SizeOfMissingDataset(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	size, err := store.Size(context.Background(), "missing", 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)
}

func TestStore_ReadPastEndFails(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteAt(ctx, "ds", 4, 0, []byte{1, 0, 0, 0}))
	_, err = store.ReadAt(ctx, "ds", 4, 0, 5)
	assert.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteAt(ctx, "ds", 4, 0, []byte{1, 0, 0, 0}))
	require.NoError(t, store.Delete(ctx, "ds"))

	exists, err := store.Exists(ctx, "ds")
	require.NoError(t, err)
	assert.False(t, exists)

	// deleting again is a no-op
	assert.NoError(t, store.Delete(ctx, "ds"))
}

func TestStore_PathSanitization(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteAt(ctx, "/Populations/GC/Synapses/weight/Attribute Value", 4, 0, []byte{1, 0, 0, 0}))
	exists, err := store.Exists(ctx, "/Populations/GC/Synapses/weight/Attribute Value")
	require.NoError(t, err)
	assert.True(t, exists)
}
