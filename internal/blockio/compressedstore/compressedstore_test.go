package compressedstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/soltesz-lab/neuroh5/internal/blockio/localstore"
	"github.com/soltesz-lab/neuroh5/pkg/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, comp compression.Compressor) *Store {
	t.Helper()
	backing, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	return New(backing, comp)
}

func TestWriteThenReadAt_WholeDataset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, compression.Default())

	data := bytes.Repeat([]byte{0xAB}, 4*37)
	require.NoError(t, s.WriteAt(ctx, "/proj/edges", 4, 0, data))

	got, err := s.ReadAt(ctx, "/proj/edges", 4, 0, 37)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	size, err := s.Size(ctx, "/proj/edges", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(37), size)
}

func TestWriteThenReadAt_OverlappingRankChunks(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, compression.Fast())

	chunkA := []byte{1, 2, 3, 4, 5, 6, 7, 8} // elements 0..3, elemSize 2
	chunkB := []byte{7, 8, 9, 10}            // elements 3..4, overlapping element 3

	require.NoError(t, s.WriteAt(ctx, "/ptr", 2, 0, chunkA))
	require.NoError(t, s.WriteAt(ctx, "/ptr", 2, 3, chunkB))

	got, err := s.ReadAt(ctx, "/ptr", 2, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
}

func TestReadAt_PartialRangeAcrossTwoChunks(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, compression.Best())

	require.NoError(t, s.WriteAt(ctx, "/x", 1, 0, []byte{10, 20, 30, 40}))
	require.NoError(t, s.WriteAt(ctx, "/x", 1, 4, []byte{50, 60}))

	got, err := s.ReadAt(ctx, "/x", 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{30, 40, 50}, got)
}

func TestExists_ReflectsWrites(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, compression.NewNoOpCompressor())

	ok, err := s.Exists(ctx, "/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WriteAt(ctx, "/missing", 1, 0, []byte{1}))
	ok, err = s.Exists(ctx, "/missing")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDelete_ClearsIndexAndBacking(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, compression.NewNoOpCompressor())

	require.NoError(t, s.WriteAt(ctx, "/tmp", 1, 0, []byte{9, 9}))
	require.NoError(t, s.Delete(ctx, "/tmp"))

	ok, err := s.Exists(ctx, "/tmp")
	require.NoError(t, err)
	assert.False(t, ok)
}
