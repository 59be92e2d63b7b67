package projection

import (
	"context"
	"testing"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/blockio"
	"github.com/soltesz-lab/neuroh5/internal/blockio/localstore"
	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, size int) *collective.Session {
	t.Helper()
	store, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	group := collective.NewGroup(size)
	container := blockio.NewContainer(store, group)
	return collective.NewSession(group, container)
}

func TestBuildLocalArrays_ConsecutiveDestinationsOneBlock(t *testing.T) {
	// Edges (src, dst): (0,1) (0,2) (2,3), all destinations consecutive.
	edges := map[uint32][]uint32{
		1: {0},
		2: {0},
		3: {2},
	}
	local := BuildLocalArrays(0, 0, edges)

	assert.Equal(t, []uint32{1}, local.DstBlkIdx)
	assert.Equal(t, []uint64{0, 3}, local.DstBlkPtr)
	assert.Equal(t, []uint64{0, 1, 2, 3}, local.DstPtr)
	assert.Equal(t, []uint32{0, 0, 2}, local.SrcIdx)
}

func TestBuildLocalArrays_GapOpensSecondBlock(t *testing.T) {
	edges := map[uint32][]uint32{
		1: {0},
		5: {2},
	}
	local := BuildLocalArrays(0, 0, edges)

	assert.Equal(t, []uint32{1, 5}, local.DstBlkIdx)
	assert.Equal(t, []uint64{0, 1, 2}, local.DstBlkPtr)
	assert.Equal(t, []uint64{0, 1, 2}, local.DstPtr)
	assert.Equal(t, []uint32{0, 2}, local.SrcIdx)
}

func TestBuildLocalArrays_NoEdges(t *testing.T) {
	local := BuildLocalArrays(0, 0, map[uint32][]uint32{})
	assert.Empty(t, local.DstBlkIdx)
	assert.Equal(t, []uint64{0}, local.DstBlkPtr)
	assert.Equal(t, []uint64{0}, local.DstPtr)
	assert.Empty(t, local.SrcIdx)
}

func TestWriteThenReadForRank_SingleRank(t *testing.T) {
	session := newSession(t, 1)
	ctx := context.Background()
	paths := PathsFor("B", "A")

	edges := map[uint32][]uint32{
		1: {0},
		2: {0},
		3: {2},
	}
	local := BuildLocalArrays(0, 0, edges)
	neg := NewNegotiators(session.Group)
	require.NoError(t, WriteForRank(ctx, session, neg, 0, true, paths, local))
	require.NoError(t, WritePopulationIndices(ctx, session, paths, 7, 3))

	slice, err := ReadForRank(ctx, session, 0, 1, paths)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, slice.DstBlkIdx)
	assert.Equal(t, []uint64{0, 3}, slice.DstBlkPtr)
	assert.Equal(t, []uint64{0, 1, 2, 3}, slice.DstPtr)
	assert.Equal(t, []uint32{0, 0, 2}, slice.SrcIdx)
	assert.Equal(t, uint64(0), slice.BlockBase)
	assert.Equal(t, uint64(0), slice.EdgeBase)

	srcPop, dstPop, err := ReadPopulationIndices(ctx, session, paths)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), srcPop)
	assert.Equal(t, uint16(3), dstPop)
}

func TestWriteForRank_MultiRank(t *testing.T) {
	size := 2
	session := newSession(t, size)
	ctx := context.Background()
	paths := PathsFor("B", "A")
	neg := NewNegotiators(session.Group)

	// Rank 0 owns destinations 1,2 (one block); rank 1 owns destination 5
	// (a second, non-adjacent block).
	locals := []LocalArrays{
		BuildLocalArrays(0, 0, map[uint32][]uint32{1: {0}, 2: {1}}),
		BuildLocalArrays(0, 0, map[uint32][]uint32{5: {3}}),
	}

	err := session.Group.Go(ctx, func(ctx context.Context, rank int) error {
		return WriteForRank(ctx, session, neg, rank, rank == size-1, paths, locals[rank])
	})
	require.NoError(t, err)

	blkIdxSize, err := session.Container.Size(ctx, paths.BlkIdx, BlkIdxElemSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), blkIdxSize)

	slices := make([]Slice, size)
	err = session.Group.Go(ctx, func(ctx context.Context, rank int) error {
		sl, err := ReadForRank(ctx, session, rank, size, paths)
		slices[rank] = sl
		return err
	})
	require.NoError(t, err)
	slice0, slice1 := slices[0], slices[1]

	assert.Equal(t, []uint32{1, 5}, append(append([]uint32{}, slice0.DstBlkIdx...), slice1.DstBlkIdx...))
	assert.Equal(t, []uint32{0, 1, 3}, append(append([]uint32{}, slice0.SrcIdx...), slice1.SrcIdx...))
}

func TestReadForRank_NotFound(t *testing.T) {
	session := newSession(t, 1)
	_, err := ReadForRank(context.Background(), session, 0, 1, PathsFor("B", "A"))
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.Code(err))
}

func TestSelectionRead(t *testing.T) {
	session := newSession(t, 1)
	ctx := context.Background()
	paths := PathsFor("B", "A")

	edges := map[uint32][]uint32{
		1: {0},
		2: {0, 1},
		5: {2},
	}
	local := BuildLocalArrays(0, 0, edges)
	neg := NewNegotiators(session.Group)
	require.NoError(t, WriteForRank(ctx, session, neg, 0, true, paths, local))

	srcIdx, selPtr, err := SelectionRead(ctx, session, paths, 0, []uint32{5, 1})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, selPtr)
	assert.Equal(t, []uint32{2, 0}, srcIdx)
}

func TestSelectionRead_NotFound(t *testing.T) {
	session := newSession(t, 1)
	ctx := context.Background()
	paths := PathsFor("B", "A")

	local := BuildLocalArrays(0, 0, map[uint32][]uint32{1: {0}})
	neg := NewNegotiators(session.Group)
	require.NoError(t, WriteForRank(ctx, session, neg, 0, true, paths, local))

	_, _, err := SelectionRead(ctx, session, paths, 0, []uint32{9})
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.Code(err))
}
