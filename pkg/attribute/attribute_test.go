package attribute

import (
	"context"
	"testing"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/blockio"
	"github.com/soltesz-lab/neuroh5/internal/blockio/localstore"
	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/soltesz-lab/neuroh5/internal/wireints"
	"github.com/soltesz-lab/neuroh5/pkg/elemtype"
	"github.com/soltesz-lab/neuroh5/pkg/population"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putPopRecord(buf []byte, start uint64, count uint32, pop uint16) {
	copy(buf[0:8], wireints.EncodeU64([]uint64{start}))
	copy(buf[8:12], wireints.EncodeU32([]uint32{count}))
	copy(buf[12:14], []byte{byte(pop), byte(pop >> 8)})
}

func newSessionWithRegistry(t *testing.T, size int) (*collective.Session, *population.Registry) {
	t.Helper()
	store, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	group := collective.NewGroup(size)
	container := blockio.NewContainer(store, group)
	ctx := context.Background()

	buf := make([]byte, 14)
	putPopRecord(buf, 1000, 100, 0)
	singleGroup := collective.NewGroup(1)
	singleContainer := blockio.NewContainer(store, singleGroup)
	require.NoError(t, singleContainer.WriteBlock(ctx, "/H5Types/Populations", 14, 1, 0, buf))
	labels := append([]byte("GC"), 0)
	require.NoError(t, singleContainer.WriteBlock(ctx, "/H5Types/Population labels", 1, uint64(len(labels)), 0, labels))

	session := collective.NewSession(group, container)
	bc1 := collective.NewBroadcaster(group)
	bc2 := collective.NewBroadcaster(group)
	bc3 := collective.NewBroadcaster(group)

	regs := make([]*population.Registry, size)
	err = group.Go(ctx, func(ctx context.Context, rank int) error {
		reg, err := population.LoadForRank(ctx, session, rank, bc1, bc2, bc3)
		if err != nil {
			return err
		}
		regs[rank] = reg
		return nil
	})
	require.NoError(t, err)
	return session, regs[0]
}

func TestAppendThenReadForRank_SingleRank(t *testing.T) {
	session, reg := newSessionWithRegistry(t, 1)
	ctx := context.Background()
	group := session.Group

	neg := NewNegotiators(group)
	in := AppendInput{
		Index:      []uint32{1000, 1001, 1002},
		Ptr:        []uint64{0, 2, 2, 5},
		Values:     elemtype.Values{Kind: elemtype.KindFloat32, F32: []float32{1, 2, 3, 4, 5}},
		IndexOwner: true,
		PtrOwner:   true,
	}
	require.NoError(t, AppendForRank(ctx, session, neg, 0, true, reg, "GC", "Synapses", "weight", in))

	triple, err := ReadForRank(ctx, session, 0, 1, reg, "GC", "Synapses", "weight", elemtype.KindFloat32, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1000, 1001, 1002}, triple.Index)
	assert.Equal(t, []uint64{0, 2, 2, 5}, triple.Ptr)
	assert.Equal(t, []float32{1, 2, 3, 4, 5}, triple.Values.F32)
}

func TestAppendThenSelectionRead(t *testing.T) {
	session, reg := newSessionWithRegistry(t, 1)
	ctx := context.Background()
	group := session.Group

	neg := NewNegotiators(group)
	in := AppendInput{
		Index:      []uint32{1000, 1001, 1002},
		Ptr:        []uint64{0, 1, 3, 3},
		Values:     elemtype.Values{Kind: elemtype.KindUint32, U32: []uint32{10, 20, 30}},
		IndexOwner: true,
		PtrOwner:   true,
	}
	require.NoError(t, AppendForRank(ctx, session, neg, 0, true, reg, "GC", "Synapses", "delay", in))

	values, selPtr, err := SelectionRead(ctx, session, reg, "GC", "Synapses", "delay", elemtype.KindUint32, []uint32{1002, 1000})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 0, 1}, selPtr)
	assert.Equal(t, []uint32{10}, values.U32)
}

func TestReadForRank_NotFound(t *testing.T) {
	session, reg := newSessionWithRegistry(t, 1)
	_, err := ReadForRank(context.Background(), session, 0, 1, reg, "GC", "Synapses", "missing", elemtype.KindFloat32, 0, 0)
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.Code(err))
}

func TestAppend_RejectsNonZeroPtrStart(t *testing.T) {
	session, reg := newSessionWithRegistry(t, 1)
	group := session.Group
	neg := NewNegotiators(group)
	in := AppendInput{
		Index:      []uint32{1000},
		Ptr:        []uint64{1, 2},
		Values:     elemtype.Values{Kind: elemtype.KindUint32, U32: []uint32{1}},
		IndexOwner: true,
		PtrOwner:   true,
	}
	err := AppendForRank(context.Background(), session, neg, 0, true, reg, "GC", "Synapses", "bad", in)
	assert.Error(t, err)
}

func TestAppendInputFromMap_RoundTrip(t *testing.T) {
	session, reg := newSessionWithRegistry(t, 1)
	ctx := context.Background()
	neg := NewNegotiators(session.Group)

	// spec.md §8 scenario 4, adapted to this population's id range.
	m := Map{
		1003: {Kind: elemtype.KindFloat32, F32: []float32{1.0, 2.0}},
		1005: {Kind: elemtype.KindFloat32, F32: nil},
		1007: {Kind: elemtype.KindFloat32, F32: []float32{9.0}},
	}
	in := AppendInputFromMap(m, elemtype.KindFloat32)
	require.NoError(t, AppendForRank(ctx, session, neg, 0, true, reg, "GC", "Somatic", "v", in))

	triple, err := ReadForRank(ctx, session, 0, 1, reg, "GC", "Somatic", "v", elemtype.KindFloat32, 0, 0)
	require.NoError(t, err)
	got := triple.ToMap()
	require.Len(t, got, 3)
	assert.Equal(t, []float32{1.0, 2.0}, got[1003].F32)
	assert.Empty(t, got[1005].F32)
	assert.Equal(t, []float32{9.0}, got[1007].F32)
}

func TestAppendForRank_MultiRankSizeProtocol(t *testing.T) {
	size := 3
	session, reg := newSessionWithRegistry(t, size)
	ctx := context.Background()
	group := session.Group
	neg := NewNegotiators(group)

	// Local contributions (2, 0, 3) mirror spec.md scenario 6.
	inputs := []AppendInput{
		{Index: []uint32{1000, 1001}, Ptr: []uint64{0, 1, 2}, Values: elemtype.Values{Kind: elemtype.KindUint32, U32: []uint32{1, 2}}, IndexOwner: true, PtrOwner: true},
		{Index: nil, Ptr: []uint64{0}, Values: elemtype.Values{Kind: elemtype.KindUint32}, IndexOwner: true, PtrOwner: true},
		{Index: []uint32{1002, 1003, 1004}, Ptr: []uint64{0, 1, 2, 3}, Values: elemtype.Values{Kind: elemtype.KindUint32, U32: []uint32{3, 4, 5}}, IndexOwner: true, PtrOwner: true},
	}

	err := group.Go(ctx, func(ctx context.Context, rank int) error {
		return AppendForRank(ctx, session, neg, rank, rank == size-1, reg, "GC", "Synapses", "weight", inputs[rank])
	})
	require.NoError(t, err)

	ptrSize, err := session.Container.Size(ctx, PathsFor("GC", "Synapses", "weight").Ptr, PtrElemSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), ptrSize)
}
