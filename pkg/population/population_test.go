package population

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/blockio"
	"github.com/soltesz-lab/neuroh5/internal/blockio/localstore"
	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePopRecord(start uint64, count uint32, pop uint16) []byte {
	buf := make([]byte, populationRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], start)
	binary.LittleEndian.PutUint32(buf[8:12], count)
	binary.LittleEndian.PutUint16(buf[12:14], pop)
	return buf
}

func encodePairRecord(src, dst uint16) []byte {
	buf := make([]byte, pairRecordSize)
	binary.LittleEndian.PutUint16(buf[0:2], src)
	binary.LittleEndian.PutUint16(buf[2:4], dst)
	return buf
}

func seedRegistry(t *testing.T, container *blockio.Container) {
	t.Helper()
	ctx := context.Background()

	var pop []byte
	pop = append(pop, encodePopRecord(0, 100, 0)...)
	pop = append(pop, encodePopRecord(100, 50, 1)...)
	require.NoError(t, container.WriteBlock(ctx, populationsPath, populationRecordSize, 2, 0, pop))

	labels := append([]byte("GC"), 0)
	labels = append(labels, append([]byte("MC"), 0)...)
	require.NoError(t, container.WriteBlock(ctx, labelsPath, 1, uint64(len(labels)), 0, labels))

	pairs := encodePairRecord(0, 1)
	require.NoError(t, container.WriteBlock(ctx, pairsPath, pairRecordSize, 1, 0, pairs))
}

func newTestContainer(t *testing.T) *blockio.Container {
	t.Helper()
	store, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	group := collective.NewGroup(1)
	return blockio.NewContainer(store, group)
}

func TestLoadForRank_SingleRank(t *testing.T) {
	container := newTestContainer(t)
	seedRegistry(t, container)

	group := collective.NewGroup(1)
	session := collective.NewSession(group, container)
	popBC := collective.NewBroadcaster(group)
	labelBC := collective.NewBroadcaster(group)
	pairBC := collective.NewBroadcaster(group)

	reg, err := LoadForRank(context.Background(), session, 0, popBC, labelBC, pairBC)
	require.NoError(t, err)

	idx, err := reg.PopByLabel("GC")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), idx)

	idx, err = reg.PopByLabel("MC")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), idx)

	rg, err := reg.RangeOf(0)
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 0, Count: 100}, rg)

	label, err := reg.Label(1)
	require.NoError(t, err)
	assert.Equal(t, "MC", label)

	assert.True(t, reg.IsValidPair(0, 1))
	assert.False(t, reg.IsValidPair(1, 0))
}

func TestLoadForRank_MultiRankBroadcast(t *testing.T) {
	container := newTestContainer(t)
	seedRegistry(t, container)

	size := 4
	group := collective.NewGroup(size)
	session := collective.NewSession(group, container)
	popBC := collective.NewBroadcaster(group)
	labelBC := collective.NewBroadcaster(group)
	pairBC := collective.NewBroadcaster(group)

	results := make([]*Registry, size)
	err := group.Go(context.Background(), func(ctx context.Context, rank int) error {
		reg, err := LoadForRank(ctx, session, rank, popBC, labelBC, pairBC)
		if err != nil {
			return err
		}
		results[rank] = reg
		return nil
	})
	require.NoError(t, err)

	for rank := 0; rank < size; rank++ {
		require.NotNil(t, results[rank])
		pop, err := results[rank].Locate(120)
		require.NoError(t, err)
		assert.Equal(t, uint16(1), pop)
	}
}

func TestRegistry_Locate(t *testing.T) {
	reg, err := decode(
		append(encodePopRecord(0, 10, 0), encodePopRecord(10, 5, 1)...),
		append(append([]byte("A"), 0), append([]byte("B"), 0)...),
		nil,
	)
	require.NoError(t, err)

	pop, err := reg.Locate(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), pop)

	pop, err = reg.Locate(9)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), pop)

	pop, err = reg.Locate(10)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), pop)

	_, err = reg.Locate(15)
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.Code(err))
}

func TestLoadForRank_SchemaMissing(t *testing.T) {
	container := newTestContainer(t)
	group := collective.NewGroup(1)
	session := collective.NewSession(group, container)
	popBC := collective.NewBroadcaster(group)
	labelBC := collective.NewBroadcaster(group)
	pairBC := collective.NewBroadcaster(group)

	_, err := LoadForRank(context.Background(), session, 0, popBC, labelBC, pairBC)
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeSchemaMissing, apperr.Code(err))
}

func TestRegistry_PopByLabel_NotFound(t *testing.T) {
	reg, err := decode(encodePopRecord(0, 10, 0), append([]byte("A"), 0), nil)
	require.NoError(t, err)
	_, err = reg.PopByLabel("missing")
	assert.Error(t, err)
}

func TestDecode_RejectsMalformedArrays(t *testing.T) {
	_, err := decode([]byte{1, 2, 3}, nil, nil)
	assert.Error(t, err)

	_, err = decode(nil, nil, []byte{1})
	assert.Error(t, err)
}

func TestWriteRegistry_ThenLoadForRank_RoundTrip(t *testing.T) {
	container := newTestContainer(t)
	group := collective.NewGroup(1)
	session := collective.NewSession(group, container)
	ctx := context.Background()

	decls := []Declaration{
		{Label: "GC", Range: Range{Start: 0, Count: 4}},
		{Label: "MC", Range: Range{Start: 4, Count: 2}},
	}
	pairs := []Pair{{Src: 0, Dst: 1}}
	require.NoError(t, WriteRegistry(ctx, session, decls, pairs))

	reg, err := LoadForRank(ctx, session, 0,
		collective.NewBroadcaster(group), collective.NewBroadcaster(group), collective.NewBroadcaster(group))
	require.NoError(t, err)

	gc, err := reg.PopByLabel("GC")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), gc)
	rg, err := reg.RangeOf(gc)
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 0, Count: 4}, rg)

	mc, err := reg.PopByLabel("MC")
	require.NoError(t, err)
	assert.True(t, reg.IsValidPair(gc, mc))
	assert.False(t, reg.IsValidPair(mc, gc))
}
