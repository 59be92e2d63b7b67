package scatter

import (
	"context"
	"sync"
	"testing"

	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScatterAfterRead_RoutesByNodeRankMap(t *testing.T) {
	size := 3
	group := collective.NewGroup(size)
	ex := collective.NewExchanger(group)

	// Rank 0 is the only I/O rank and holds every record; 5 belongs to
	// rank 1, 7 belongs to both rank 1 and rank 2 (replicated).
	nodeRankMap := map[uint32][]int{5: {1}, 7: {1, 2}}
	local := map[int][]Record{
		0: {{Key: 5, Bytes: []byte("five")}, {Key: 7, Bytes: []byte("seven")}},
		1: nil,
		2: nil,
	}

	var mu sync.Mutex
	results := map[int]map[uint32][]byte{}

	err := group.Go(context.Background(), func(ctx context.Context, rank int) error {
		out, err := ScatterAfterRead(ctx, ex, size, rank, local[rank], nodeRankMap)
		if err != nil {
			return err
		}
		mu.Lock()
		results[rank] = out
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	assert.Empty(t, results[0])
	assert.Equal(t, []byte("five"), results[1][5])
	assert.Equal(t, []byte("seven"), results[1][7])
	assert.Equal(t, []byte("seven"), results[2][7])
	assert.NotContains(t, results[2], uint32(5))
}

func TestGatherBeforeWrite_BucketsByIODest(t *testing.T) {
	size := 2
	group := collective.NewGroup(size)
	ex := collective.NewExchanger(group)

	ioDest := func(key uint32) int {
		if key < 10 {
			return 0
		}
		return 1
	}
	local := map[int][]Record{
		0: {{Key: 3, Bytes: []byte("a")}},
		1: {{Key: 12, Bytes: []byte("b")}, {Key: 4, Bytes: []byte("c")}},
	}

	var mu sync.Mutex
	results := map[int]map[uint32][]byte{}
	err := group.Go(context.Background(), func(ctx context.Context, rank int) error {
		out, err := GatherBeforeWrite(ctx, ex, size, rank, local[rank], ioDest)
		if err != nil {
			return err
		}
		mu.Lock()
		results[rank] = out
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("a"), results[0][3])
	assert.Equal(t, []byte("c"), results[0][4])
	assert.Equal(t, []byte("b"), results[1][12])
}

func TestSplitHasWork_ExcludesEmptyRanks(t *testing.T) {
	size := 2
	group := collective.NewGroup(size)
	session := collective.NewSession(group, nil)
	bg := collective.NewBoolGatherer(group)

	hasWork := map[int]bool{0: false, 1: true}
	var mu sync.Mutex
	oks := map[int]bool{}

	err := group.Go(context.Background(), func(ctx context.Context, rank int) error {
		_, _, ok, err := SplitHasWork(ctx, session, bg, rank, hasWork[rank])
		if err != nil {
			return err
		}
		mu.Lock()
		oks[rank] = ok
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.False(t, oks[0])
	assert.True(t, oks[1])
}
