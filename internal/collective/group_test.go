package collective

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_GoRunsOncePerRank(t *testing.T) {
	g := NewGroup(5)
	var count int64

	err := g.Go(context.Background(), func(ctx context.Context, rank int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
}

func TestGroup_GoPropagatesFirstError(t *testing.T) {
	g := NewGroup(4)
	boom := assertError{}

	err := g.Go(context.Background(), func(ctx context.Context, rank int) error {
		if rank == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestGroup_BarrierRendezvous(t *testing.T) {
	g := NewGroup(8)
	var before, after int64

	err := g.Go(context.Background(), func(ctx context.Context, rank int) error {
		atomic.AddInt64(&before, 1)
		if err := g.Barrier(ctx); err != nil {
			return err
		}
		// Every rank must have incremented `before` by the time any rank
		// passes the barrier.
		if atomic.LoadInt64(&before) != 8 {
			t.Errorf("rank %d passed barrier before all ranks arrived", rank)
		}
		atomic.AddInt64(&after, 1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 8, after)
}

func TestGroup_BarrierReusableAcrossGenerations(t *testing.T) {
	g := NewGroup(3)
	var phase1, phase2 int64

	err := g.Go(context.Background(), func(ctx context.Context, rank int) error {
		atomic.AddInt64(&phase1, 1)
		if err := g.Barrier(ctx); err != nil {
			return err
		}
		if atomic.LoadInt64(&phase1) != 3 {
			t.Errorf("phase1 barrier did not rendezvous all ranks")
		}
		atomic.AddInt64(&phase2, 1)
		return g.Barrier(ctx)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, phase2)
}

func TestGroup_BarrierRejectsAlreadyCancelledContext(t *testing.T) {
	g := NewGroup(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Barrier(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
