// Package collective models a fixed-size SPMD process group in-process:
// one goroutine per rank, synchronizing only through the collective
// operations named in spec.md §5 (barrier, all-gather, broadcast,
// all-to-all-v). A future out-of-process MPI binding would implement the
// same Group shape; nothing above it would need to change.
package collective

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group is a fixed-size set of simulated ranks. It is the sole
// synchronization primitive: ranks never communicate except by calling a
// Group method collectively (every rank, same call, same order).
type Group struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	generation int
	arrived    int
}

// NewGroup creates a group of the given size. size must be positive.
func NewGroup(size int) *Group {
	if size <= 0 {
		panic("collective: group size must be positive")
	}
	g := &Group{size: size}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return g.size }

// Go runs fn once per rank on its own goroutine and waits for all of them
// to finish, returning the first error (if any) the way errgroup does —
// the same fan-out idiom used elsewhere in this module for bounded
// parallel work, generalized here to every rank in the group rather than
// a worker pool of arbitrary size.
func (g *Group) Go(ctx context.Context, fn func(ctx context.Context, rank int) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for r := 0; r < g.size; r++ {
		rank := r
		eg.Go(func() error {
			return fn(ctx, rank)
		})
	}
	return eg.Wait()
}

// Barrier blocks the calling rank until every rank in the group has
// called Barrier for the current generation. It is the one primitive
// every other collective operation in this package is built from.
func (g *Group) Barrier(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	gen := g.generation
	g.arrived++
	if g.arrived == g.size {
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
		return nil
	}
	for g.generation == gen {
		g.cond.Wait()
	}
	return nil
}

// errRankRange reports a rank argument outside [0, size).
func errRankRange(rank, size int) error {
	return fmt.Errorf("collective: rank %d out of range [0, %d)", rank, size)
}
