package collective

import (
	"context"
	"sync"

	"github.com/soltesz-lab/neuroh5/internal/telemetry"
)

// Broadcaster implements a length-prefix-free broadcast of a byte payload
// from one root rank to every rank in the group, used by the population
// registry load (spec.md §4.B: "each is broadcast to the group using a
// length-prefixed serialized buffer, size first, bytes second" — here the
// length prefix is implicit since Go slices carry their own length; the
// root's payload already includes everything downstream needs).
type Broadcaster struct {
	group *Group

	mu      sync.Mutex
	payload []byte
}

// NewBroadcaster allocates a broadcast scoped to one collective call.
func NewBroadcaster(g *Group) *Broadcaster {
	return &Broadcaster{group: g}
}

// Broadcast sends payload (only meaningful on the root rank; ignored on
// every other rank) to all ranks in the group.
func (b *Broadcaster) Broadcast(ctx context.Context, rank, root int, payload []byte) (out []byte, err error) {
	if rank < 0 || rank >= b.group.Size() {
		return nil, errRankRange(rank, b.group.Size())
	}

	ctx, end := telemetry.CollectiveSpan(ctx, "collective.broadcast", rank)
	defer func() { end(err) }()

	if rank == root {
		b.mu.Lock()
		b.payload = payload
		b.mu.Unlock()
	}

	if err = b.group.Barrier(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	out = b.payload
	b.mu.Unlock()
	return out, nil
}
