package collective

import (
	"context"

	"github.com/soltesz-lab/neuroh5/internal/telemetry"
)

// Exchanger implements all-to-all and all-to-all-v redistribution
// (spec.md §4.H): every rank supplies one payload per destination rank,
// and receives back the payload every other rank addressed to it. An
// Exchanger is single-use — one per collective exchange — since it holds
// exactly one send slot per rank.
type Exchanger struct {
	group *Group
	sends [][][]byte // sends[senderRank][destRank]
}

// NewExchanger allocates an exchange scoped to one collective call.
func NewExchanger(g *Group) *Exchanger {
	return &Exchanger{group: g, sends: make([][][]byte, g.Size())}
}

// AllToAllV exchanges variable-length payloads: sends[d] is this rank's
// payload for destination rank d. The returned slice's index s holds the
// payload this rank received from sender s.
//
// Receive order walks senders starting at the receiver's own rank and
// wrapping (r, r+1, ..., P-1, 0, ..., r-1) per spec.md §4.H's "strict
// contract, not an optimization" — congestion diffusion has no meaning
// in this in-process emulation, but the order is kept so the pattern
// matches the real collective's documented behavior exactly.
func (e *Exchanger) AllToAllV(ctx context.Context, rank int, sends [][]byte) (recv [][]byte, err error) {
	size := e.group.Size()
	if rank < 0 || rank >= size {
		return nil, errRankRange(rank, size)
	}
	if len(sends) != size {
		return nil, errRankRange(len(sends)-1, size)
	}

	ctx, end := telemetry.CollectiveSpan(ctx, "collective.alltoallv", rank)
	defer func() { end(err) }()

	e.sends[rank] = sends

	if err = e.group.Barrier(ctx); err != nil {
		return nil, err
	}

	recv = make([][]byte, size)
	for i := 0; i < size; i++ {
		sender := (rank + i) % size
		recv[sender] = e.sends[sender][rank]
	}
	return recv, nil
}
