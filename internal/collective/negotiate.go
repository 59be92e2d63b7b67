package collective

import (
	"context"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/telemetry"
)

// Negotiator implements the 4.C Collective Size Protocol: every rank
// supplies its local contribution, an all-gather produces the length
// vector, and each rank computes its own offset as the prefix sum and the
// global total as the full sum. A Negotiator is single-use — one
// Negotiator per negotiated dataset extension — since it holds exactly
// one slot of shared scratch per rank.
type Negotiator struct {
	group *Group
	local []uint64
}

// NewNegotiator allocates a negotiation scoped to one collective call.
// Every rank sharing the call must use the same *Negotiator instance.
func NewNegotiator(g *Group) *Negotiator {
	return &Negotiator{group: g, local: make([]uint64, g.Size())}
}

// Negotiate contributes localSize (plus one, if contributesTail is set —
// the "+1 tail" semantics of dst_blk_ptr/dst_ptr/attr_ptr's closing
// offset, which only the last contributing rank should set) and returns
// this rank's offset into the extended dataset and the new global total.
func (n *Negotiator) Negotiate(ctx context.Context, rank int, localSize uint64, contributesTail bool) (offset uint64, total uint64, err error) {
	if rank < 0 || rank >= n.group.Size() {
		return 0, 0, errRankRange(rank, n.group.Size())
	}

	ctx, end := telemetry.CollectiveSpan(ctx, "collective.negotiate", rank)
	defer func() { end(err) }()

	contribution := localSize
	if contributesTail {
		contribution++
	}
	n.local[rank] = contribution

	if err = n.group.Barrier(ctx); err != nil {
		return 0, 0, err
	}

	for i := 0; i < rank; i++ {
		offset += n.local[i]
	}
	for _, v := range n.local {
		total += v
	}
	return offset, total, nil
}

// CheckTotal cross-checks that the sum of per-rank local contributions
// equals the expected total, per spec.md §7's "sum_local_edges ==
// total_edges" post-assembly check. A mismatch is a fatal
// CollectiveMismatch.
func CheckTotal(expected uint64, contributions []uint64) error {
	var sum uint64
	for _, v := range contributions {
		sum += v
	}
	if sum != expected {
		return apperr.Newf(apperr.CodeCollectiveMismatch,
			"sum of local contributions %d does not match expected total %d", sum, expected)
	}
	return nil
}
