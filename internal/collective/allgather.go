package collective

import (
	"context"

	"github.com/soltesz-lab/neuroh5/internal/telemetry"
)

// BoolGatherer all-gathers one bool per rank. scatter.SplitHasWork uses it
// to agree collectively on which ranks have work and passes the gathered
// flags to Session.SplitByWork for the "has-work" communicator split (4.H). A BoolGatherer is single-use — one
// per collective round — since it holds exactly one slot per rank.
type BoolGatherer struct {
	group *Group
	local []bool
}

// NewBoolGatherer allocates an all-gather scoped to one collective call.
func NewBoolGatherer(g *Group) *BoolGatherer {
	return &BoolGatherer{group: g, local: make([]bool, g.Size())}
}

// Gather contributes this rank's value and returns every rank's value, in
// rank order.
func (b *BoolGatherer) Gather(ctx context.Context, rank int, value bool) (all []bool, err error) {
	if rank < 0 || rank >= b.group.Size() {
		return nil, errRankRange(rank, b.group.Size())
	}

	ctx, end := telemetry.CollectiveSpan(ctx, "collective.allgather_bool", rank)
	defer func() { end(err) }()

	b.local[rank] = value

	if err = b.group.Barrier(ctx); err != nil {
		return nil, err
	}

	out := make([]bool, len(b.local))
	copy(out, b.local)
	return out, nil
}
