// Package scatter implements the 4.H redistribution layer: moving
// per-cell records between the partitioning a parallel read produces
// (roughly equal file offsets per rank) and the partitioning compute
// wants (cell id -> owning rank, supplied by the caller as a
// node_rank_map). Every record crossing the wire is a length-prefixed
// (key, bytes) pair; the payload bytes themselves are whatever the
// caller's codec (attribute, projection, or tree) already produced.
package scatter

import (
	"encoding/binary"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/collective"

	"context"
)

// Record pairs a cell or destination identifier with its already-encoded
// payload.
type Record struct {
	Key   uint32
	Bytes []byte
}

const recordHeaderSize = 8 // 4-byte key + 4-byte length prefix

func encodeRecords(records []Record) []byte {
	size := 0
	for _, r := range records {
		size += recordHeaderSize + len(r.Bytes)
	}
	buf := make([]byte, size)
	off := 0
	for _, r := range records {
		binary.LittleEndian.PutUint32(buf[off:], r.Key)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(len(r.Bytes)))
		off += recordHeaderSize
		copy(buf[off:], r.Bytes)
		off += len(r.Bytes)
	}
	return buf
}

// decodeRecords reads every length-prefixed record in buf, appending
// them into dst (dst may already hold records from an earlier sender).
// A truncated buffer is fatal corruption per spec.md §4.G's
// "pos <= buf.size() strict post-condition".
func decodeRecords(buf []byte, dst map[uint32][]byte) error {
	pos := 0
	for pos < len(buf) {
		if pos+recordHeaderSize > len(buf) {
			return apperr.New(apperr.CodeTruncated, "scatter: truncated record header")
		}
		key := binary.LittleEndian.Uint32(buf[pos:])
		n := int(binary.LittleEndian.Uint32(buf[pos+4:]))
		pos += recordHeaderSize
		if pos+n > len(buf) {
			return apperr.New(apperr.CodeTruncated, "scatter: truncated record body")
		}
		dst[key] = buf[pos : pos+n]
		pos += n
		if pos > len(buf) {
			return apperr.New(apperr.CodeTruncated, "scatter: record overran buffer")
		}
	}
	return nil
}

// ScatterAfterRead implements 4.H's "scatter after read": every rank
// (I/O rank or not) contributes its local records and a destination
// assignment per key, and receives back every record any rank addressed
// to it. Non-owning or non-I/O ranks typically call this with an empty
// local slice. nodeRankMap entries absent for a key simply drop that
// record — the caller decides whether that is itself a fatal condition.
//
// ex must be a single Exchanger instance shared by every rank's call in
// this collective round (allocated once via collective.NewExchanger
// before fanning out across ranks), the same discipline attribute.
// Negotiators and projection.Negotiators already follow.
func ScatterAfterRead(ctx context.Context, ex *collective.Exchanger, size, rank int, local []Record, nodeRankMap map[uint32][]int) (map[uint32][]byte, error) {
	byDest := make([][]Record, size)
	for _, rec := range local {
		for _, dest := range nodeRankMap[rec.Key] {
			if dest < 0 || dest >= size {
				continue
			}
			byDest[dest] = append(byDest[dest], rec)
		}
	}

	sends := make([][]byte, size)
	for d := 0; d < size; d++ {
		sends[d] = encodeRecords(byDest[d])
	}

	recv, err := ex.AllToAllV(ctx, rank, sends)
	if err != nil {
		return nil, err
	}

	out := make(map[uint32][]byte)
	for _, buf := range recv {
		if err := decodeRecords(buf, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GatherBeforeWrite implements 4.H's symmetric "gather before write":
// every rank buckets its local records by the I/O rank that owns their
// key (ioDest, normally Session.IORanks/IODest composed over 4.A) and
// exchanges them so each destination rank accumulates every record
// assigned to it, from every sender, in one all-to-all-v. ex follows the
// same shared-instance discipline as ScatterAfterRead.
func GatherBeforeWrite(ctx context.Context, ex *collective.Exchanger, size, rank int, local []Record, ioDest func(key uint32) int) (map[uint32][]byte, error) {
	byDest := make([][]Record, size)
	for _, rec := range local {
		d := ioDest(rec.Key)
		if d < 0 || d >= size {
			continue
		}
		byDest[d] = append(byDest[d], rec)
	}

	sends := make([][]byte, size)
	for d := 0; d < size; d++ {
		sends[d] = encodeRecords(byDest[d])
	}

	recv, err := ex.AllToAllV(ctx, rank, sends)
	if err != nil {
		return nil, err
	}

	out := make(map[uint32][]byte)
	for _, buf := range recv {
		if err := decodeRecords(buf, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SplitHasWork implements the "has-work" communicator split of 4.H's
// selection-scatter read: every rank's hasWork flag is all-gathered
// first (via bg, a BoolGatherer shared across this round's ranks) so the
// split is agreed collectively, then Session.SplitByWork derives the
// sub-group. A rank with no work gets ok=false and must not participate
// in any further collective on sub.
func SplitHasWork(ctx context.Context, s *collective.Session, bg *collective.BoolGatherer, rank int, hasWork bool) (sub *collective.Group, subRank int, ok bool, err error) {
	all, err := bg.Gather(ctx, rank, hasWork)
	if err != nil {
		return nil, 0, false, err
	}
	sub, subRank, ok = s.SplitByWork(rank, hasWork, all)
	return sub, subRank, ok, nil
}
