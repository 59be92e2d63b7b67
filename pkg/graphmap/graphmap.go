// Package graphmap implements the edge/attribute map assembler (4.I):
// walking a decoded projection slice's four block-sparse arrays into
// validated (destination, source) edges, indexed by the edge's position
// so an attribute namespace's parallel value arrays can be sliced out
// alongside the adjacency itself.
package graphmap

import (
	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/pkg/population"
	"github.com/soltesz-lab/neuroh5/pkg/projection"
)

// Edge is one validated edge, global-identifier form, with Pos the
// position within this projection's edge-attribute arrays that Src/Dst
// were read from (EdgeBase + local index into src_idx).
type Edge struct {
	Dst uint32
	Src uint32
	Pos uint64
}

// EdgeMap is the assembled adjacency: destination cell id -> its source
// cell ids, in the order they were read.
type EdgeMap map[uint32][]uint32

// AssembleFromSlice implements 4.I: walks every block and destination in
// slice, producing one Edge per (dst, src) pair and validating each
// against the population registry. A validation failure — either
// endpoint outside its declared population, or the pair not declared
// legal — is fatal, matching spec.md §7's "validation failures are
// fatal, the loaded map is not returned".
func AssembleFromSlice(slice projection.Slice, reg *population.Registry, srcPop, dstPop uint16, dstStart, srcStart uint64) ([]Edge, error) {
	srcRange, err := reg.RangeOf(srcPop)
	if err != nil {
		return nil, apperr.Wrapf(apperr.CodeValidationFailed, err, "source population %d", srcPop)
	}
	dstRange, err := reg.RangeOf(dstPop)
	if err != nil {
		return nil, apperr.Wrapf(apperr.CodeValidationFailed, err, "destination population %d", dstPop)
	}
	var edges []Edge
	for b := 0; b < len(slice.DstBlkIdx); b++ {
		blockStart := slice.DstBlkPtr[b]
		blockEnd := slice.DstBlkPtr[b+1]
		for destPos := blockStart; destPos < blockEnd; destPos++ {
			k := destPos - blockStart
			dstGlobal := uint64(slice.DstBlkIdx[b]) + k + dstStart

			if dstGlobal < dstRange.Start || dstGlobal >= dstRange.End() {
				return nil, apperr.Newf(apperr.CodeValidationFailed, "destination %d is outside population %d", dstGlobal, dstPop)
			}

			lo, hi := slice.DstPtr[destPos], slice.DstPtr[destPos+1]
			for e := lo; e < hi; e++ {
				srcGlobal := uint64(slice.SrcIdx[e]) + srcStart

				if srcGlobal < srcRange.Start || srcGlobal >= srcRange.End() {
					return nil, apperr.Newf(apperr.CodeValidationFailed, "source %d is outside population %d", srcGlobal, srcPop)
				}
				if !reg.IsValidPair(srcPop, dstPop) {
					return nil, apperr.Newf(apperr.CodeValidationFailed, "population pair (%d, %d) is not declared legal", srcPop, dstPop)
				}

				edges = append(edges, Edge{Dst: uint32(dstGlobal), Src: uint32(srcGlobal), Pos: slice.EdgeBase + e})
			}
		}
	}
	return edges, nil
}

// BuildMap collapses a validated edge list into an EdgeMap, preserving
// each destination's source order.
func BuildMap(edges []Edge) EdgeMap {
	out := make(EdgeMap)
	for _, e := range edges {
		out[e.Dst] = append(out[e.Dst], e.Src)
	}
	return out
}
