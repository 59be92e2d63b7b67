// Package neuroh5 is the public facade: the operations an application
// actually calls, each one wiring together the population registry, the
// projection and attribute engines, the tree codec, and the scatter/
// gather redistribution layer behind a single collective call per rank.
package neuroh5

import (
	"context"

	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/soltesz-lab/neuroh5/internal/scatter"
	"github.com/soltesz-lab/neuroh5/pkg/attribute"
	"github.com/soltesz-lab/neuroh5/pkg/elemtype"
	"github.com/soltesz-lab/neuroh5/pkg/graphmap"
	"github.com/soltesz-lab/neuroh5/pkg/packed"
	"github.com/soltesz-lab/neuroh5/pkg/parallel"
	"github.com/soltesz-lab/neuroh5/pkg/population"
	"github.com/soltesz-lab/neuroh5/pkg/projection"
	"github.com/soltesz-lab/neuroh5/pkg/tree"
)

// decodeRecord pairs a received record's key with the bytes to decode,
// the unit parallel.WorkerPool fans the post-exchange decode step of a
// scatter-read out over: once AllToAllV has returned, decoding each
// cell's payload is embarrassingly parallel CPU work independent of any
// further collective call.
type decodeRecord struct {
	key uint32
	buf []byte
}

// ProjectionName identifies one directed projection by its destination
// and source population labels, matching projection.PathsFor's argument
// order.
type ProjectionName struct {
	DstPop string
	SrcPop string
}

func (n ProjectionName) paths() projection.Paths { return projection.PathsFor(n.DstPop, n.SrcPop) }

// GraphResult is one projection's assembled adjacency plus the population
// indices it was validated against.
type GraphResult struct {
	Edges  graphmap.EdgeMap
	SrcPop uint16
	DstPop uint16
}

// ReadGraph implements 4.E.1+4.I composed: every rank reads its own
// window of each named projection and assembles validated edges from it,
// independent of every other rank (no redistribution).
func ReadGraph(ctx context.Context, s *collective.Session, rank, size int, reg *population.Registry, names []ProjectionName) (map[ProjectionName]GraphResult, error) {
	out := make(map[ProjectionName]GraphResult, len(names))
	for _, name := range names {
		paths := name.paths()
		srcPop, dstPop, err := projection.ReadPopulationIndices(ctx, s, paths)
		if err != nil {
			return nil, err
		}
		dstRange, err := reg.RangeOf(dstPop)
		if err != nil {
			return nil, err
		}
		srcRange, err := reg.RangeOf(srcPop)
		if err != nil {
			return nil, err
		}

		slice, err := projection.ReadForRank(ctx, s, rank, size, paths)
		if err != nil {
			return nil, err
		}
		edges, err := graphmap.AssembleFromSlice(slice, reg, srcPop, dstPop, dstRange.Start, srcRange.Start)
		if err != nil {
			return nil, err
		}
		out[name] = GraphResult{Edges: graphmap.BuildMap(edges), SrcPop: srcPop, DstPop: dstPop}
	}
	return out, nil
}

// WriteGraph implements 4.E.2: every rank writes its local contribution
// to each named projection, plus the scalar population-index datasets
// (every rank writes the same value so the collective still rendezvous,
// per projection.WritePopulationIndices's documented discipline).
func WriteGraph(ctx context.Context, s *collective.Session, neg map[ProjectionName]projection.Negotiators, rank int, isLastRank bool, srcPop, dstPop map[ProjectionName]uint16, local map[ProjectionName]projection.LocalArrays) error {
	for name, arrays := range local {
		paths := name.paths()
		if err := projection.WritePopulationIndices(ctx, s, paths, srcPop[name], dstPop[name]); err != nil {
			return err
		}
		if err := projection.WriteForRank(ctx, s, neg[name], rank, isLastRank, paths, arrays); err != nil {
			return err
		}
	}
	return nil
}

// ScatterReadGraph implements 4.H's scatter-after-read for one projection:
// every rank reads and assembles its own window, then redistributes edges
// by destination cell id according to nodeRankMap so each rank ends up
// with the full adjacency of the destinations it owns.
//
// ex must be a single Exchanger shared across this round's ranks
// (allocated once via collective.NewExchanger before fanning out).
func ScatterReadGraph(ctx context.Context, s *collective.Session, ex *collective.Exchanger, rank, size int, reg *population.Registry, name ProjectionName, nodeRankMap map[uint32][]int) (graphmap.EdgeMap, error) {
	paths := name.paths()
	srcPop, dstPop, err := projection.ReadPopulationIndices(ctx, s, paths)
	if err != nil {
		return nil, err
	}
	dstRange, err := reg.RangeOf(dstPop)
	if err != nil {
		return nil, err
	}
	srcRange, err := reg.RangeOf(srcPop)
	if err != nil {
		return nil, err
	}

	slice, err := projection.ReadForRank(ctx, s, rank, size, paths)
	if err != nil {
		return nil, err
	}
	edges, err := graphmap.AssembleFromSlice(slice, reg, srcPop, dstPop, dstRange.Start, srcRange.Start)
	if err != nil {
		return nil, err
	}

	byDst := graphmap.BuildMap(edges)
	local := make([]scatter.Record, 0, len(byDst))
	for dst, srcs := range byDst {
		local = append(local, scatter.Record{
			Key:   dst,
			Bytes: packed.EncodeValues(elemtype.Values{Kind: elemtype.KindUint32, U32: srcs}),
		})
	}

	recv, err := scatter.ScatterAfterRead(ctx, ex, size, rank, local, nodeRankMap)
	if err != nil {
		return nil, err
	}

	records := make([]decodeRecord, 0, len(recv))
	for dst, buf := range recv {
		records = append(records, decodeRecord{key: dst, buf: buf})
	}
	pool := parallel.NewWorkerPool[decodeRecord, graphmap.EdgeMap](parallel.DefaultPoolConfig())
	results := pool.ExecuteFunc(ctx, records, func(ctx context.Context, r decodeRecord) (graphmap.EdgeMap, error) {
		v, _, err := packed.DecodeValues(r.buf, elemtype.KindUint32)
		if err != nil {
			return nil, err
		}
		return graphmap.EdgeMap{r.key: v.U32}, nil
	})

	out := make(graphmap.EdgeMap, len(records))
	for _, res := range results {
		if res.Error != nil {
			return nil, res.Error
		}
		for k, v := range res.Result {
			out[k] = v
		}
	}
	return out, nil
}

// ReadCellAttributes implements 4.D.1+ToMap composed: one rank's window
// of a named attribute, reassembled into a per-cell map.
func ReadCellAttributes(ctx context.Context, s *collective.Session, rank, size int, reg *population.Registry, pop, namespace, attr string, kind elemtype.Kind) (attribute.Map, error) {
	triple, err := attribute.ReadForRank(ctx, s, rank, size, reg, pop, namespace, attr, kind, 0, 0)
	if err != nil {
		return nil, err
	}
	return triple.ToMap(), nil
}

// AppendCellAttributeMap implements 4.D.4's grouped append: every compute
// rank's per-cell map is gathered before write onto one of ioSize I/O
// ranks (its rank partitioned into I/O groups via 4.A, the same
// rankpart.Ranges split Session.IORanks/IODest use), and only the I/O
// ranks negotiate placement and write — a compute rank that is not
// itself an I/O rank contributes its share of the all-to-all-v and then
// returns nil without touching the attribute's datasets.
//
// ex must be a single Exchanger shared across this round's full-rank
// group (allocated once via collective.NewExchanger before fanning out),
// and neg must be a single Negotiators built over s.IOGroup(ioSize) by
// the same discipline — both shared instances, not one per goroutine.
func AppendCellAttributeMap(ctx context.Context, s *collective.Session, ex *collective.Exchanger, neg attribute.Negotiators, rank, size, ioSize int, reg *population.Registry, pop, namespace, attr string, kind elemtype.Kind, m attribute.Map) error {
	ioRanks := s.IORanks(ioSize)
	dest := ioRanks[s.IODest(rank, ioSize)]

	records := make([]scatter.Record, 0, len(m))
	for gid, v := range m {
		records = append(records, scatter.Record{Key: gid, Bytes: packed.EncodeValues(v)})
	}

	recv, err := scatter.GatherBeforeWrite(ctx, ex, size, rank, records, func(uint32) int { return dest })
	if err != nil {
		return err
	}

	ioIndex := -1
	for i, r := range ioRanks {
		if r == rank {
			ioIndex = i
			break
		}
	}
	if ioIndex < 0 {
		return nil
	}

	gathered := make(attribute.Map, len(recv))
	for gid, buf := range recv {
		v, _, err := packed.DecodeValues(buf, kind)
		if err != nil {
			return err
		}
		gathered[gid] = v
	}

	in := attribute.AppendInputFromMap(gathered, kind)
	isLastIO := ioIndex == len(ioRanks)-1
	return attribute.AppendForRank(ctx, s, neg, ioIndex, isLastIO, reg, pop, namespace, attr, in)
}

// treeFieldKinds lists the ten tree fields in the fixed order
// encodeTree/decodeTree pack them, independent of pkg/tree's own
// (unexported) pack order — this is this package's own wire format for
// redistributing one cell's morphology across the scatter exchange.
var treeFieldKinds = []elemtype.Kind{
	elemtype.KindFloat32, elemtype.KindFloat32, elemtype.KindFloat32, elemtype.KindFloat32,
	elemtype.KindInt16, elemtype.KindInt32, elemtype.KindInt8,
	elemtype.KindUint32, elemtype.KindUint32, elemtype.KindUint32,
}

func encodeTree(t tree.Tree) []byte {
	var out []byte
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.X})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.Y})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.Z})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.Radius})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindInt16, I16: t.Layer})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindInt32, I32: t.Parent})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindInt8, I8: t.SWCType})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindUint32, U32: t.SectionSrc})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindUint32, U32: t.SectionDst})...)
	out = append(out, packed.EncodeValues(elemtype.Values{Kind: elemtype.KindUint32, U32: t.Sections})...)
	return out
}

func decodeTree(buf []byte) (tree.Tree, error) {
	vals, err := packed.DecodeRecords(buf, treeFieldKinds)
	if err != nil {
		return tree.Tree{}, err
	}
	return tree.Tree{
		X: vals[0].F32, Y: vals[1].F32, Z: vals[2].F32, Radius: vals[3].F32,
		Layer: vals[4].I16, Parent: vals[5].I32, SWCType: vals[6].I8,
		SectionSrc: vals[7].U32, SectionDst: vals[8].U32, Sections: vals[9].U32,
	}, nil
}

// ScatterReadTrees implements 4.H's scatter-after-read for the tree
// codec: every rank reads its own window of the ten attribute triples,
// re-encodes each cell's tree as one self-contained record, and
// redistributes by nodeRankMap so each rank ends up with the full
// morphology of the cells it owns.
func ScatterReadTrees(ctx context.Context, s *collective.Session, ex *collective.Exchanger, rank, size int, reg *population.Registry, pop, namespace string, nodeRankMap tree.NodeRankMap) (tree.Map, error) {
	paths := tree.PathsFor(pop, namespace)
	local, err := tree.ReadForRank(ctx, s, rank, size, reg, pop, paths)
	if err != nil {
		return nil, err
	}

	records := make([]scatter.Record, 0, len(local))
	for gid, t := range local {
		records = append(records, scatter.Record{Key: gid, Bytes: encodeTree(t)})
	}

	recv, err := scatter.ScatterAfterRead(ctx, ex, size, rank, records, nodeRankMap)
	if err != nil {
		return nil, err
	}

	decodeIn := make([]decodeRecord, 0, len(recv))
	for gid, buf := range recv {
		decodeIn = append(decodeIn, decodeRecord{key: gid, buf: buf})
	}
	pool := parallel.NewWorkerPool[decodeRecord, tree.Tree](parallel.DefaultPoolConfig())
	results := pool.ExecuteFunc(ctx, decodeIn, func(ctx context.Context, r decodeRecord) (tree.Tree, error) {
		return decodeTree(r.buf)
	})

	out := make(tree.Map, len(results))
	for i, res := range results {
		if res.Error != nil {
			return nil, res.Error
		}
		out[decodeIn[i].key] = res.Result
	}
	return out, nil
}
