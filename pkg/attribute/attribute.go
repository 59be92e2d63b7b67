// Package attribute implements the per-cell attribute engine: reading,
// selecting, appending, and grouped-appending the (cell_index, attr_ptr,
// attr_value) triple that backs one named attribute under one population
// and namespace.
package attribute

import (
	"context"
	"fmt"
	"sort"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/soltesz-lab/neuroh5/internal/wireints"
	"github.com/soltesz-lab/neuroh5/pkg/elemtype"
	"github.com/soltesz-lab/neuroh5/pkg/population"
	"github.com/soltesz-lab/neuroh5/pkg/rankpart"
)

// IndexElemSize and PtrElemSize are the fixed on-disk widths of the cell
// index and attribute pointer datasets (spec.md §6: cell identifiers are
// 32-bit, attribute pointers are 64-bit).
const (
	IndexElemSize = 4
	PtrElemSize   = 8
)

// Paths names the three datasets of one attribute triple.
type Paths struct {
	Index string
	Ptr   string
	Value string
}

// PathsFor builds the triple's dataset paths under one population and
// namespace.
func PathsFor(pop, namespace, attr string) Paths {
	base := fmt.Sprintf("/Populations/%s/%s/%s", pop, namespace, attr)
	return Paths{
		Index: base + "/Cell Index",
		Ptr:   base + "/Attribute Pointer",
		Value: base + "/Attribute Value",
	}
}

// Triple is one rank's decoded, rebased slice of an attribute triple.
type Triple struct {
	// Index holds global cell identifiers (population start already
	// added back in).
	Index []uint32
	// Ptr is nil for scalar-per-cell attributes that elide the pointer
	// dataset; otherwise it is zero-based over Values, with one more
	// entry than len(Index).
	Ptr    []uint64
	Values elemtype.Values
}

// Map is a namespace/attribute's full set of per-cell values, keyed by
// global cell id — the caller-facing shape of an attribute round trip
// (spec.md §8 scenario 4: "{3:[1.0,2.0], 5:[], 7:[9.0]}").
type Map map[uint32]elemtype.Values

// ToMap splits a Triple's flat Values back into one entry per cell id
// using Ptr, or a direct one-value-per-cell mapping when Ptr is nil
// (scalar attributes).
func (t Triple) ToMap() Map {
	out := make(Map, len(t.Index))
	if t.Ptr == nil {
		for i, gid := range t.Index {
			out[gid] = t.Values.Slice(i, i+1)
		}
		return out
	}
	for i, gid := range t.Index {
		out[gid] = t.Values.Slice(int(t.Ptr[i]), int(t.Ptr[i+1]))
	}
	return out
}

// SelectionToMap assembles a Map from SelectionRead's outputs, keyed by
// the same selection slice that was passed in.
func SelectionToMap(selection []uint32, values elemtype.Values, selPtr []uint64) Map {
	out := make(Map, len(selection))
	for i, gid := range selection {
		out[gid] = values.Slice(int(selPtr[i]), int(selPtr[i+1]))
	}
	return out
}

// AppendInputFromMap builds one rank's AppendInput from a Map, in
// ascending cell-id order, always emitting the pointer dataset (a scalar
// per-cell attribute is just one whose every Ptr span has length 1).
func AppendInputFromMap(m Map, kind elemtype.Kind) AppendInput {
	gids := make([]uint32, 0, len(m))
	for gid := range m {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })

	in := AppendInput{
		Index:      gids,
		Ptr:        make([]uint64, 1, len(gids)+1),
		Values:     elemtype.Values{Kind: kind},
		IndexOwner: true,
		PtrOwner:   true,
	}
	for _, gid := range gids {
		v := m[gid]
		in.Values = in.Values.Append(v)
		in.Ptr = append(in.Ptr, in.Ptr[len(in.Ptr)-1]+uint64(v.Len()))
	}
	return in
}

// ReadForRank performs one rank's share of 4.D.1: the local window of the
// index/ptr/value triple for a bounded or unbounded read, rebased so Ptr
// is zero-based over the returned Values.
func ReadForRank(ctx context.Context, s *collective.Session, rank, size int, reg *population.Registry, pop, namespace, attr string, kind elemtype.Kind, offset, count uint64) (Triple, error) {
	return ReadForRankAt(ctx, s, rank, size, reg, pop, PathsFor(pop, namespace, attr), kind, offset, count)
}

// ReadForRankAt is ReadForRank generalized to an explicit Paths, letting a
// caller such as the tree codec share one index/pointer dataset pair
// across several value datasets (4.F's "pointer shared" attributes).
func ReadForRankAt(ctx context.Context, s *collective.Session, rank, size int, reg *population.Registry, pop string, paths Paths, kind elemtype.Kind, offset, count uint64) (Triple, error) {
	popIdx, err := reg.PopByLabel(pop)
	if err != nil {
		return Triple{}, err
	}
	popRange, err := reg.RangeOf(popIdx)
	if err != nil {
		return Triple{}, err
	}

	exists, err := s.Container.Exists(ctx, paths.Index)
	if err != nil {
		return Triple{}, apperr.Wrapf(apperr.CodeIoError, err, "check attribute index %s", paths.Index)
	}
	if !exists {
		return Triple{}, apperr.Newf(apperr.CodeNotFound, "attribute index %s not found", paths.Index)
	}

	datasetSize, err := s.Container.Size(ctx, paths.Index, IndexElemSize)
	if err != nil {
		return Triple{}, apperr.Wrap(apperr.CodeIoError, "stat attribute index", err)
	}
	if offset >= datasetSize {
		return Triple{Values: elemtype.Values{Kind: kind}}, apperr.Newf(apperr.CodeRangeOutOfBounds, "offset %d >= dataset size %d", offset, datasetSize)
	}

	n := datasetSize - offset
	if count > 0 {
		if want := count * uint64(size); want < n {
			n = want
		}
	}
	bins := rankpart.Ranges(n, size)
	if rank >= len(bins) {
		return Triple{Values: elemtype.Values{Kind: kind}}, nil
	}
	bin := bins[rank]

	idxBytes, err := s.Container.ReadBlock(ctx, paths.Index, IndexElemSize, offset+bin.Offset, bin.Len)
	if err != nil {
		return Triple{}, err
	}
	index := wireints.DecodeU32(idxBytes)
	for i := range index {
		index[i] += uint32(popRange.Start)
	}

	ptrExists, err := s.Container.Exists(ctx, paths.Ptr)
	if err != nil {
		return Triple{}, apperr.Wrap(apperr.CodeIoError, "check attribute pointer", err)
	}

	var ptr []uint64
	var valueStart, valueCount uint64
	if ptrExists {
		ptrBytes, err := s.Container.ReadBlock(ctx, paths.Ptr, PtrElemSize, offset+bin.Offset, bin.Len+1)
		if err != nil {
			return Triple{}, err
		}
		ptr = wireints.DecodeU64(ptrBytes)
		rebase := ptr[0]
		valueStart = ptr[0]
		valueCount = ptr[len(ptr)-1] - ptr[0]
		for i := range ptr {
			ptr[i] -= rebase
		}
	} else {
		valueStart = offset + bin.Offset
		valueCount = bin.Len
	}

	valSize, err := s.Container.Size(ctx, paths.Value, kind.Size())
	if err != nil {
		return Triple{}, apperr.Wrap(apperr.CodeIoError, "stat attribute value", err)
	}
	if valueStart+valueCount > valSize {
		return Triple{}, apperr.Newf(apperr.CodeTruncated, "attribute pointer end %d exceeds value dataset size %d", valueStart+valueCount, valSize)
	}

	valBytes, err := s.Container.ReadBlock(ctx, paths.Value, kind.Size(), valueStart, valueCount)
	if err != nil {
		return Triple{}, err
	}
	values := elemtype.DecodeRaw(valBytes, kind, int(valueCount))

	return Triple{Index: index, Ptr: ptr, Values: values}, nil
}

// SelectionRead implements 4.D.2: given a list of global cell ids (in the
// order they should appear in the output), reads the full index and
// pointer datasets once, locates each selected cell, and concatenates its
// values. Every participating rank must call this with the same selection
// semantics are per-rank independent; the underlying container reads are
// still collective across whatever group the caller's Session was built
// over.
func SelectionRead(ctx context.Context, s *collective.Session, reg *population.Registry, pop, namespace, attr string, kind elemtype.Kind, selection []uint32) (elemtype.Values, []uint64, error) {
	return SelectionReadAt(ctx, s, reg, pop, PathsFor(pop, namespace, attr), kind, selection)
}

// SelectionReadAt is SelectionRead generalized to an explicit Paths, for
// the same sharing reason as ReadForRankAt.
func SelectionReadAt(ctx context.Context, s *collective.Session, reg *population.Registry, pop string, paths Paths, kind elemtype.Kind, selection []uint32) (elemtype.Values, []uint64, error) {
	popIdx, err := reg.PopByLabel(pop)
	if err != nil {
		return elemtype.Values{}, nil, err
	}
	popRange, err := reg.RangeOf(popIdx)
	if err != nil {
		return elemtype.Values{}, nil, err
	}

	idxSize, err := s.Container.Size(ctx, paths.Index, IndexElemSize)
	if err != nil {
		return elemtype.Values{}, nil, apperr.Wrap(apperr.CodeIoError, "stat attribute index", err)
	}
	idxBytes, err := s.Container.ReadBlock(ctx, paths.Index, IndexElemSize, 0, idxSize)
	if err != nil {
		return elemtype.Values{}, nil, err
	}
	index := wireints.DecodeU32(idxBytes)

	ptrSize, err := s.Container.Size(ctx, paths.Ptr, PtrElemSize)
	if err != nil {
		return elemtype.Values{}, nil, apperr.Wrap(apperr.CodeIoError, "stat attribute pointer", err)
	}
	ptrBytes, err := s.Container.ReadBlock(ctx, paths.Ptr, PtrElemSize, 0, ptrSize)
	if err != nil {
		return elemtype.Values{}, nil, err
	}
	ptr := wireints.DecodeU64(ptrBytes)

	pos := make(map[uint32]int, len(index))
	for i, v := range index {
		pos[v] = i
	}

	out := elemtype.Values{Kind: kind}
	selPtr := make([]uint64, 0, len(selection)+1)
	selPtr = append(selPtr, 0)

	var total uint64
	for _, gid := range selection {
		local := gid - uint32(popRange.Start)
		p, ok := pos[local]
		if !ok {
			return elemtype.Values{}, nil, apperr.Newf(apperr.CodeNotFound, "selection cell %d not found in %s", gid, paths.Value)
		}
		lo, hi := ptr[p], ptr[p+1]
		valBytes, err := s.Container.ReadBlock(ctx, paths.Value, kind.Size(), lo, hi-lo)
		if err != nil {
			return elemtype.Values{}, nil, err
		}
		out = out.Append(elemtype.DecodeRaw(valBytes, kind, int(hi-lo)))
		total += hi - lo
		selPtr = append(selPtr, total)
	}
	return out, selPtr, nil
}

// AppendInput is one rank's local contribution to an append, in the
// caller's canonical form: Ptr[0] == 0 and len(Ptr) == len(Index)+1 (Ptr
// may be nil for a triple that elides the pointer dataset). Index holds
// global cell identifiers.
type AppendInput struct {
	Index  []uint32
	Ptr    []uint64
	Values elemtype.Values

	// IndexOwner and PtrOwner mark whether this attribute creates the
	// index/pointer datasets itself or shares them with sibling
	// attributes (as the tree codec's ten triples do); non-owners skip
	// emitting the dataset they do not own.
	IndexOwner bool
	PtrOwner   bool
}

// Negotiators bundles the three size-protocol instances 4.D.3 needs, one
// per dataset being extended.
type Negotiators struct {
	Index *collective.Negotiator
	Ptr   *collective.Negotiator
	Value *collective.Negotiator
}

// NewNegotiators allocates a fresh Negotiators scoped to one append call.
func NewNegotiators(g *collective.Group) Negotiators {
	return Negotiators{
		Index: collective.NewNegotiator(g),
		Ptr:   collective.NewNegotiator(g),
		Value: collective.NewNegotiator(g),
	}
}

// AppendForRank implements 4.D.3: negotiate global placement for each of
// the three datasets, rebase the local pointer forward, and write
// through the block primitive.
func AppendForRank(ctx context.Context, s *collective.Session, neg Negotiators, rank int, isLastRank bool, reg *population.Registry, pop, namespace, attr string, in AppendInput) error {
	return AppendForRankAt(ctx, s, neg, rank, isLastRank, reg, pop, PathsFor(pop, namespace, attr), in)
}

// AppendForRankAt is AppendForRank generalized to an explicit Paths. When
// in.IndexOwner/in.PtrOwner is false, the corresponding dataset is
// neither negotiated nor written — the tree codec relies on this to let
// nine of its ten attributes share one owner's index/pointer datasets
// without re-negotiating them.
func AppendForRankAt(ctx context.Context, s *collective.Session, neg Negotiators, rank int, isLastRank bool, reg *population.Registry, pop string, paths Paths, in AppendInput) error {
	if in.PtrOwner && len(in.Ptr) > 0 && in.Ptr[0] != 0 {
		return apperr.New(apperr.CodeInvalidArgument, "attribute append: local pointer must start at 0")
	}
	if in.PtrOwner && len(in.Ptr) > 0 && uint64(len(in.Ptr)) != uint64(len(in.Index))+1 {
		return apperr.New(apperr.CodeInvalidArgument, "attribute append: index.size()+1 must equal attr_ptr.size()")
	}

	popIdx, err := reg.PopByLabel(pop)
	if err != nil {
		return err
	}
	popRange, err := reg.RangeOf(popIdx)
	if err != nil {
		return err
	}

	localPtrSize := uint64(0)
	if in.PtrOwner && len(in.Ptr) > 0 {
		localPtrSize = uint64(len(in.Ptr) - 1)
	}

	var indexOffset, ptrOffset uint64
	if in.IndexOwner {
		indexOffset, _, err = neg.Index.Negotiate(ctx, rank, uint64(len(in.Index)), false)
		if err != nil {
			return err
		}
	}
	if in.PtrOwner {
		ptrOffset, _, err = neg.Ptr.Negotiate(ctx, rank, localPtrSize, isLastRank && in.PtrOwner)
		if err != nil {
			return err
		}
	}
	valueOffset, _, err := neg.Value.Negotiate(ctx, rank, uint64(in.Values.Len()), false)
	if err != nil {
		return err
	}

	existingValueSize, err := s.Container.Size(ctx, paths.Value, in.Values.Kind.Size())
	if err != nil {
		return apperr.Wrap(apperr.CodeIoError, "stat attribute value", err)
	}

	if in.IndexOwner {
		existingIndexSize, err := s.Container.Size(ctx, paths.Index, IndexElemSize)
		if err != nil {
			return apperr.Wrap(apperr.CodeIoError, "stat attribute index", err)
		}
		local := make([]uint32, len(in.Index))
		for i, gid := range in.Index {
			local[i] = gid - uint32(popRange.Start)
		}
		if err := s.Container.WriteBlock(ctx, paths.Index, IndexElemSize, existingIndexSize+uint64(len(local)), existingIndexSize+indexOffset, wireints.EncodeU32(local)); err != nil {
			return err
		}
	}

	if in.PtrOwner && len(in.Ptr) > 0 {
		existingPtrSize, err := s.Container.Size(ctx, paths.Ptr, PtrElemSize)
		if err != nil {
			return apperr.Wrap(apperr.CodeIoError, "stat attribute pointer", err)
		}
		rebased := make([]uint64, len(in.Ptr))
		for i, p := range in.Ptr {
			rebased[i] = p + valueOffset + existingValueSize
		}
		ptrBase := uint64(0)
		if existingPtrSize > 0 {
			ptrBase = existingPtrSize - 1
		}
		ptrWriteOffset := ptrBase + ptrOffset
		if err := s.Container.WriteBlock(ctx, paths.Ptr, PtrElemSize, existingPtrSize+uint64(localPtrSize), ptrWriteOffset, wireints.EncodeU64(rebased)); err != nil {
			return err
		}
	}

	if err := s.Container.WriteBlock(ctx, paths.Value, in.Values.Kind.Size(), existingValueSize+uint64(in.Values.Len()), existingValueSize+valueOffset, elemtype.EncodeRaw(in.Values)); err != nil {
		return err
	}

	return nil
}
