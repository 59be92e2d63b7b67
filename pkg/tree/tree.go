// Package tree implements the morphology codec: the ten parallel
// per-node arrays of a cell tree, persisted as ten attribute triples
// that share a single index/pointer dataset pair (4.F). Nine attributes
// declare themselves pointer-shared; one (X) owns the index and pointer
// datasets that the other nine piggyback on.
package tree

import (
	"context"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/soltesz-lab/neuroh5/pkg/attribute"
	"github.com/soltesz-lab/neuroh5/pkg/elemtype"
	"github.com/soltesz-lab/neuroh5/pkg/population"
)

// The ten attribute names a tree is persisted under, in the order
// _examples/original_source/src/mpi/pack_tree.cc packs them.
const (
	AttrSectionSrc = "section_src"
	AttrSectionDst = "section_dst"
	AttrSections   = "sections"
	AttrX          = "x"
	AttrY          = "y"
	AttrZ          = "z"
	AttrRadius     = "radius"
	AttrLayer      = "layer"
	AttrParent     = "parent"
	AttrSWCType    = "swc_type"

	// ptrOwnerAttr is the one attribute among the ten that creates the
	// shared cell_index/attr_ptr datasets; the other nine write only
	// their own value dataset against the same pair.
	ptrOwnerAttr = AttrX
)

// attrNames lists all ten in pack order, ptrOwnerAttr first so callers
// that need deterministic iteration see the owner before its dependents.
var attrNames = []string{
	AttrX, AttrSectionSrc, AttrSectionDst, AttrSections,
	AttrY, AttrZ, AttrRadius, AttrLayer, AttrParent, AttrSWCType,
}

// kindOf returns the on-disk element kind spec.md §6 assigns each array.
func kindOf(name string) elemtype.Kind {
	switch name {
	case AttrSectionSrc, AttrSectionDst, AttrSections:
		return elemtype.KindUint32
	case AttrX, AttrY, AttrZ, AttrRadius:
		return elemtype.KindFloat32
	case AttrLayer:
		return elemtype.KindInt16
	case AttrParent:
		return elemtype.KindInt32
	case AttrSWCType:
		return elemtype.KindInt8
	default:
		panic("tree: unknown attribute " + name)
	}
}

// Tree is one cell's morphology: ten parallel arrays, one entry per node
// except SectionSrc/SectionDst/Sections, which this module treats as
// node-indexed too so all ten share one length pattern (spec.md §6: "a
// fixed set of parallel arrays sharing one length per cell").
type Tree struct {
	SectionSrc []uint32
	SectionDst []uint32
	Sections   []uint32
	X          []float32
	Y          []float32
	Z          []float32
	Radius     []float32
	Layer      []int16
	Parent     []int32
	SWCType    []int8
}

// NodeCount returns the tree's per-node array length, taken from the
// pointer-owning attribute (X).
func (t Tree) NodeCount() int { return len(t.X) }

// Validate checks the length-agreement and bounds invariants 4.F names:
// every array is the same length, the sections descriptor sums to the
// node count, and every section-topology index lies in [0, node_count).
func (t Tree) Validate() error {
	n := t.NodeCount()
	lens := map[string]int{
		AttrSectionSrc: len(t.SectionSrc),
		AttrSectionDst: len(t.SectionDst),
		AttrSections:   len(t.Sections),
		AttrY:          len(t.Y),
		AttrZ:          len(t.Z),
		AttrRadius:     len(t.Radius),
		AttrLayer:      len(t.Layer),
		AttrParent:     len(t.Parent),
		AttrSWCType:    len(t.SWCType),
	}
	for name, l := range lens {
		if l != n {
			return apperr.Newf(apperr.CodeValidationFailed, "tree attribute %s has length %d, want %d", name, l, n)
		}
	}

	var sectionSum uint32
	for _, c := range t.Sections {
		sectionSum += c
	}
	if int(sectionSum) != n {
		return apperr.Newf(apperr.CodeValidationFailed, "tree sections sum to %d nodes, coordinate arrays have %d", sectionSum, n)
	}

	for _, idx := range t.SectionSrc {
		if int(idx) >= n {
			return apperr.Newf(apperr.CodeValidationFailed, "section_src index %d out of [0, %d)", idx, n)
		}
	}
	for _, idx := range t.SectionDst {
		if int(idx) >= n {
			return apperr.Newf(apperr.CodeValidationFailed, "section_dst index %d out of [0, %d)", idx, n)
		}
	}
	return nil
}

// Map is a namespace's full set of trees, keyed by global cell id.
type Map map[uint32]Tree

// NodeRankMap assigns each cell id the ranks that own it for a scattered
// read (4.H); a cell mapped to more than one rank is replicated to all
// of them.
type NodeRankMap map[uint32][]int

// Paths bundles the shared and per-attribute dataset paths for one
// population/namespace pair.
type Paths struct {
	shared attribute.Paths
	values map[string]string
}

// PathsFor builds the ten datasets' paths: nine value-only paths sharing
// one cell_index/attr_ptr pair owned by AttrX.
func PathsFor(pop, namespace string) Paths {
	owner := attribute.PathsFor(pop, namespace, ptrOwnerAttr)
	p := Paths{shared: owner, values: make(map[string]string, len(attrNames))}
	p.values[ptrOwnerAttr] = owner.Value
	for _, name := range attrNames {
		if name == ptrOwnerAttr {
			continue
		}
		p.values[name] = attribute.PathsFor(pop, namespace, name).Value
	}
	return p
}

func (p Paths) pathsFor(name string) attribute.Paths {
	return attribute.Paths{Index: p.shared.Index, Ptr: p.shared.Ptr, Value: p.values[name]}
}

// Negotiators bundles the shared index/pointer negotiators plus one
// value negotiator per attribute, for a single collective append call.
type Negotiators struct {
	shared *attribute.Negotiators
	values map[string]*collective.Negotiator
}

// NewNegotiators allocates a fresh Negotiators scoped to one append.
func NewNegotiators(g *collective.Group) Negotiators {
	shared := attribute.Negotiators{Index: collective.NewNegotiator(g), Ptr: collective.NewNegotiator(g)}
	values := make(map[string]*collective.Negotiator, len(attrNames))
	for _, name := range attrNames {
		values[name] = collective.NewNegotiator(g)
	}
	return Negotiators{shared: &shared, values: values}
}

func (n Negotiators) negotiatorsFor(name string) attribute.Negotiators {
	return attribute.Negotiators{Index: n.shared.Index, Ptr: n.shared.Ptr, Value: n.values[name]}
}

// ReadForRank reads one rank's share of every one of the ten attribute
// triples for the given population/namespace and reassembles them into
// per-cell Tree values, keyed by global cell id.
func ReadForRank(ctx context.Context, s *collective.Session, rank, size int, reg *population.Registry, pop string, paths Paths) (Map, error) {
	owner, err := attribute.ReadForRankAt(ctx, s, rank, size, reg, pop, paths.pathsFor(ptrOwnerAttr), kindOf(ptrOwnerAttr), 0, 0)
	if err != nil {
		return nil, err
	}

	out := make(Map, len(owner.Index))
	for i, gid := range owner.Index {
		lo, hi := owner.Ptr[i], owner.Ptr[i+1]
		t := out[gid]
		t.X = owner.Values.F32[lo:hi]
		out[gid] = t
	}

	for _, name := range attrNames {
		if name == ptrOwnerAttr {
			continue
		}
		triple, err := attribute.ReadForRankAt(ctx, s, rank, size, reg, pop, paths.pathsFor(name), kindOf(name), 0, 0)
		if err != nil {
			return nil, err
		}
		for i, gid := range triple.Index {
			lo, hi := triple.Ptr[i], triple.Ptr[i+1]
			assignAttr(out, gid, name, triple.Values.Slice(int(lo), int(hi)))
		}
	}
	return out, nil
}

// assignAttr copies one attribute's per-node slice into a Tree already
// keyed by gid in out.
func assignAttr(out Map, gid uint32, name string, vals elemtype.Values) {
	t := out[gid]
	switch name {
	case AttrSectionSrc:
		t.SectionSrc = vals.U32
	case AttrSectionDst:
		t.SectionDst = vals.U32
	case AttrSections:
		t.Sections = vals.U32
	case AttrY:
		t.Y = vals.F32
	case AttrZ:
		t.Z = vals.F32
	case AttrRadius:
		t.Radius = vals.F32
	case AttrLayer:
		t.Layer = vals.I16
	case AttrParent:
		t.Parent = vals.I32
	case AttrSWCType:
		t.SWCType = vals.I8
	}
	out[gid] = t
}

// AppendForRank implements the write side of 4.F: negotiates the shared
// index/pointer placement once (driven by AttrX) and writes all ten
// value datasets for this rank's local trees, in ascending cell-id order
// to match attr_ptr's monotonic construction.
func AppendForRank(ctx context.Context, s *collective.Session, neg Negotiators, rank int, isLastRank bool, reg *population.Registry, pop string, paths Paths, index []uint32, trees []Tree) error {
	if len(index) != len(trees) {
		return apperr.New(apperr.CodeInvalidArgument, "tree append: index and trees must have equal length")
	}
	for _, t := range trees {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	ptr := make([]uint64, 1, len(trees)+1)
	values := make(map[string]elemtype.Values, len(attrNames))
	for _, name := range attrNames {
		values[name] = elemtype.Values{Kind: kindOf(name)}
	}
	for _, t := range trees {
		ptr = append(ptr, ptr[len(ptr)-1]+uint64(t.NodeCount()))
		values[AttrX] = values[AttrX].Append(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.X})
		values[AttrY] = values[AttrY].Append(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.Y})
		values[AttrZ] = values[AttrZ].Append(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.Z})
		values[AttrRadius] = values[AttrRadius].Append(elemtype.Values{Kind: elemtype.KindFloat32, F32: t.Radius})
		values[AttrLayer] = values[AttrLayer].Append(elemtype.Values{Kind: elemtype.KindInt16, I16: t.Layer})
		values[AttrParent] = values[AttrParent].Append(elemtype.Values{Kind: elemtype.KindInt32, I32: t.Parent})
		values[AttrSWCType] = values[AttrSWCType].Append(elemtype.Values{Kind: elemtype.KindInt8, I8: t.SWCType})
		values[AttrSectionSrc] = values[AttrSectionSrc].Append(elemtype.Values{Kind: elemtype.KindUint32, U32: t.SectionSrc})
		values[AttrSectionDst] = values[AttrSectionDst].Append(elemtype.Values{Kind: elemtype.KindUint32, U32: t.SectionDst})
		values[AttrSections] = values[AttrSections].Append(elemtype.Values{Kind: elemtype.KindUint32, U32: t.Sections})
	}

	for _, name := range attrNames {
		in := attribute.AppendInput{
			Values:     values[name],
			IndexOwner: name == ptrOwnerAttr,
			PtrOwner:   name == ptrOwnerAttr,
		}
		if name == ptrOwnerAttr {
			in.Index = index
			in.Ptr = ptr
		}
		if err := attribute.AppendForRankAt(ctx, s, neg.negotiatorsFor(name), rank, isLastRank, reg, pop, paths.pathsFor(name), in); err != nil {
			return err
		}
	}
	return nil
}

// SelectionRead reads a named subset of trees by global cell id,
// preserving selection order.
func SelectionRead(ctx context.Context, s *collective.Session, reg *population.Registry, pop string, paths Paths, selection []uint32) (Map, error) {
	ownerValues, ownerPtr, err := attribute.SelectionReadAt(ctx, s, reg, pop, paths.pathsFor(ptrOwnerAttr), kindOf(ptrOwnerAttr), selection)
	if err != nil {
		return nil, err
	}

	out := make(Map, len(selection))
	for i, gid := range selection {
		lo, hi := ownerPtr[i], ownerPtr[i+1]
		t := out[gid]
		t.X = ownerValues.F32[lo:hi]
		out[gid] = t
	}

	for _, name := range attrNames {
		if name == ptrOwnerAttr {
			continue
		}
		vals, selPtr, err := attribute.SelectionReadAt(ctx, s, reg, pop, paths.pathsFor(name), kindOf(name), selection)
		if err != nil {
			return nil, err
		}
		for i, gid := range selection {
			lo, hi := selPtr[i], selPtr[i+1]
			assignAttr(out, gid, name, vals.Slice(int(lo), int(hi)))
		}
	}
	return out, nil
}
