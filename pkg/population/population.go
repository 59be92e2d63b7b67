// Package population implements the node population registry: the
// mapping from population index to its node-identifier range and label,
// plus the set of legal source->destination projection pairs. Loaded once
// per open and immutable thereafter.
package population

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/collective"
)

// Range is a population's contiguous half-open node-identifier range.
type Range struct {
	Start uint64
	Count uint32
}

// End returns the exclusive upper bound of the range.
func (r Range) End() uint64 { return r.Start + uint64(r.Count) }

// Pair names one legal projection: edges may run from Src to Dst.
type Pair struct {
	Src uint16
	Dst uint16
}

// Registry is the immutable, process-wide-free population table loaded
// once at Session open.
type Registry struct {
	ranges  map[uint16]Range
	labels  map[uint16]string
	byLabel map[string]uint16
	pairs   map[Pair]bool

	// searchIndex holds population indices ordered by Range.Start, for
	// the predecessor search Locate performs.
	searchIndex []uint16
}

const (
	populationsPath = "/H5Types/Populations"
	labelsPath      = "/H5Types/Population labels"
	pairsPath       = "/H5Types/Population pairs"
)

// populationRecordSize is the on-disk encoding of one {start:u64,
// count:u32, pop:u16} record.
const populationRecordSize = 8 + 4 + 2

// pairRecordSize is the on-disk encoding of one {src:u16, dst:u16} record.
const pairRecordSize = 2 + 2

// LoadForRank performs one rank's share of the collective registry load:
// rank 0 reads the three schema datasets and broadcasts each as a
// length-prefixed buffer; every rank decodes the same bytes into an
// identical Registry.
func LoadForRank(ctx context.Context, s *collective.Session, rank int, popBC, labelBC, pairBC *collective.Broadcaster) (*Registry, error) {
	popExists, err := s.Container.Exists(ctx, populationsPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIoError, "check population schema", err)
	}
	if !popExists {
		return nil, apperr.New(apperr.CodeSchemaMissing, "population registry schema missing: "+populationsPath)
	}

	var popBytes, labelBytes, pairBytes []byte
	if rank == 0 {
		popBytes, err = readWhole(ctx, s, populationsPath, populationRecordSize)
		if err != nil {
			return nil, err
		}
		labelBytes, err = readWhole(ctx, s, labelsPath, 1)
		if err != nil {
			return nil, err
		}
		pairBytes, err = readWhole(ctx, s, pairsPath, pairRecordSize)
		if err != nil {
			return nil, err
		}
	}

	popBytes, err = popBC.Broadcast(ctx, rank, 0, popBytes)
	if err != nil {
		return nil, err
	}
	labelBytes, err = labelBC.Broadcast(ctx, rank, 0, labelBytes)
	if err != nil {
		return nil, err
	}
	pairBytes, err = pairBC.Broadcast(ctx, rank, 0, pairBytes)
	if err != nil {
		return nil, err
	}

	return decode(popBytes, labelBytes, pairBytes)
}

func readWhole(ctx context.Context, s *collective.Session, path string, elemSize int) ([]byte, error) {
	n, err := s.Container.Size(ctx, path, elemSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIoError, "stat "+path, err)
	}
	if n == 0 {
		return nil, nil
	}
	data, err := s.Container.ReadBlock(ctx, path, elemSize, 0, n)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeBadSchema, "read "+path, err)
	}
	return data, nil
}

func decode(popBytes, labelBytes, pairBytes []byte) (*Registry, error) {
	if len(popBytes)%populationRecordSize != 0 {
		return nil, apperr.New(apperr.CodeBadSchema, "malformed population array")
	}
	if len(pairBytes)%pairRecordSize != 0 {
		return nil, apperr.New(apperr.CodeBadSchema, "malformed population pairs array")
	}

	reg := &Registry{
		ranges:  make(map[uint16]Range),
		labels:  make(map[uint16]string),
		byLabel: make(map[string]uint16),
		pairs:   make(map[Pair]bool),
	}

	n := len(popBytes) / populationRecordSize
	for i := 0; i < n; i++ {
		off := i * populationRecordSize
		start := binary.LittleEndian.Uint64(popBytes[off : off+8])
		count := binary.LittleEndian.Uint32(popBytes[off+8 : off+12])
		pop := binary.LittleEndian.Uint16(popBytes[off+12 : off+14])
		reg.ranges[pop] = Range{Start: start, Count: count}
		reg.searchIndex = append(reg.searchIndex, pop)
	}
	sort.Slice(reg.searchIndex, func(i, j int) bool {
		return reg.ranges[reg.searchIndex[i]].Start < reg.ranges[reg.searchIndex[j]].Start
	})

	labels, err := decodeLabels(labelBytes, n)
	if err != nil {
		return nil, err
	}
	for pop, label := range labels {
		reg.labels[pop] = label
		reg.byLabel[label] = pop
	}

	np := len(pairBytes) / pairRecordSize
	for i := 0; i < np; i++ {
		off := i * pairRecordSize
		src := binary.LittleEndian.Uint16(pairBytes[off : off+2])
		dst := binary.LittleEndian.Uint16(pairBytes[off+2 : off+4])
		reg.pairs[Pair{Src: src, Dst: dst}] = true
	}

	return reg, nil
}

// decodeLabels decodes a simple NUL-delimited label table, one label per
// registered population index in ascending index order. A dedicated
// label encoding is an implementation detail the original HDF5 enum type
// abstracts away; this module only needs index -> name and name -> index.
func decodeLabels(labelBytes []byte, numPops int) (map[uint16]string, error) {
	labels := make(map[uint16]string)
	if len(labelBytes) == 0 {
		return labels, nil
	}

	var pop uint16
	start := 0
	for i, b := range labelBytes {
		if b == 0 {
			labels[pop] = string(labelBytes[start:i])
			pop++
			start = i + 1
		}
	}
	return labels, nil
}

// PopByLabel resolves a population's label to its index.
func (r *Registry) PopByLabel(name string) (uint16, error) {
	idx, ok := r.byLabel[name]
	if !ok {
		return 0, apperr.Newf(apperr.CodeNotFound, "population label %q not found", name)
	}
	return idx, nil
}

// RangeOf returns a population's identifier range.
func (r *Registry) RangeOf(pop uint16) (Range, error) {
	rg, ok := r.ranges[pop]
	if !ok {
		return Range{}, apperr.Newf(apperr.CodeNotFound, "population %d not found", pop)
	}
	return rg, nil
}

// Label returns a population's label.
func (r *Registry) Label(pop uint16) (string, error) {
	label, ok := r.labels[pop]
	if !ok {
		return "", apperr.Newf(apperr.CodeNotFound, "population %d has no label", pop)
	}
	return label, nil
}

// Locate finds the population that owns a global node identifier via
// predecessor search over the sorted-by-start index.
func (r *Registry) Locate(globalID uint64) (uint16, error) {
	idx := sort.Search(len(r.searchIndex), func(i int) bool {
		return r.ranges[r.searchIndex[i]].Start > globalID
	})
	if idx == 0 {
		return 0, apperr.Newf(apperr.CodeNotFound, "no population covers id %d", globalID)
	}
	pop := r.searchIndex[idx-1]
	rg := r.ranges[pop]
	if globalID >= rg.End() {
		return 0, apperr.Newf(apperr.CodeNotFound, "no population covers id %d", globalID)
	}
	return pop, nil
}

// IsValidPair reports whether edges may run from src to dst.
func (r *Registry) IsValidPair(src, dst uint16) bool {
	return r.pairs[Pair{Src: src, Dst: dst}]
}

// Pairs returns every legal projection pair.
func (r *Registry) Pairs() []Pair {
	out := make([]Pair, 0, len(r.pairs))
	for p := range r.pairs {
		out = append(out, p)
	}
	return out
}

// Exists reports whether the registry's schema datasets are present in
// the container, per spec.md §11's exists_h5types supplement.
func Exists(ctx context.Context, s *collective.Session) (bool, error) {
	return s.Container.Exists(ctx, populationsPath)
}

// Declaration describes one population to seed into a freshly created
// container: its label and its contiguous node-identifier range. Index
// order within the slice passed to WriteRegistry becomes the population
// index, matching decode's ascending-index label table.
type Declaration struct {
	Label string
	Range Range
}

// WriteRegistry is decode's inverse: it writes the three H5Types schema
// datasets a single time from a rank-0-only, non-collective caller (a
// one-shot CLI setting up a fresh container rather than a running
// SPMD job), so every subsequent LoadForRank sees the same registry
// decode would produce from these Declarations and pairs.
func WriteRegistry(ctx context.Context, s *collective.Session, decls []Declaration, pairs []Pair) error {
	popBytes := make([]byte, 0, len(decls)*populationRecordSize)
	var labelBytes []byte
	for i, d := range decls {
		rec := make([]byte, populationRecordSize)
		binary.LittleEndian.PutUint64(rec[0:8], d.Range.Start)
		binary.LittleEndian.PutUint32(rec[8:12], d.Range.Count)
		binary.LittleEndian.PutUint16(rec[12:14], uint16(i))
		popBytes = append(popBytes, rec...)
		labelBytes = append(labelBytes, append([]byte(d.Label), 0)...)
	}

	pairBytes := make([]byte, 0, len(pairs)*pairRecordSize)
	for _, p := range pairs {
		rec := make([]byte, pairRecordSize)
		binary.LittleEndian.PutUint16(rec[0:2], p.Src)
		binary.LittleEndian.PutUint16(rec[2:4], p.Dst)
		pairBytes = append(pairBytes, rec...)
	}

	if err := s.Container.WriteBlock(ctx, populationsPath, populationRecordSize, uint64(len(decls)), 0, popBytes); err != nil {
		return apperr.Wrap(apperr.CodeIoError, "write population schema", err)
	}
	if err := s.Container.WriteBlock(ctx, labelsPath, 1, uint64(len(labelBytes)), 0, labelBytes); err != nil {
		return apperr.Wrap(apperr.CodeIoError, "write population labels", err)
	}
	if err := s.Container.WriteBlock(ctx, pairsPath, pairRecordSize, uint64(len(pairs)), 0, pairBytes); err != nil {
		return apperr.Wrap(apperr.CodeIoError, "write population pairs", err)
	}
	return nil
}
