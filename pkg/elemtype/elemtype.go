// Package elemtype holds the closed set of attribute element kinds shared
// by the attribute engine, the packed serializer, and the tree codec. It
// models a tagged variant — one typed slice per kind plus a name-indexed
// lookup — rather than dispatching through an interface per element.
package elemtype

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind names one of the element types spec.md §6 allows for an edge or
// cell attribute: signed/unsigned integers of width 1/2/4/8 bytes, a
// 32-bit float, or an 8-bit enum.
type Kind uint8

const (
	KindUint8 Kind = iota
	KindUint16
	KindUint32
	KindUint64
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindEnum8
)

// String returns the kind's on-disk/wire name.
func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindEnum8:
		return "enum8"
	default:
		return fmt.Sprintf("elemtype.Kind(%d)", uint8(k))
	}
}

// ParseKind is String's inverse, for config and CLI flags that name a
// kind by its wire name.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "uint8":
		return KindUint8, nil
	case "uint16":
		return KindUint16, nil
	case "uint32":
		return KindUint32, nil
	case "uint64":
		return KindUint64, nil
	case "int8":
		return KindInt8, nil
	case "int16":
		return KindInt16, nil
	case "int32":
		return KindInt32, nil
	case "int64":
		return KindInt64, nil
	case "float32":
		return KindFloat32, nil
	case "enum8":
		return KindEnum8, nil
	default:
		return 0, fmt.Errorf("elemtype: unknown kind %q", name)
	}
}

// Size returns the kind's per-element width in bytes.
func (k Kind) Size() int {
	switch k {
	case KindUint8, KindInt8, KindEnum8:
		return 1
	case KindUint16, KindInt16:
		return 2
	case KindUint32, KindInt32, KindFloat32:
		return 4
	case KindUint64, KindInt64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether k is one of the ten recognized kinds.
func (k Kind) Valid() bool {
	return k <= KindEnum8
}

// Values is a tagged-variant container: exactly one of the typed slices is
// populated, selected by Kind. Len, Slice and Append dispatch on Kind;
// the typed slices are exported fields that callers also read directly.
type Values struct {
	Kind    Kind
	U8      []uint8
	U16     []uint16
	U32     []uint32
	U64     []uint64
	I8      []int8
	I16     []int16
	I32     []int32
	I64     []int64
	F32     []float32
	Enum8   []uint8
}

// Len returns the number of elements held, regardless of kind.
func (v Values) Len() int {
	switch v.Kind {
	case KindUint8:
		return len(v.U8)
	case KindUint16:
		return len(v.U16)
	case KindUint32:
		return len(v.U32)
	case KindUint64:
		return len(v.U64)
	case KindInt8:
		return len(v.I8)
	case KindInt16:
		return len(v.I16)
	case KindInt32:
		return len(v.I32)
	case KindInt64:
		return len(v.I64)
	case KindFloat32:
		return len(v.F32)
	case KindEnum8:
		return len(v.Enum8)
	default:
		return 0
	}
}

// Slice returns a sub-range [lo, hi) of v with the same Kind, sharing the
// same underlying typed slice (no copy).
func (v Values) Slice(lo, hi int) Values {
	out := Values{Kind: v.Kind}
	switch v.Kind {
	case KindUint8:
		out.U8 = v.U8[lo:hi]
	case KindUint16:
		out.U16 = v.U16[lo:hi]
	case KindUint32:
		out.U32 = v.U32[lo:hi]
	case KindUint64:
		out.U64 = v.U64[lo:hi]
	case KindInt8:
		out.I8 = v.I8[lo:hi]
	case KindInt16:
		out.I16 = v.I16[lo:hi]
	case KindInt32:
		out.I32 = v.I32[lo:hi]
	case KindInt64:
		out.I64 = v.I64[lo:hi]
	case KindFloat32:
		out.F32 = v.F32[lo:hi]
	case KindEnum8:
		out.Enum8 = v.Enum8[lo:hi]
	}
	return out
}

// Append appends the elements of other (which must share Kind with v) and
// returns the extended Values.
func (v Values) Append(other Values) Values {
	if other.Len() == 0 {
		return v
	}
	out := v
	out.Kind = v.Kind
	switch v.Kind {
	case KindUint8:
		out.U8 = append(append([]uint8{}, v.U8...), other.U8...)
	case KindUint16:
		out.U16 = append(append([]uint16{}, v.U16...), other.U16...)
	case KindUint32:
		out.U32 = append(append([]uint32{}, v.U32...), other.U32...)
	case KindUint64:
		out.U64 = append(append([]uint64{}, v.U64...), other.U64...)
	case KindInt8:
		out.I8 = append(append([]int8{}, v.I8...), other.I8...)
	case KindInt16:
		out.I16 = append(append([]int16{}, v.I16...), other.I16...)
	case KindInt32:
		out.I32 = append(append([]int32{}, v.I32...), other.I32...)
	case KindInt64:
		out.I64 = append(append([]int64{}, v.I64...), other.I64...)
	case KindFloat32:
		out.F32 = append(append([]float32{}, v.F32...), other.F32...)
	case KindEnum8:
		out.Enum8 = append(append([]uint8{}, v.Enum8...), other.Enum8...)
	}
	return out
}

// EncodeRaw serializes v to its raw on-disk byte form: fixed-width
// elements with no length prefix, since the block primitive already
// knows the element count from the caller's write request.
func EncodeRaw(v Values) []byte {
	n := v.Len()
	buf := make([]byte, n*v.Kind.Size())
	switch v.Kind {
	case KindUint8:
		copy(buf, v.U8)
	case KindInt8:
		for i, x := range v.I8 {
			buf[i] = byte(x)
		}
	case KindEnum8:
		copy(buf, v.Enum8)
	case KindUint16:
		for i, x := range v.U16 {
			binary.LittleEndian.PutUint16(buf[i*2:], x)
		}
	case KindInt16:
		for i, x := range v.I16 {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(x))
		}
	case KindUint32:
		for i, x := range v.U32 {
			binary.LittleEndian.PutUint32(buf[i*4:], x)
		}
	case KindInt32:
		for i, x := range v.I32 {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(x))
		}
	case KindFloat32:
		for i, x := range v.F32 {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
		}
	case KindUint64:
		for i, x := range v.U64 {
			binary.LittleEndian.PutUint64(buf[i*8:], x)
		}
	case KindInt64:
		for i, x := range v.I64 {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
		}
	}
	return buf
}

// DecodeRaw parses buf (len(buf) == n*kind.Size()) into a Values of the
// given kind with n elements.
func DecodeRaw(buf []byte, kind Kind, n int) Values {
	v := Values{Kind: kind}
	switch kind {
	case KindUint8:
		v.U8 = append([]uint8{}, buf...)
	case KindInt8:
		v.I8 = make([]int8, n)
		for i := range v.I8 {
			v.I8[i] = int8(buf[i])
		}
	case KindEnum8:
		v.Enum8 = append([]uint8{}, buf...)
	case KindUint16:
		v.U16 = make([]uint16, n)
		for i := range v.U16 {
			v.U16[i] = binary.LittleEndian.Uint16(buf[i*2:])
		}
	case KindInt16:
		v.I16 = make([]int16, n)
		for i := range v.I16 {
			v.I16[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	case KindUint32:
		v.U32 = make([]uint32, n)
		for i := range v.U32 {
			v.U32[i] = binary.LittleEndian.Uint32(buf[i*4:])
		}
	case KindInt32:
		v.I32 = make([]int32, n)
		for i := range v.I32 {
			v.I32[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case KindFloat32:
		v.F32 = make([]float32, n)
		for i := range v.F32 {
			v.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case KindUint64:
		v.U64 = make([]uint64, n)
		for i := range v.U64 {
			v.U64[i] = binary.LittleEndian.Uint64(buf[i*8:])
		}
	case KindInt64:
		v.I64 = make([]int64, n)
		for i := range v.I64 {
			v.I64[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	}
	return v
}

// Index is a name -> (kind, slot) lookup for a set of named attribute
// vectors sharing a namespace, as spec.md §9 requires in place of virtual
// dispatch.
type Index struct {
	slots map[string]int
	kinds []Kind
	names []string
}

// NewIndex creates an empty name index.
func NewIndex() *Index {
	return &Index{slots: make(map[string]int)}
}

// Add registers name with kind and returns its slot. Re-adding the same
// name is a no-op if the kind matches, and an error otherwise.
func (idx *Index) Add(name string, kind Kind) (int, error) {
	if slot, ok := idx.slots[name]; ok {
		if idx.kinds[slot] != kind {
			return 0, fmt.Errorf("elemtype: %q already registered as %s, not %s", name, idx.kinds[slot], kind)
		}
		return slot, nil
	}
	slot := len(idx.names)
	idx.slots[name] = slot
	idx.kinds = append(idx.kinds, kind)
	idx.names = append(idx.names, name)
	return slot, nil
}

// Lookup returns the slot and kind registered for name.
func (idx *Index) Lookup(name string) (slot int, kind Kind, ok bool) {
	slot, ok = idx.slots[name]
	if !ok {
		return 0, 0, false
	}
	return slot, idx.kinds[slot], true
}

// Names returns every registered name in registration order.
func (idx *Index) Names() []string {
	out := make([]string, len(idx.names))
	copy(out, idx.names)
	return out
}
