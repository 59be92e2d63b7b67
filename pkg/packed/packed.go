// Package packed implements the length-prefixed wire framing the
// attribute engine, the projection codec, and the tree codec all share:
// every record is a 4-byte little-endian count followed by that many
// elements of a fixed-width scalar kind. This is the single place that
// encodes and decodes an elemtype.Values payload to and from bytes.
package packed

import (
	"encoding/binary"
	"math"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/pkg/elemtype"
)

// lengthPrefixSize is the width of the record's leading element count.
const lengthPrefixSize = 4

// EncodeValues frames v as a length-prefixed byte record: a uint32
// element count followed by v.Len() elements of v.Kind's fixed width.
func EncodeValues(v elemtype.Values) []byte {
	n := v.Len()
	size := v.Kind.Size()
	buf := make([]byte, lengthPrefixSize+n*size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	body := buf[lengthPrefixSize:]

	switch v.Kind {
	case elemtype.KindUint8:
		copy(body, v.U8)
	case elemtype.KindInt8:
		for i, x := range v.I8 {
			body[i] = byte(x)
		}
	case elemtype.KindEnum8:
		copy(body, v.Enum8)
	case elemtype.KindUint16:
		for i, x := range v.U16 {
			binary.LittleEndian.PutUint16(body[i*2:], x)
		}
	case elemtype.KindInt16:
		for i, x := range v.I16 {
			binary.LittleEndian.PutUint16(body[i*2:], uint16(x))
		}
	case elemtype.KindUint32:
		for i, x := range v.U32 {
			binary.LittleEndian.PutUint32(body[i*4:], x)
		}
	case elemtype.KindInt32:
		for i, x := range v.I32 {
			binary.LittleEndian.PutUint32(body[i*4:], uint32(x))
		}
	case elemtype.KindFloat32:
		for i, x := range v.F32 {
			binary.LittleEndian.PutUint32(body[i*4:], math.Float32bits(x))
		}
	case elemtype.KindUint64:
		for i, x := range v.U64 {
			binary.LittleEndian.PutUint64(body[i*8:], x)
		}
	case elemtype.KindInt64:
		for i, x := range v.I64 {
			binary.LittleEndian.PutUint64(body[i*8:], uint64(x))
		}
	}
	return buf
}

// DecodeValues reads one length-prefixed record of the given kind from
// buf, returning the decoded Values and the number of bytes consumed.
func DecodeValues(buf []byte, kind elemtype.Kind) (elemtype.Values, int, error) {
	if !kind.Valid() {
		return elemtype.Values{}, 0, apperr.Newf(apperr.CodeInvalidArgument, "packed: invalid element kind %d", kind)
	}
	if len(buf) < lengthPrefixSize {
		return elemtype.Values{}, 0, apperr.New(apperr.CodeTruncated, "packed: buffer too short for length prefix")
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	size := kind.Size()
	need := lengthPrefixSize + n*size
	if len(buf) < need {
		return elemtype.Values{}, 0, apperr.Newf(apperr.CodeTruncated, "packed: buffer has %d bytes, record needs %d", len(buf), need)
	}
	body := buf[lengthPrefixSize:need]

	v := elemtype.Values{Kind: kind}
	switch kind {
	case elemtype.KindUint8:
		v.U8 = append([]uint8{}, body...)
	case elemtype.KindInt8:
		v.I8 = make([]int8, n)
		for i := range v.I8 {
			v.I8[i] = int8(body[i])
		}
	case elemtype.KindEnum8:
		v.Enum8 = append([]uint8{}, body...)
	case elemtype.KindUint16:
		v.U16 = make([]uint16, n)
		for i := range v.U16 {
			v.U16[i] = binary.LittleEndian.Uint16(body[i*2:])
		}
	case elemtype.KindInt16:
		v.I16 = make([]int16, n)
		for i := range v.I16 {
			v.I16[i] = int16(binary.LittleEndian.Uint16(body[i*2:]))
		}
	case elemtype.KindUint32:
		v.U32 = make([]uint32, n)
		for i := range v.U32 {
			v.U32[i] = binary.LittleEndian.Uint32(body[i*4:])
		}
	case elemtype.KindInt32:
		v.I32 = make([]int32, n)
		for i := range v.I32 {
			v.I32[i] = int32(binary.LittleEndian.Uint32(body[i*4:]))
		}
	case elemtype.KindFloat32:
		v.F32 = make([]float32, n)
		for i := range v.F32 {
			v.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		}
	case elemtype.KindUint64:
		v.U64 = make([]uint64, n)
		for i := range v.U64 {
			v.U64[i] = binary.LittleEndian.Uint64(body[i*8:])
		}
	case elemtype.KindInt64:
		v.I64 = make([]int64, n)
		for i := range v.I64 {
			v.I64[i] = int64(binary.LittleEndian.Uint64(body[i*8:]))
		}
	}
	return v, need, nil
}

// EncodeUint64s frames a plain []uint64 the same way (used for index and
// pointer datasets, which are always uint64 regardless of attribute kind).
func EncodeUint64s(xs []uint64) []byte {
	buf := make([]byte, lengthPrefixSize+len(xs)*8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(xs)))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[lengthPrefixSize+i*8:], x)
	}
	return buf
}

// DecodeUint64s reads one length-prefixed []uint64 record from buf,
// returning the decoded slice and the number of bytes consumed.
func DecodeUint64s(buf []byte) ([]uint64, int, error) {
	if len(buf) < lengthPrefixSize {
		return nil, 0, apperr.New(apperr.CodeTruncated, "packed: buffer too short for length prefix")
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	need := lengthPrefixSize + n*8
	if len(buf) < need {
		return nil, 0, apperr.Newf(apperr.CodeTruncated, "packed: buffer has %d bytes, record needs %d", len(buf), need)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[lengthPrefixSize+i*8:])
	}
	return out, need, nil
}

// Record is one length-prefixed, type-tagged attribute entry as it
// appears packed inside a tree or edge record: a name-carrying field is
// not part of the wire format itself (names are resolved through an
// elemtype.Index out of band), only the kind and the payload are.
type Record struct {
	Kind  elemtype.Kind
	Bytes []byte
}

// EncodeRecords frames a sequence of heterogeneous-kind attribute
// payloads back to back, each self-delimiting via its own length prefix,
// per spec.md §4.G's "ten attribute triples sharing one index/pointer
// dataset" framing.
func EncodeRecords(records []Record) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r.Bytes...)
	}
	return out
}

// DecodeRecords reads count consecutive length-prefixed records of the
// given kinds from buf.
func DecodeRecords(buf []byte, kinds []elemtype.Kind) ([]elemtype.Values, error) {
	out := make([]elemtype.Values, len(kinds))
	off := 0
	for i, kind := range kinds {
		v, n, err := DecodeValues(buf[off:], kind)
		if err != nil {
			return nil, err
		}
		out[i] = v
		off += n
	}
	return out, nil
}
