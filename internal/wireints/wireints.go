// Package wireints encodes and decodes raw (unframed) little-endian
// integer arrays — the on-disk form of index and pointer datasets, which
// carry no length prefix because the block primitive already knows how
// many elements it read.
package wireints

import "encoding/binary"

// EncodeU32 encodes xs as little-endian uint32s.
func EncodeU32(xs []uint32) []byte {
	buf := make([]byte, len(xs)*4)
	for i, x := range xs {
		binary.LittleEndian.PutUint32(buf[i*4:], x)
	}
	return buf
}

// DecodeU32 decodes buf (len(buf) must be a multiple of 4) into uint32s.
func DecodeU32(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}

// EncodeU64 encodes xs as little-endian uint64s.
func EncodeU64(xs []uint64) []byte {
	buf := make([]byte, len(xs)*8)
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[i*8:], x)
	}
	return buf
}

// DecodeU64 decodes buf (len(buf) must be a multiple of 8) into uint64s.
func DecodeU64(buf []byte) []uint64 {
	out := make([]uint64, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out
}
