package packed

import (
	"testing"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/pkg/elemtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValues_RoundTrip(t *testing.T) {
	cases := []elemtype.Values{
		{Kind: elemtype.KindUint8, U8: []uint8{1, 2, 3}},
		{Kind: elemtype.KindInt8, I8: []int8{-1, 2, -3}},
		{Kind: elemtype.KindUint16, U16: []uint16{10, 20}},
		{Kind: elemtype.KindInt16, I16: []int16{-10, 20}},
		{Kind: elemtype.KindUint32, U32: []uint32{100, 200}},
		{Kind: elemtype.KindInt32, I32: []int32{-100, 200}},
		{Kind: elemtype.KindFloat32, F32: []float32{1.5, -2.25}},
		{Kind: elemtype.KindUint64, U64: []uint64{1000, 2000}},
		{Kind: elemtype.KindInt64, I64: []int64{-1000, 2000}},
		{Kind: elemtype.KindEnum8, Enum8: []uint8{0, 1, 2}},
	}

	for _, v := range cases {
		buf := EncodeValues(v)
		decoded, n, err := DecodeValues(buf, v.Kind)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v, decoded)
	}
}

func TestDecodeValues_TruncatedBuffer(t *testing.T) {
	_, _, err := DecodeValues([]byte{1, 2}, elemtype.KindUint32)
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeTruncated, apperr.Code(err))

	buf := EncodeValues(elemtype.Values{Kind: elemtype.KindUint32, U32: []uint32{1, 2, 3}})
	_, _, err = DecodeValues(buf[:len(buf)-2], elemtype.KindUint32)
	assert.Error(t, err)
}

func TestDecodeValues_InvalidKind(t *testing.T) {
	_, _, err := DecodeValues(make([]byte, 8), elemtype.Kind(200))
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.Code(err))
}

func TestEncodeDecodeUint64s_RoundTrip(t *testing.T) {
	xs := []uint64{5, 4, 3, 2, 1}
	buf := EncodeUint64s(xs)
	decoded, n, err := DecodeUint64s(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, xs, decoded)
}

func TestDecodeUint64s_Truncated(t *testing.T) {
	_, _, err := DecodeUint64s([]byte{1})
	assert.Error(t, err)
}

func TestDecodeRecords_SequentialFraming(t *testing.T) {
	r1 := EncodeValues(elemtype.Values{Kind: elemtype.KindUint32, U32: []uint32{7, 8}})
	r2 := EncodeValues(elemtype.Values{Kind: elemtype.KindFloat32, F32: []float32{1.0}})
	buf := append(append([]byte{}, r1...), r2...)

	out, err := DecodeRecords(buf, []elemtype.Kind{elemtype.KindUint32, elemtype.KindFloat32})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []uint32{7, 8}, out[0].U32)
	assert.Equal(t, []float32{1.0}, out[1].F32)
}
