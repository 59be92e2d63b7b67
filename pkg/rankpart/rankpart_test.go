package rankpart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRanges_SumsToTotal(t *testing.T) {
	for _, num := range []uint64{0, 1, 7, 100, 4001} {
		for _, size := range []int{1, 2, 3, 5, 8} {
			bins := Ranges(num, size)
			var sum uint64
			for _, b := range bins {
				sum += b.Len
			}
			assert.Equal(t, num, sum, "num=%d size=%d", num, size)
		}
	}
}

func TestRanges_LengthsDifferByAtMostOne(t *testing.T) {
	bins := Ranges(100, 7)
	var min, max uint64 = ^uint64(0), 0
	for _, b := range bins {
		if b.Len < min {
			min = b.Len
		}
		if b.Len > max {
			max = b.Len
		}
	}
	assert.LessOrEqual(t, int(max-min), 1)
}

func TestRanges_ContiguousOffsets(t *testing.T) {
	bins := Ranges(53, 4)
	var expect uint64
	for _, b := range bins {
		assert.Equal(t, expect, b.Offset)
		expect += b.Len
	}
}

func TestRanges_ExactDistribution(t *testing.T) {
	// 10 elements over 3 ranks: remainder=10 buckets=3 -> len=4; remainder=6
	// buckets=2 -> len=3; remainder=3 buckets=1 -> len=3.
	bins := Ranges(10, 3)
	assert.Equal(t, []Bin{{0, 4}, {4, 3}, {7, 3}}, bins)
}

func TestRanges_ZeroRanks(t *testing.T) {
	assert.Nil(t, Ranges(10, 0))
}

func TestRanges_ZeroElements(t *testing.T) {
	bins := Ranges(0, 3)
	for _, b := range bins {
		assert.Equal(t, uint64(0), b.Len)
	}
}

func TestRangeFor_MatchesRanges(t *testing.T) {
	bins := Ranges(97, 5)
	for i := range bins {
		assert.Equal(t, bins[i], RangeFor(97, 5, i))
	}
}

func TestRangeFor_OutOfBounds(t *testing.T) {
	assert.Equal(t, Bin{}, RangeFor(10, 3, 5))
	assert.Equal(t, Bin{}, RangeFor(10, 3, -1))
}
