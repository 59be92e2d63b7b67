package blockio

import (
	"context"
	"testing"

	"github.com/soltesz-lab/neuroh5/internal/blockio/localstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBarrier counts calls instead of rendezvousing goroutines, enough to
// test Container's pass-through and error-wrapping behavior in isolation.
type fakeBarrier struct {
	calls int
	err   error
}

func (f *fakeBarrier) Barrier(ctx context.Context) error {
	f.calls++
	return f.err
}

func newTestContainer(t *testing.T) (*Container, *fakeBarrier) {
	store, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	barrier := &fakeBarrier{}
	return NewContainer(store, barrier), barrier
}

func TestContainer_WriteThenReadBlock(t *testing.T) {
	c, barrier := newTestContainer(t)
	ctx := context.Background()

	data := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	require.NoError(t, c.WriteBlock(ctx, "ds", 4, 2, 0, data))

	got, err := c.ReadBlock(ctx, "ds", 4, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 2, barrier.calls)
}

func TestContainer_WriteBlockRejectsMisalignedData(t *testing.T) {
	c, _ := newTestContainer(t)
	err := c.WriteBlock(context.Background(), "ds", 4, 1, 0, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestContainer_BarrierErrorPropagates(t *testing.T) {
	store, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	barrier := &fakeBarrier{err: assertErr}
	c := NewContainer(store, barrier)

	_, err = c.ReadBlock(context.Background(), "ds", 4, 0, 1)
	assert.ErrorIs(t, err, assertErr)
}

func TestContainer_ExistsAndSize(t *testing.T) {
	c, _ := newTestContainer(t)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "ds")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.WriteBlock(ctx, "ds", 4, 1, 0, []byte{9, 9, 9, 9}))

	size, err := c.Size(ctx, "ds", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "barrier failed" }
