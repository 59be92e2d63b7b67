// Package blockio implements the block primitive spec.md §1 treats as an
// external black box: read_block(path, offset, count) -> bytes and
// write_block(path, global_size, offset, count, bytes), "already
// cooperating collectively with the process group". Container supplies
// that cooperation explicitly as a single barrier per call; BlockStore
// supplies the bytes.
package blockio

import (
	"context"
	"fmt"

	"github.com/soltesz-lab/neuroh5/internal/apperr"
	"github.com/soltesz-lab/neuroh5/internal/telemetry"
)

// Barrier is the minimal synchronization a Container needs from a process
// group: block every caller until every rank has called it. Satisfied by
// *collective.Group without this package importing collective, to keep
// the dependency one-directional.
type Barrier interface {
	Barrier(ctx context.Context) error
}

// BlockStore is the byte-level storage backend a Container delegates to.
// Implementations own whatever locking is needed for concurrent access to
// the same named dataset from multiple ranks in the same process.
type BlockStore interface {
	// Exists reports whether a dataset has ever been written.
	Exists(ctx context.Context, path string) (bool, error)
	// Size returns a dataset's element count (0 if it does not exist).
	Size(ctx context.Context, path string, elemSize int) (uint64, error)
	// ReadAt reads count elements of elemSize bytes starting at offset.
	// Reading past the end of the dataset is an error.
	ReadAt(ctx context.Context, path string, elemSize int, offset, count uint64) ([]byte, error)
	// WriteAt writes data (len(data) must be a multiple of elemSize)
	// starting at the given element offset, creating the dataset if
	// absent and extending it if the write reaches past the current end.
	WriteAt(ctx context.Context, path string, elemSize int, offset uint64, data []byte) error
	// Delete removes a dataset entirely.
	Delete(ctx context.Context, path string) error
	// Close releases any resources held by the store.
	Close() error
}

// Container is the collective-aware handle operations use to read and
// write named datasets: every ReadBlock/WriteBlock call first passes
// through a barrier, emulating HDF5 collective I/O where a dataset
// read/write blocks until every rank in the group has issued a matching
// call. Mismatched calls across ranks are undefined behavior, exactly as
// spec.md §5 describes for the real primitive.
type Container struct {
	store BlockStore
	group Barrier
}

// NewContainer binds a BlockStore to the Barrier its collective calls
// synchronize on.
func NewContainer(store BlockStore, group Barrier) *Container {
	return &Container{store: store, group: group}
}

// Exists is a cheap metadata-only probe, not a collective operation —
// spec.md §11's exists_dataset/exists_h5types supplement, used by a
// writer to decide create-vs-append without a failed read for control
// flow.
func (c *Container) Exists(ctx context.Context, path string) (bool, error) {
	return c.store.Exists(ctx, path)
}

// Size is likewise a cheap metadata-only probe (spec.md §11's
// num_projection_blocks: "reads only the scalar block-count without
// decoding any array").
func (c *Container) Size(ctx context.Context, path string, elemSize int) (uint64, error) {
	return c.store.Size(ctx, path, elemSize)
}

// ReadBlock collectively reads count elements of elemSize bytes starting
// at offset from path.
func (c *Container) ReadBlock(ctx context.Context, path string, elemSize int, offset, count uint64) (data []byte, err error) {
	if err = validateElemSize(elemSize); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, "read_block", err)
	}

	ctx, end := telemetry.CollectiveSpan(ctx, "blockio.read_block", -1, telemetry.BlockIOAttrs(path, int(count)*elemSize)...)
	defer func() { end(err) }()

	if err = c.group.Barrier(ctx); err != nil {
		return nil, err
	}
	data, err = c.store.ReadAt(ctx, path, elemSize, offset, count)
	if err != nil {
		return nil, apperr.Wrapf(apperr.CodeIoError, err, "read_block %s[%d:%d]", path, offset, offset+count)
	}
	return data, nil
}

// WriteBlock collectively writes data (len(data) == count*elemSize)
// starting at offset into path, declaring globalSize as the dataset's
// total element count after this write completes (used by backends that
// must pre-size storage; the in-process stores in this package infer it
// from the write itself but accept the parameter for interface parity
// with the real primitive's globalSize argument).
func (c *Container) WriteBlock(ctx context.Context, path string, elemSize int, globalSize, offset uint64, data []byte) (err error) {
	ctx, end := telemetry.CollectiveSpan(ctx, "blockio.write_block", -1, telemetry.BlockIOAttrs(path, len(data))...)
	defer func() { end(err) }()

	if err = validateElemSize(elemSize); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, "write_block", err)
	}
	if len(data)%elemSize != 0 {
		return apperr.Newf(apperr.CodeInvalidArgument, "write_block %s: data length %d not a multiple of elemSize %d", path, len(data), elemSize)
	}
	_ = globalSize

	if err = c.group.Barrier(ctx); err != nil {
		return err
	}
	if err = c.store.WriteAt(ctx, path, elemSize, offset, data); err != nil {
		return apperr.Wrapf(apperr.CodeIoError, err, "write_block %s at %d", path, offset)
	}
	return nil
}

// Close releases the underlying store.
func (c *Container) Close() error {
	return c.store.Close()
}

func validateElemSize(elemSize int) error {
	if elemSize <= 0 {
		return fmt.Errorf("blockio: elemSize must be positive, got %d", elemSize)
	}
	return nil
}
