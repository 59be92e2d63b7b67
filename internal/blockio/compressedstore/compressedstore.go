// Package compressedstore wraps any blockio.BlockStore with transparent
// per-write chunk compression. A dataset's writes stay addressable by
// element offset exactly as blockio.BlockStore promises; the compressed
// bytes a WriteAt call produces are appended to the backing store's own
// byte space (elemSize 1) and recorded in an in-memory chunk index keyed
// by element range, so ReadAt can find and decompress only the chunks a
// request overlaps.
package compressedstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/soltesz-lab/neuroh5/internal/blockio"
	"github.com/soltesz-lab/neuroh5/pkg/compression"
)

type chunk struct {
	start, count  uint64 // element range [start, start+count) in the logical dataset
	backingOffset uint64 // byte offset into the backing store's raw byte space
	compLen       int    // compressed length in bytes
}

// Store decorates a backing blockio.BlockStore with zstd/gzip compression.
// The chunk index lives in memory only, matching the rest of this
// package's in-process emulation of a distributed job: every rank sees
// the same Store instance.
type Store struct {
	backing blockio.BlockStore
	comp    compression.Compressor

	mu     sync.Mutex
	chunks map[string][]chunk
	size   map[string]uint64
	tail   map[string]uint64
}

// New wraps backing with comp. Pass compression.Default() (or Fast/Best)
// for comp; a compression.NoOpCompressor disables compression while
// keeping the chunk-index bookkeeping, useful for tests that want the
// decorator's code path without a third-party codec in play.
func New(backing blockio.BlockStore, comp compression.Compressor) *Store {
	return &Store{
		backing: backing,
		comp:    comp,
		chunks:  make(map[string][]chunk),
		size:    make(map[string]uint64),
		tail:    make(map[string]uint64),
	}
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	_, ok := s.size[path]
	s.mu.Unlock()
	if ok {
		return true, nil
	}
	return s.backing.Exists(ctx, path)
}

func (s *Store) Size(ctx context.Context, path string, elemSize int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size[path], nil
}

func (s *Store) WriteAt(ctx context.Context, path string, elemSize int, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	compressed, err := s.comp.Compress(data)
	if err != nil {
		return fmt.Errorf("compressedstore: compress %s: %w", path, err)
	}
	count := uint64(len(data) / elemSize)

	s.mu.Lock()
	backingOffset := s.tail[path]
	s.mu.Unlock()

	if err := s.backing.WriteAt(ctx, path, 1, backingOffset, compressed); err != nil {
		return err
	}

	s.mu.Lock()
	s.chunks[path] = append(s.chunks[path], chunk{
		start: offset, count: count,
		backingOffset: backingOffset, compLen: len(compressed),
	})
	s.tail[path] = backingOffset + uint64(len(compressed))
	if end := offset + count; end > s.size[path] {
		s.size[path] = end
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) ReadAt(ctx context.Context, path string, elemSize int, offset, count uint64) ([]byte, error) {
	s.mu.Lock()
	chunks := append([]chunk(nil), s.chunks[path]...)
	size := s.size[path]
	s.mu.Unlock()

	end := offset + count
	if end > size {
		return nil, fmt.Errorf("compressedstore: read %s[%d:%d] past end %d", path, offset, end, size)
	}
	out := make([]byte, count*uint64(elemSize))
	filled := false
	for _, c := range chunks {
		cEnd := c.start + c.count
		if cEnd <= offset || c.start >= end {
			continue
		}
		raw, err := s.backing.ReadAt(ctx, path, 1, c.backingOffset, uint64(c.compLen))
		if err != nil {
			return nil, err
		}
		data, err := s.comp.Decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("compressedstore: decompress %s: %w", path, err)
		}

		overlapStart := c.start
		if offset > overlapStart {
			overlapStart = offset
		}
		overlapEnd := cEnd
		if end < overlapEnd {
			overlapEnd = end
		}
		srcOff := (overlapStart - c.start) * uint64(elemSize)
		dstOff := (overlapStart - offset) * uint64(elemSize)
		n := (overlapEnd - overlapStart) * uint64(elemSize)
		copy(out[dstOff:dstOff+n], data[srcOff:srcOff+n])
		filled = true
	}
	if !filled && count > 0 {
		return nil, fmt.Errorf("compressedstore: %s[%d:%d] not found", path, offset, end)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	delete(s.chunks, path)
	delete(s.size, path)
	delete(s.tail, path)
	s.mu.Unlock()
	return s.backing.Delete(ctx, path)
}

func (s *Store) Close() error {
	compression.Close(s.comp)
	return s.backing.Close()
}
