// Package wiring assembles a blockio.Container + collective.Session from
// pkg/config's StorageConfig, the one place that decides which backend
// and optional compression layer a CLI invocation runs against.
package wiring

import (
	"fmt"

	"github.com/soltesz-lab/neuroh5/internal/blockio"
	"github.com/soltesz-lab/neuroh5/internal/blockio/compressedstore"
	"github.com/soltesz-lab/neuroh5/internal/blockio/cosstore"
	"github.com/soltesz-lab/neuroh5/internal/blockio/localstore"
	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/soltesz-lab/neuroh5/pkg/compression"
	"github.com/soltesz-lab/neuroh5/pkg/config"
)

// OpenSession builds the BlockStore named by cfg.Storage, wraps it in
// compressedstore when cfg.Storage.Compress is set, and returns a
// Session over size ranks, all sharing the one process-local Group a
// single OS process emulates an SPMD job with.
func OpenSession(cfg *config.Config, size int) (*collective.Session, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Compress {
		comp, err := compressorFor(cfg.Storage.CompressionType, cfg.Storage.CompressionLevel)
		if err != nil {
			return nil, err
		}
		store = compressedstore.New(store, comp)
	}

	group := collective.NewGroup(size)
	container := blockio.NewContainer(store, group)
	return collective.NewSession(group, container), nil
}

func openStore(cfg *config.Config) (blockio.BlockStore, error) {
	switch cfg.Storage.Type {
	case "", "local":
		return localstore.New(cfg.Storage.LocalPath)
	case "cos":
		return cosstore.New(&cosstore.Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			SecretID:  cfg.Storage.SecretID,
			SecretKey: cfg.Storage.SecretKey,
			Domain:    cfg.Storage.Domain,
			Scheme:    cfg.Storage.Scheme,
		})
	default:
		return nil, fmt.Errorf("wiring: unknown storage type %q", cfg.Storage.Type)
	}
}

func compressorFor(typeName, levelName string) (compression.Compressor, error) {
	var t compression.Type
	switch typeName {
	case "", "zstd":
		t = compression.TypeZstd
	case "gzip":
		t = compression.TypeGzip
	case "none":
		t = compression.TypeNone
	default:
		return nil, fmt.Errorf("wiring: unknown compression type %q", typeName)
	}

	var level compression.Level
	switch levelName {
	case "", "default":
		level = compression.LevelDefault
	case "fastest":
		level = compression.LevelFastest
	case "best":
		level = compression.LevelBest
	default:
		return nil, fmt.Errorf("wiring: unknown compression level %q", levelName)
	}
	return compression.New(t, level)
}
