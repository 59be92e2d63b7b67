package wiring

import (
	"context"
	"testing"

	"github.com/soltesz-lab/neuroh5/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSession_LocalStore(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "local", LocalPath: t.TempDir()}}
	session, err := OpenSession(cfg, 1)
	require.NoError(t, err)
	defer session.Container.Close()

	require.NoError(t, session.Container.WriteBlock(context.Background(), "/x", 4, 1, 0, []byte{1, 2, 3, 4}))
	ok, err := session.Container.Exists(context.Background(), "/x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenSession_CompressedLocalStore(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{
		Type: "local", LocalPath: t.TempDir(),
		Compress: true, CompressionType: "zstd", CompressionLevel: "fastest",
	}}
	session, err := OpenSession(cfg, 1)
	require.NoError(t, err)
	defer session.Container.Close()

	ctx := context.Background()
	data := []byte{9, 9, 9, 9, 9, 9, 9, 9}
	require.NoError(t, session.Container.WriteBlock(ctx, "/compressed", 4, 2, 0, data))

	got, err := session.Container.ReadBlock(ctx, "/compressed", 4, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestOpenSession_UnknownStorageType(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Type: "bogus"}}
	_, err := OpenSession(cfg, 1)
	assert.Error(t, err)
}
