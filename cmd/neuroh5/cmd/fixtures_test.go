package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soltesz-lab/neuroh5/pkg/population"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadPopulationFixture_Declarations(t *testing.T) {
	path := writeFixture(t, `{
		"populations": [
			{"label": "GC", "start": 0, "count": 4},
			{"label": "MC", "start": 4, "count": 2}
		],
		"pairs": [{"src": "GC", "dst": "MC"}]
	}`)

	fx, err := readPopulationFixture(path)
	require.NoError(t, err)
	assert.Equal(t, []population.Declaration{
		{Label: "GC", Range: population.Range{Start: 0, Count: 4}},
		{Label: "MC", Range: population.Range{Start: 4, Count: 2}},
	}, fx.declarations())
	require.Len(t, fx.Pairs, 1)
	assert.Equal(t, "GC", fx.Pairs[0].Src)
}

func TestReadEdgeFixture_ParsesStringKeys(t *testing.T) {
	path := writeFixture(t, `{"edges": {"1": [0], "2": [0], "3": [2]}}`)

	edges, err := readEdgeFixture(path)
	require.NoError(t, err)
	assert.Equal(t, map[uint32][]uint32{1: {0}, 2: {0}, 3: {2}}, edges)
}

func TestReadAttrFixture_ParsesStringKeys(t *testing.T) {
	path := writeFixture(t, `{"values": {"0": [1.5], "2": [2.5, 3.5]}}`)

	vals, err := readAttrFixture(path)
	require.NoError(t, err)
	assert.Equal(t, map[uint32][]float64{0: {1.5}, 2: {2.5, 3.5}}, vals)
}
