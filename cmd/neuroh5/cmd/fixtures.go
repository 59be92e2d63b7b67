package cmd

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/soltesz-lab/neuroh5/pkg/population"
)

// populationFixture is the on-disk JSON shape init-populations reads:
// one population per Populations entry plus the legal source->destination
// pairs among them, named by label.
type populationFixture struct {
	Populations []struct {
		Label string `json:"label"`
		Start uint64 `json:"start"`
		Count uint32 `json:"count"`
	} `json:"populations"`
	Pairs []struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	} `json:"pairs"`
}

func readPopulationFixture(path string) (populationFixture, error) {
	var fx populationFixture
	data, err := os.ReadFile(path)
	if err != nil {
		return fx, err
	}
	if err := json.Unmarshal(data, &fx); err != nil {
		return fx, err
	}
	return fx, nil
}

func (fx populationFixture) declarations() []population.Declaration {
	decls := make([]population.Declaration, len(fx.Populations))
	for i, p := range fx.Populations {
		decls[i] = population.Declaration{Label: p.Label, Range: population.Range{Start: p.Start, Count: p.Count}}
	}
	return decls
}

// edgeFixture is the on-disk JSON shape write-graph reads and
// read-graph/ scatter-read-graph print: destination cell id (as a JSON
// string key, since JSON object keys are always strings) to its source
// cell ids.
type edgeFixture struct {
	Edges map[string][]uint32 `json:"edges"`
}

func readEdgeFixture(path string) (map[uint32][]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx edgeFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, err
	}
	out := make(map[uint32][]uint32, len(fx.Edges))
	for k, v := range fx.Edges {
		dst, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, err
		}
		out[uint32(dst)] = v
	}
	return out, nil
}

// attrFixture is the on-disk JSON shape append-attr reads: per-cell
// float attribute values, one vector per cell id.
type attrFixture struct {
	Values map[string][]float64 `json:"values"`
}

func readAttrFixture(path string) (map[uint32][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx attrFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, err
	}
	out := make(map[uint32][]float64, len(fx.Values))
	for k, v := range fx.Values {
		cell, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, err
		}
		out[uint32(cell)] = v
	}
	return out, nil
}
