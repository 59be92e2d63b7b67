package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soltesz-lab/neuroh5/internal/wiring"
	"github.com/soltesz-lab/neuroh5/pkg/neuroh5"
	"github.com/soltesz-lab/neuroh5/pkg/projection"
)

var (
	graphSrcPop  string
	graphDstPop  string
	graphFixture string
)

var writeGraphCmd = &cobra.Command{
	Use:   "write-graph",
	Short: "Write one projection's edges into the container from a fixture",
	RunE:  runWriteGraph,
}

var readGraphCmd = &cobra.Command{
	Use:   "read-graph",
	Short: "Read one projection's edges back out as JSON",
	RunE:  runReadGraph,
}

func init() {
	rootCmd.AddCommand(writeGraphCmd, readGraphCmd)

	for _, c := range []*cobra.Command{writeGraphCmd, readGraphCmd} {
		c.Flags().StringVar(&graphSrcPop, "src", "", "Source population label (required)")
		c.Flags().StringVar(&graphDstPop, "dst", "", "Destination population label (required)")
		c.MarkFlagRequired("src")
		c.MarkFlagRequired("dst")
	}
	writeGraphCmd.Flags().StringVar(&graphFixture, "fixture", "", "Path to an edge fixture JSON file (required)")
	writeGraphCmd.MarkFlagRequired("fixture")
}

func runWriteGraph(cmd *cobra.Command, args []string) error {
	timer := newPhaseTimer("write-graph")
	defer timer.PrintSummary()

	loadPt := timer.Start("read-fixture")
	edges, err := readEdgeFixture(graphFixture)
	loadPt.Stop()
	if err != nil {
		return err
	}

	openPt := timer.Start("open-session")
	session, err := wiring.OpenSession(cfg, 1)
	openPt.Stop()
	if err != nil {
		return err
	}
	defer session.Container.Close()

	ctx := context.Background()
	regPt := timer.Start("load-registry")
	reg, err := loadRegistry(ctx, session)
	regPt.Stop()
	if err != nil {
		return err
	}
	srcPop, err := reg.PopByLabel(graphSrcPop)
	if err != nil {
		return err
	}
	dstPop, err := reg.PopByLabel(graphDstPop)
	if err != nil {
		return err
	}

	name := neuroh5.ProjectionName{SrcPop: graphSrcPop, DstPop: graphDstPop}
	local := projection.BuildLocalArrays(0, 0, edges)
	neg := map[neuroh5.ProjectionName]projection.Negotiators{name: projection.NewNegotiators(session.Group)}

	writePt := timer.Start("collective-write")
	err = neuroh5.WriteGraph(ctx, session,
		neg, 0, true,
		map[neuroh5.ProjectionName]uint16{name: srcPop},
		map[neuroh5.ProjectionName]uint16{name: dstPop},
		map[neuroh5.ProjectionName]projection.LocalArrays{name: local},
	)
	writePt.Stop()
	if err != nil {
		return err
	}

	logger.Info("wrote projection %s -> %s (%d destinations)", graphSrcPop, graphDstPop, len(edges))
	return nil
}

func runReadGraph(cmd *cobra.Command, args []string) error {
	timer := newPhaseTimer("read-graph")
	defer timer.PrintSummary()

	openPt := timer.Start("open-session")
	session, err := wiring.OpenSession(cfg, 1)
	openPt.Stop()
	if err != nil {
		return err
	}
	defer session.Container.Close()

	ctx := context.Background()
	regPt := timer.Start("load-registry")
	reg, err := loadRegistry(ctx, session)
	regPt.Stop()
	if err != nil {
		return err
	}

	name := neuroh5.ProjectionName{SrcPop: graphSrcPop, DstPop: graphDstPop}
	readPt := timer.Start("collective-read")
	results, err := neuroh5.ReadGraph(ctx, session, 0, 1, reg, []neuroh5.ProjectionName{name})
	readPt.Stop()
	if err != nil {
		return err
	}

	out := make(map[string][]uint32, len(results[name].Edges))
	for dst, srcs := range results[name].Edges {
		out[fmt.Sprint(dst)] = srcs
	}
	data, err := json.MarshalIndent(map[string]any{"edges": out}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
