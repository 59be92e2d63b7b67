package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soltesz-lab/neuroh5/internal/wiring"
	"github.com/soltesz-lab/neuroh5/pkg/population"
)

var initFixturePath string

var initPopulationsCmd = &cobra.Command{
	Use:   "init-populations",
	Short: "Seed a fresh container's population registry from a fixture",
	RunE:  runInitPopulations,
}

func init() {
	rootCmd.AddCommand(initPopulationsCmd)
	initPopulationsCmd.Flags().StringVar(&initFixturePath, "fixture", "", "Path to a population fixture JSON file (required)")
	initPopulationsCmd.MarkFlagRequired("fixture")
}

func runInitPopulations(cmd *cobra.Command, args []string) error {
	timer := newPhaseTimer("init-populations")
	defer timer.PrintSummary()

	fx, err := readPopulationFixture(initFixturePath)
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

	var pairs []population.Pair
	labelIndex := make(map[string]uint16, len(fx.Populations))
	for i, p := range fx.Populations {
		labelIndex[p.Label] = uint16(i)
	}
	for _, p := range fx.Pairs {
		src, ok := labelIndex[p.Src]
		if !ok {
			return fmt.Errorf("init-populations: unknown source population %q", p.Src)
		}
		dst, ok := labelIndex[p.Dst]
		if !ok {
			return fmt.Errorf("init-populations: unknown destination population %q", p.Dst)
		}
		pairs = append(pairs, population.Pair{Src: src, Dst: dst})
	}

	ctx := context.Background()
	writePt := timer.Start("write-registry")
	err = population.WriteRegistry(ctx, session, fx.declarations(), pairs)
	writePt.Stop()
	if err != nil {
		return err
	}

	logger.Info("wrote %d populations, %d pairs to %s", len(fx.Populations), len(pairs), dataDir)
	return nil
}
