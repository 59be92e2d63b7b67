package cmd

import (
	"context"

	"github.com/soltesz-lab/neuroh5/internal/collective"
	"github.com/soltesz-lab/neuroh5/pkg/population"
	"github.com/soltesz-lab/neuroh5/pkg/utils"
)

// loadRegistry is the single-rank registry load every subcommand needs
// before it can resolve a population label to its id range.
func loadRegistry(ctx context.Context, session *collective.Session) (*population.Registry, error) {
	group := session.Group
	return population.LoadForRank(ctx, session, 0,
		collective.NewBroadcaster(group), collective.NewBroadcaster(group), collective.NewBroadcaster(group))
}

// newPhaseTimer builds a Timer reporting through the root command's
// logger, used by each subcommand to break its own run down into the
// phases a caller watching --verbose output would want to see (registry
// load, collective exchange, block I/O).
func newPhaseTimer(name string) *utils.Timer {
	return utils.NewTimer(name, utils.WithLogger(logger))
}
