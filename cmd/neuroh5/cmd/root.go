package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/soltesz-lab/neuroh5/pkg/config"
	"github.com/soltesz-lab/neuroh5/pkg/utils"
)

var (
	verbose    bool
	configPath string
	dataDir    string
	storageCompress bool

	logger utils.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "neuroh5",
	Short: "Read and write block-sparse connectivity graphs and cell attributes",
	Long: `neuroh5 is a CLI front end over the neuroh5 module's block-sparse
projection codec, parallel attribute engine, and scatter/gather
redistribution layer.

Every command opens one container (a local directory, or a COS bucket)
and runs against a single emulated rank, except append-attr, which runs
the number of emulated ranks set by run.num_ranks in the config.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			loaded.Storage.LocalPath = dataDir
		}
		if storageCompress {
			loaded.Storage.Compress = true
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults applied if omitted)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", "./neuroh5-data", "Local container directory (overrides storage.local_path)")
	rootCmd.PersistentFlags().BoolVar(&storageCompress, "compress", false, "Compress container datasets at rest (zstd)")

	rootCmd.Example = `  # Seed a fresh container's population registry from a fixture
  neuroh5 init-populations --dir ./data --fixture populations.json

  # Write one projection's edges into the container
  neuroh5 write-graph --dir ./data --src GC --dst MC --fixture edges.json

  # Read a projection back out as JSON
  neuroh5 read-graph --dir ./data --src GC --dst MC

  # Append a cell attribute from a fixture and read it back
  neuroh5 append-attr --dir ./data --pop GC --namespace Soma --attr v --kind float32 --fixture attr.json
  neuroh5 read-attr --dir ./data --pop GC --namespace Soma --attr v --kind float32

  # Same append, gathered from run.num_ranks compute ranks onto 2 I/O ranks
  neuroh5 append-attr --dir ./data --pop GC --namespace Soma --attr v --kind float32 --fixture attr.json --io-size 2`
}

// GetLogger returns the logger PersistentPreRunE configured.
func GetLogger() utils.Logger { return logger }
