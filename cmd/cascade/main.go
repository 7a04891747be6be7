// Package main provides the cascade command line tool for inspecting and
// reducing TOF and PAD detector frames.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cascade/internal/logging"
	"cascade/pkg/config"
)

const defaultConfigPath = "cascade.yaml"

var (
	configPath string
	roiPath    string

	cfg *config.Config
	log *zap.Logger
)

func main() {
	rootCmd := newRootCmd()
	err := rootCmd.Execute()
	logging.Sync(log)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "cascade",
		Short:             "Inspect and reduce CASCADE detector frames",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "configuration file")
	rootCmd.PersistentFlags().StringVar(&roiPath, "roi", "", "region of interest file (overrides processing.roiFile)")

	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newOverviewCmd())
	rootCmd.AddCommand(newPhaseCmd())
	rootCmd.AddCommand(newContrastCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newBeamCmd())
	rootCmd.AddCommand(newRadialCmd())
	rootCmd.AddCommand(newTcsCmd())
	rootCmd.AddCommand(newCorrectCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// setup loads the configuration and builds the logger before any command runs
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if roiPath == "" {
		roiPath = cfg.Processing.RoiFile
	}

	log, err = logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	log.Debug("Configuration loaded", zap.String("path", configPath), zap.String("command", cmd.Name()))
	return nil
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", path)
			return nil
		},
	})
	return configCmd
}
