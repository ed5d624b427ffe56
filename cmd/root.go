package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rileyhales/hydrologic-bias-correction/internal/config"
	"github.com/rileyhales/hydrologic-bias-correction/internal/logging"
	"github.com/rileyhales/hydrologic-bias-correction/internal/store"
	"github.com/rileyhales/hydrologic-bias-correction/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

var (
	dataDir    string
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
	shutdown   telemetry.Shutdown
)

var rootCmd = &cobra.Command{
	Use:           "basinmatch",
	Short:         "Assign ungauged river basins to the gauges whose bias correction they should use",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if !cmd.Flags().Changed("data-dir") {
			dataDir = cfg.Data.Dir
		}

		log, err = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format, verbose)
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}

		shutdown, err = telemetry.Init(cmd.Context(), telemetry.Options{
			Endpoint:    cfg.Telemetry.Endpoint,
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     Version,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return fmt.Errorf("initialising telemetry: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data", "Directory holding the basin database and exports")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func openStore() (*store.Store, error) {
	s, err := store.New(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store in %s: %w", dataDir, err)
	}
	return s, nil
}
