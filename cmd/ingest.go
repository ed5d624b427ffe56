package cmd

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rileyhales/hydrologic-bias-correction/internal/gis"
	"github.com/rileyhales/hydrologic-bias-correction/internal/store"
)

var (
	ingestBasins string
	ingestGauges string
	ingestLabels string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load drainage, gauge and cluster label tables (CSV, Parquet or GeoJSON)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestBasins == "" && ingestGauges == "" && ingestLabels == "" {
			return errors.New("nothing to ingest: pass --basins, --gauges and/or --labels")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		cols := store.Columns(cfg.Columns)
		loadBasins, loadGauges := s.ImportBasins, s.ImportGauges
		if gis.IsGeoJSON(ingestBasins) {
			loadBasins = func(path string, c store.Columns) (int, error) { return gis.ImportBasins(s, path, c) }
		}
		if gis.IsGeoJSON(ingestGauges) {
			loadGauges = func(path string, c store.Columns) (int, error) { return gis.ImportGauges(s, path, c) }
		}
		steps := []struct {
			name string
			path string
			load func(string, store.Columns) (int, error)
		}{
			{"basins", ingestBasins, loadBasins},
			{"gauges", ingestGauges, loadGauges},
			{"cluster labels", ingestLabels, s.ImportLabels},
		}
		for _, step := range steps {
			if step.path == "" {
				continue
			}
			log.WithFields(logrus.Fields{"table": step.name, "path": step.path}).Debug("ingesting")
			n, err := step.load(step.path, cols)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", step.name, err)
			}
			fmt.Printf("Loaded %d %s from %s\n", n, step.name, step.path)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestBasins, "basins", "", "Drainage table or GeoJSON layer (one row per basin)")
	ingestCmd.Flags().StringVar(&ingestGauges, "gauges", "", "Gauge table or GeoJSON layer (gauge id and basin id)")
	ingestCmd.Flags().StringVar(&ingestLabels, "labels", "", "Cluster label table (basin id and label)")
	rootCmd.AddCommand(ingestCmd)
}
