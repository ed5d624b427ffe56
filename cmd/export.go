package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rileyhales/hydrologic-bias-correction/internal/export"
	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write assignment and propagation tables as gzip CSV and GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportDir == "" {
			exportDir = filepath.Join(dataDir, "export")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if _, ok := s.ReadRunMeta(); !ok {
			return errors.New("no assignment run stored; run assign first")
		}

		basins, err := s.ReadBasins()
		if err != nil {
			return fmt.Errorf("reading basins: %w", err)
		}
		records, err := s.ReadAssignments("")
		if err != nil {
			return fmt.Errorf("reading assignments: %w", err)
		}
		prop := make(map[string][]model.Candidate, len(model.Stages))
		for _, stage := range model.Stages {
			if prop[stage], err = s.ReadPropagation(stage); err != nil {
				return fmt.Errorf("reading %s propagation: %w", stage, err)
			}
		}

		written, err := export.Dir(exportDir, export.Tables{Basins: basins, Records: records, Propagation: prop})
		for _, path := range written {
			log.WithField("path", path).Debug("wrote export")
		}
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d files to %s\n", len(written), exportDir)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "out", "", "Output directory (default <data-dir>/export)")
	rootCmd.AddCommand(exportCmd)
}
