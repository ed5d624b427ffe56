package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
	"github.com/rileyhales/hydrologic-bias-correction/internal/orchestrator"
	"github.com/rileyhales/hydrologic-bias-correction/internal/resolver"
	"github.com/rileyhales/hydrologic-bias-correction/internal/store"
)

var (
	assignMaxHops int
	assignWorkers int
	assignDryRun  bool
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign every basin to a gauge and store the assignment table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("max-hops") {
			assignMaxHops = cfg.Assign.MaxHops
		}
		if !cmd.Flags().Changed("workers") {
			assignWorkers = cfg.Assign.Workers
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		in, err := readInputs(s)
		if err != nil {
			return err
		}
		if len(in.Basins) == 0 {
			return errors.New("no basins stored; run ingest first")
		}

		spatial, err := resolver.Spatial(cfg.Assign.SpatialMetric)
		if err != nil {
			return err
		}
		o, err := orchestrator.New(orchestrator.Options{
			MaxHops:  assignMaxHops,
			Workers:  assignWorkers,
			Spatial:  spatial,
			Physical: resolver.Physical(cfg.Assign.PhysicalWeight),
		}, log)
		if err != nil {
			return err
		}

		fmt.Printf("Assigning %d basins (%d gauges, %d labelled, max %d hops)...\n",
			len(in.Basins), len(in.Gauges), len(in.Labels), assignMaxHops)
		start := time.Now()
		res, err := o.Run(cmd.Context(), in)
		if err != nil {
			return fmt.Errorf("assignment failed: %w", err)
		}

		printSummary(res.Summary)
		fmt.Printf("Finished in %s (run %s)\n", time.Since(start).Round(time.Millisecond), res.RunID)

		if assignDryRun {
			fmt.Println("Dry run: nothing stored.")
			return nil
		}

		meta := model.RunMeta{
			RunID:           res.RunID.String(),
			AssignedAt:      res.StartedAt.Format(time.RFC3339),
			MaxHops:         res.MaxHops,
			MissingEvidence: res.Summary.MissingEvidence,
			Malformed:       res.Summary.Malformed,
		}
		prop := store.Propagation{Downstream: res.Downstream, Upstream: res.Upstream, Resolved: res.Resolved}
		if err := s.WriteRun(meta, res.Records, prop); err != nil {
			return fmt.Errorf("saving assignments: %w", err)
		}
		fmt.Printf("Stored %d assignments.\n", len(res.Records))
		return nil
	},
}

func readInputs(s *store.Store) (orchestrator.Inputs, error) {
	basins, err := s.ReadBasins()
	if err != nil {
		return orchestrator.Inputs{}, fmt.Errorf("reading basins: %w", err)
	}
	gauges, err := s.ReadGauges()
	if err != nil {
		return orchestrator.Inputs{}, fmt.Errorf("reading gauges: %w", err)
	}
	labels, err := s.ReadLabels()
	if err != nil {
		return orchestrator.Inputs{}, fmt.Errorf("reading cluster labels: %w", err)
	}
	return orchestrator.Inputs{Basins: basins, Gauges: gauges, Labels: labels}, nil
}

func printSummary(sum model.Summary) {
	fmt.Printf("\nAssignments by reason\n")
	fmt.Printf("---------------------\n")
	for _, r := range model.Reasons {
		fmt.Printf("  %-24s %8d\n", r, sum.ByReason[r])
	}
	fmt.Printf("  %-24s %8d\n", "total", sum.Total)
	if sum.MissingEvidence > 0 {
		fmt.Printf("\n%d basins had no evidence to resolve them.\n", sum.MissingEvidence)
	}
	if sum.Malformed > 0 {
		fmt.Printf("%d malformed network components were quarantined.\n", sum.Malformed)
	}
}

func init() {
	assignCmd.Flags().IntVar(&assignMaxHops, "max-hops", 5, "Maximum propagation distance in network hops")
	assignCmd.Flags().IntVar(&assignWorkers, "workers", 4, "Concurrent workers per stage")
	assignCmd.Flags().BoolVar(&assignDryRun, "dry-run", false, "Resolve and report without storing")
	rootCmd.AddCommand(assignCmd)
}
