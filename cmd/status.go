package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress and the last assignment run",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Pipeline Status\n")
		fmt.Printf("===============\n")
		fmt.Printf("Basins:          %d\n", s.BasinCount())
		fmt.Printf("Gauges:          %d\n", s.GaugeCount())
		fmt.Printf("Cluster labels:  %d\n", s.LabelCount())

		meta, ok := s.ReadRunMeta()
		if !ok {
			fmt.Printf("\nNo assignment run stored yet.\n")
			return nil
		}
		fmt.Printf("\nLast run %s at %s (max %d hops)\n", meta.RunID, meta.AssignedAt, meta.MaxHops)

		byReason := s.CountByReason()
		total := s.AssignmentCount()
		fmt.Printf("\nAssignments by reason\n")
		fmt.Printf("---------------------\n")
		for _, r := range model.Reasons {
			n := byReason[string(r)]
			pct := 0.0
			if total > 0 {
				pct = 100 * float64(n) / float64(total)
			}
			fmt.Printf("  %-24s %8d  %5.1f%%\n", r, n, pct)
		}
		fmt.Printf("  %-24s %8d\n", "total", total)
		fmt.Printf("\nMissing evidence:     %d\n", meta.MissingEvidence)
		fmt.Printf("Malformed components: %d\n", meta.Malformed)

		stages := s.PropagationCountByStage()
		if len(stages) > 0 {
			fmt.Printf("\nPropagation tables\n")
			fmt.Printf("------------------\n")
			var names []string
			for name := range stages {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-12s %8d\n", name, stages[name])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
