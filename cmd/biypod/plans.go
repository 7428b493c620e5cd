package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/plan"
)

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := plan.NewCatalog(cmd.Context(), plan.DefaultSource())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PLAN\tLIMIT\tPRICE\tTRIAL")
			for _, d := range catalog.Definitions() {
				trial := "-"
				if d.HasTrial() {
					trial = fmt.Sprintf("%d days", d.TrialDays)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.LimitLabel(), d.Pricing().Total, trial)
			}
			return w.Flush()
		},
	}
}
