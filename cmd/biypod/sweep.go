package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Enforce every downgrade whose grace period has ended, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.enforcer.EnforceDue(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d unpublished=%d deferred=%d failed=%d\n",
				res.Processed, res.Unpublished, res.Deferred, res.Failed)
			return err
		},
	}
}
