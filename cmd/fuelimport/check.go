package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCheckCmd validates the job configuration and exits.
func newCheckCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the job configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := g.loadValidJob(cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", describeConfig(g.cfgPath))
			return nil
		},
	}
}
