package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the routing table for consistency",
	Long: `Reports tokens a step can emit without a route, routes to unknown steps,
steps unreachable from ingest, and steps that cannot reach the end of a turn.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		problems := rt.Engine.Validate()
		for _, p := range problems {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", p)
		}
		if len(problems) > 0 {
			return fmt.Errorf("routing table has %d problem(s)", len(problems))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Routing table is valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
