package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the conversation step graph",
	Long:  `Outputs a Mermaid diagram (graph TD) of every step and the tokens that route between them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		fmt.Fprint(cmd.OutOrStdout(), rt.Engine.Graph())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
