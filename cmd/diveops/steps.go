package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"diveops/internal/operations"
)

func newStepsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Print the operation wizard steps in order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps := operations.Steps()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(steps)
			}
			for i, s := range steps {
				required := ""
				if s.Required {
					required = pendingStyle.Render(" (required)")
				}
				fmt.Fprintf(out, "%d. %s %s%s\n   %s\n",
					i+1, boldStyle.Render(s.Title), pendingStyle.Render("["+string(s.ID)+"]"), required, s.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
