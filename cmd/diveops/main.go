// Command diveops runs the dive operations console server and offers a few
// offline helpers for inspecting the operation wizard.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"diveops/pkg/contracts"
)

var (
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	boldStyle      = lipgloss.NewStyle().Bold(true)
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "diveops",
		Short: "Dive operations console server",
		Long: `diveops serves the operation planning wizard used by dive supervisors.

Examples:
  diveops serve                       # serve with config.yaml / DIVEOPS_* env
  diveops serve --port 9090           # override the listen port
  diveops steps                       # print the wizard steps
  diveops derive --identity --site    # show derived step statuses`,
		Version:       contracts.GetFullVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newStepsCmd(), newDeriveCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
