package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"diveops/internal/operations"
	"diveops/pkg/contracts/domain"
)

type deriveOptions struct {
	identity    bool
	site        bool
	team        bool
	responsible bool
	firstDoc    bool
	secondDoc   bool
	asJSON      bool
}

type deriveResult struct {
	Steps          []operations.StepState `json:"steps"`
	ResumeAt       int                    `json:"resume_at"`
	Progress       int                    `json:"progress"`
	CanFinish      bool                   `json:"can_finish"`
	CompletedCount int                    `json:"completed_count"`
}

func newDeriveCmd() *cobra.Command {
	opts := &deriveOptions{}
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Show the step statuses derived from a record and document state",
		Long: `Derive step statuses without a server or store.

Without --identity the record does not exist yet and only the first step is
active. Field flags mark the corresponding record fields as filled.`,
		Example: `  diveops derive --identity --site --team --responsible --first-doc`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDerive(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.identity, "identity", false, "the operation record exists")
	f.BoolVar(&opts.site, "site", false, "a dive site is selected")
	f.BoolVar(&opts.team, "team", false, "a dive team is assigned")
	f.BoolVar(&opts.responsible, "responsible", false, "a responsible supervisor is assigned")
	f.BoolVar(&opts.firstDoc, "first-doc", false, "the risk assessment is signed")
	f.BoolVar(&opts.secondDoc, "second-doc", false, "the dive plan is signed")
	f.BoolVar(&opts.asJSON, "json", false, "output as JSON")
	return cmd
}

func (o *deriveOptions) record() *domain.OperationRecord {
	if !o.identity {
		return nil
	}
	rec := &domain.OperationRecord{ID: "cli"}
	if o.site {
		rec.SiteID = "site"
	}
	if o.team {
		rec.TeamID = "team"
	}
	if o.responsible {
		rec.ResponsiblePartyID = "responsible"
	}
	return rec
}

func runDerive(cmd *cobra.Command, opts *deriveOptions) error {
	states := operations.DeriveStatuses(opts.record(), domain.DocumentReadiness{
		FirstDocumentReady:  opts.firstDoc,
		SecondDocumentReady: opts.secondDoc,
	}, opts.identity)

	result := deriveResult{
		Steps:          states,
		ResumeAt:       operations.FirstIncompleteIndex(states),
		Progress:       operations.Progress(states),
		CanFinish:      operations.CanFinish(states),
		CompletedCount: operations.CompletedCount(states),
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for i, s := range states {
		marker := "  "
		if i == result.ResumeAt {
			marker = "> "
		}
		fmt.Fprintf(out, "%s%-16s %s\n", marker, s.ID, statusStyle(s.Status).Render(string(s.Status)))
	}
	fmt.Fprintf(out, "\nprogress %d%%, %d/%d completed, can finish: %t\n",
		result.Progress, result.CompletedCount, len(states), result.CanFinish)
	return nil
}

func statusStyle(status operations.StepStatus) lipgloss.Style {
	switch status {
	case operations.StepStatusCompleted:
		return completedStyle
	case operations.StepStatusActive:
		return activeStyle
	default:
		return pendingStyle
	}
}
