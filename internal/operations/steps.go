package operations

import "fmt"

// StepID identifies a wizard step
type StepID string

const (
	StepOperation      StepID = "operation"
	StepSite           StepID = "site"
	StepTeam           StepID = "team"
	StepFirstDocument  StepID = "first-document"
	StepSecondDocument StepID = "second-document"
	StepValidation     StepID = "validation"
)

// IsTerminal reports whether the step is the final validation gate
func (id StepID) IsTerminal() bool {
	return id == StepValidation
}

// StepDescriptor is the static definition of a wizard step
type StepDescriptor struct {
	ID          StepID `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// stepTable is ordered; each step depends on every required step before it.
var stepTable = [...]StepDescriptor{
	{
		ID:          StepOperation,
		Title:       "General Information",
		Description: "Name, objective, start date and planned depth of the operation",
		Required:    true,
	},
	{
		ID:          StepSite,
		Title:       "Work Site",
		Description: "Assign the work site where the dives take place",
		Required:    true,
	},
	{
		ID:          StepTeam,
		Title:       "Dive Team",
		Description: "Assign the dive team and the responsible dive supervisor",
		Required:    true,
	},
	{
		ID:          StepFirstDocument,
		Title:       "Risk Assessment",
		Description: "Signed hazard identification and risk assessment",
		Required:    true,
	},
	{
		ID:          StepSecondDocument,
		Title:       "Dive Safety Plan",
		Description: "Signed dive plan with emergency and decompression procedures",
		Required:    true,
	},
	{
		ID:          StepValidation,
		Title:       "Final Validation",
		Description: "Review every section before approving the operation",
		Required:    true,
	},
}

// Steps returns a copy of the ordered step table
func Steps() []StepDescriptor {
	out := make([]StepDescriptor, len(stepTable))
	copy(out, stepTable[:])
	return out
}

// StepCount returns the number of steps in the table
func StepCount() int {
	return len(stepTable)
}

// StepIndex returns the position of id in the step table, or -1
func StepIndex(id StepID) int {
	for i, d := range stepTable {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// ParseStepID validates a step id received from outside the process
func ParseStepID(s string) (StepID, error) {
	id := StepID(s)
	if StepIndex(id) < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, s)
	}
	return id, nil
}

// StepStatus represents the derived status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusError     StepStatus = "error"
)

// StepState is a step descriptor with its derived status. It is never persisted.
type StepState struct {
	StepDescriptor
	Status      StepStatus `json:"status"`
	CanNavigate bool       `json:"can_navigate"`
}
