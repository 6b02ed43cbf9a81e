// Package api contains the request contracts of the wizard HTTP API.
package api

// Navigation actions accepted by NavigateRequest
const (
	ActionGoTo     = "goto"
	ActionNext     = "next"
	ActionPrevious = "previous"
)

// CreateSessionRequest opens a wizard session. An empty RecordID starts a
// new operation; otherwise the session resumes that record.
type CreateSessionRequest struct {
	RecordID string `json:"record_id,omitempty" validate:"omitempty,max=64"`
}

// NavigateRequest moves a session between steps. Index is required for goto.
type NavigateRequest struct {
	Action string `json:"action" validate:"required,oneof=goto next previous"`
	Index  *int   `json:"index,omitempty" validate:"omitempty,min=0"`
}

// CompleteStepRequest submits the data collected by one step
type CompleteStepRequest struct {
	Data map[string]any `json:"data" validate:"required"`
}

// NavigateResponse reports whether a navigation request moved the session
type NavigateResponse struct {
	Moved    bool `json:"moved"`
	Snapshot any  `json:"snapshot"`
}

// ListResponse wraps a collection
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}
