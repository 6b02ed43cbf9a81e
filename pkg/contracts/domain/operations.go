package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OperationRecord is the scheduled dive operation configured through the wizard.
// The record store owns it; everything else holds read-only copies.
type OperationRecord struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name" validate:"omitempty,max=200"`
	Objective          string    `json:"objective" db:"objective"`
	StartDate          string    `json:"start_date" db:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Depth              *float64  `json:"depth,omitempty" db:"depth" validate:"omitempty,min=0,max=300"`
	Notes              string    `json:"notes" db:"notes"`
	SiteID             string    `json:"site_id" db:"site_id"`
	TeamID             string    `json:"team_id" db:"team_id"`
	ResponsiblePartyID string    `json:"responsible_party_id" db:"responsible_party_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Field keys accepted in partial writes
const (
	FieldID                 = "id"
	FieldName               = "name"
	FieldObjective          = "objective"
	FieldStartDate          = "start_date"
	FieldDepth              = "depth"
	FieldNotes              = "notes"
	FieldSiteID             = "site_id"
	FieldTeamID             = "team_id"
	FieldResponsiblePartyID = "responsible_party_id"
)

var writableFields = map[string]bool{
	FieldName:               true,
	FieldObjective:          true,
	FieldStartDate:          true,
	FieldDepth:              true,
	FieldNotes:              true,
	FieldSiteID:             true,
	FieldTeamID:             true,
	FieldResponsiblePartyID: true,
}

// WritableFields returns the sorted list of field keys a partial write may carry.
func WritableFields() []string {
	keys := make([]string, 0, len(writableFields))
	for k := range writableFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsWritableField reports whether key may appear in a partial write.
func IsWritableField(key string) bool {
	return writableFields[key]
}

// HasSite reports whether a work site has been assigned.
func (r *OperationRecord) HasSite() bool {
	return r != nil && r.SiteID != ""
}

// HasTeam reports whether a dive team has been assigned.
func (r *OperationRecord) HasTeam() bool {
	return r != nil && r.TeamID != ""
}

// HasResponsibleParty reports whether a dive supervisor has been assigned.
func (r *OperationRecord) HasResponsibleParty() bool {
	return r != nil && r.ResponsiblePartyID != ""
}

// Clone returns a deep copy of the record.
func (r *OperationRecord) Clone() *OperationRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Depth != nil {
		d := *r.Depth
		c.Depth = &d
	}
	return &c
}

// ValidateFields checks a partial write without applying it.
func ValidateFields(fields map[string]any) error {
	var scratch OperationRecord
	return scratch.Apply(fields)
}

// Apply writes a partial field map onto the record. A nil value clears the
// field. Unknown keys and values of the wrong type are rejected and leave the
// record untouched.
func (r *OperationRecord) Apply(fields map[string]any) error {
	next := *r
	for _, key := range sortedKeys(fields) {
		value := fields[key]
		if !writableFields[key] {
			return &FieldError{Field: key, Reason: "unknown field"}
		}
		if key == FieldDepth {
			depth, err := toDepth(value)
			if err != nil {
				return &FieldError{Field: key, Reason: err.Error()}
			}
			next.Depth = depth
			continue
		}
		s, err := toText(value)
		if err != nil {
			return &FieldError{Field: key, Reason: err.Error()}
		}
		switch key {
		case FieldName:
			next.Name = s
		case FieldObjective:
			next.Objective = s
		case FieldStartDate:
			if s != "" {
				if _, err := time.Parse("2006-01-02", s); err != nil {
					return &FieldError{Field: key, Reason: "expected YYYY-MM-DD"}
				}
			}
			next.StartDate = s
		case FieldNotes:
			next.Notes = s
		case FieldSiteID:
			next.SiteID = s
		case FieldTeamID:
			next.TeamID = s
		case FieldResponsiblePartyID:
			next.ResponsiblePartyID = s
		}
	}
	*r = next
	return nil
}

// FieldError reports a rejected key in a partial write.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func toText(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("expected string, got %T", value)
	}
}

// ToDepth converts the loosely typed depth values that arrive from JSON or
// form input. nil clears the depth.
func ToDepth(value any) (*float64, error) {
	return toDepth(value)
}

func toDepth(value any) (*float64, error) {
	var d float64
	switch v := value.(type) {
	case nil:
		return nil, nil
	case float64:
		d = v
	case float32:
		d = float64(v)
	case int:
		d = float64(v)
	case int32:
		d = float64(v)
	case int64:
		d = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		d = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v)
		}
		d = f
	default:
		return nil, fmt.Errorf("expected number, got %T", value)
	}
	if d < 0 {
		return nil, fmt.Errorf("depth cannot be negative")
	}
	return &d, nil
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DocumentKind identifies one of the two externally signed safety documents.
type DocumentKind string

const (
	// DocumentRiskAssessment gates the first document step
	DocumentRiskAssessment DocumentKind = "risk_assessment"
	// DocumentDivePlan gates the second document step
	DocumentDivePlan DocumentKind = "dive_plan"
)

// ParseDocumentKind validates a document kind received over the wire.
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch DocumentKind(s) {
	case DocumentRiskAssessment, DocumentDivePlan:
		return DocumentKind(s), nil
	default:
		return "", fmt.Errorf("unknown document kind %q", s)
	}
}

// DocumentReadiness is the signing state of both safety documents for a record.
type DocumentReadiness struct {
	FirstDocumentReady  bool `json:"first_document_ready"`
	SecondDocumentReady bool `json:"second_document_ready"`
}

// ReadinessFromSigned builds a readiness snapshot from the set of signed kinds.
func ReadinessFromSigned(signed map[DocumentKind]bool) DocumentReadiness {
	return DocumentReadiness{
		FirstDocumentReady:  signed[DocumentRiskAssessment],
		SecondDocumentReady: signed[DocumentDivePlan],
	}
}
