package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscrepancyType classifies a detected mismatch between invoiced amounts
// and recorded time
type DiscrepancyType string

const (
	DiscrepancyMissingTime    DiscrepancyType = "missing_time"
	DiscrepancyExtraTime      DiscrepancyType = "extra_time"
	DiscrepancyRateMismatch   DiscrepancyType = "rate_mismatch"
	DiscrepancyHoursMismatch  DiscrepancyType = "hours_mismatch"
	DiscrepancyAmountMismatch DiscrepancyType = "amount_mismatch"
	DiscrepancyDuplicate      DiscrepancyType = "duplicate"
	DiscrepancyOther          DiscrepancyType = "other"
)

// String returns the string representation of DiscrepancyType
func (t DiscrepancyType) String() string {
	return string(t)
}

// IsValid checks if the discrepancy type is valid
func (t DiscrepancyType) IsValid() bool {
	switch t {
	case DiscrepancyMissingTime, DiscrepancyExtraTime, DiscrepancyRateMismatch,
		DiscrepancyHoursMismatch, DiscrepancyAmountMismatch, DiscrepancyDuplicate,
		DiscrepancyOther:
		return true
	default:
		return false
	}
}

// DisplayName returns the human-readable name used in reports
func (t DiscrepancyType) DisplayName() string {
	switch t {
	case DiscrepancyMissingTime:
		return "Missing Time Entry"
	case DiscrepancyExtraTime:
		return "Unbilled Time Entry"
	case DiscrepancyRateMismatch:
		return "Rate Mismatch"
	case DiscrepancyHoursMismatch:
		return "Hours Mismatch"
	case DiscrepancyAmountMismatch:
		return "Amount Mismatch"
	case DiscrepancyDuplicate:
		return "Possible Duplicate"
	case DiscrepancyOther:
		return "Other"
	default:
		return string(t)
	}
}

// Severity represents how urgently a discrepancy needs review
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// String returns the string representation of Severity
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Rank returns a numeric rank for ordering, highest severity first
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ResolutionStatus represents the review state of a discrepancy
type ResolutionStatus string

const (
	ResolutionPending      ResolutionStatus = "pending"
	ResolutionAcknowledged ResolutionStatus = "acknowledged"
	ResolutionResolved     ResolutionStatus = "resolved"
	ResolutionIgnored      ResolutionStatus = "ignored"
)

// String returns the string representation of ResolutionStatus
func (s ResolutionStatus) String() string {
	return string(s)
}

// IsValid checks if the resolution status is valid
func (s ResolutionStatus) IsValid() bool {
	switch s {
	case ResolutionPending, ResolutionAcknowledged, ResolutionResolved, ResolutionIgnored:
		return true
	default:
		return false
	}
}

// DisplayName returns the human-readable name used in reports
func (s ResolutionStatus) DisplayName() string {
	switch s {
	case ResolutionPending:
		return "Pending Review"
	case ResolutionAcknowledged:
		return "Acknowledged"
	case ResolutionResolved:
		return "Resolved"
	case ResolutionIgnored:
		return "Ignored"
	default:
		return string(s)
	}
}

// Discrepancy represents one detected mismatch, attached to exactly one
// reconciliation session. Created only by the matching engine during a run;
// afterward only the resolution fields may change, via Resolve.
type Discrepancy struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      DiscrepancyType `json:"type"`
	Severity  Severity        `json:"severity"`

	Description string `json:"description"`

	// Expected is the independently recorded value, Actual the invoiced one.
	// Difference = Actual - Expected; positive means actual exceeds expected.
	Expected   decimal.Decimal `json:"expected_value"`
	Actual     decimal.Decimal `json:"actual_value"`
	Difference decimal.Decimal `json:"difference"`

	// Optional links to the originating records.
	LineItem  *LineItem  `json:"-"`
	TimeEntry *TimeEntry `json:"-"`

	// Resolution, owned by the external review workflow.
	Status         ResolutionStatus `json:"status"`
	ResolutionNote string           `json:"resolution_note,omitempty"`
	ResolvedBy     string           `json:"resolved_by,omitempty"`
	ResolvedAt     time.Time        `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewDiscrepancy creates a pending discrepancy with the given value triple.
// The difference follows the fixed sign convention actual - expected.
func NewDiscrepancy(dtype DiscrepancyType, severity Severity, description string,
	expected, actual decimal.Decimal) *Discrepancy {
	return &Discrepancy{
		ID:          uuid.New().String(),
		Type:        dtype,
		Severity:    severity,
		Description: description,
		Expected:    expected,
		Actual:      actual,
		Difference:  actual.Sub(expected),
		Status:      ResolutionPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// WithLineItem links the originating invoice line item
func (d *Discrepancy) WithLineItem(li *LineItem) *Discrepancy {
	d.LineItem = li
	return d
}

// WithTimeEntry links the originating time entry
func (d *Discrepancy) WithTimeEntry(te *TimeEntry) *Discrepancy {
	d.TimeEntry = te
	return d
}

// Validate performs basic validation on the Discrepancy
func (d *Discrepancy) Validate() error {
	if !d.Type.IsValid() {
		return fmt.Errorf("invalid discrepancy type: %s", d.Type)
	}

	if !d.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", d.Severity)
	}

	if !d.Status.IsValid() {
		return fmt.Errorf("invalid resolution status: %s", d.Status)
	}

	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("discrepancy description cannot be empty")
	}

	return nil
}

// Resolve records a resolution decision from the review workflow. It is the
// only mutation permitted after a run; the engine never touches these fields.
func (d *Discrepancy) Resolve(status ResolutionStatus, note, resolvedBy string, at time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid resolution status: %s", status)
	}

	d.Status = status
	d.ResolutionNote = note
	d.ResolvedBy = resolvedBy
	d.ResolvedAt = at
	return nil
}

// IsResolved reports whether the discrepancy has left the pending state
func (d *Discrepancy) IsResolved() bool {
	return d.Status != ResolutionPending
}

// String returns a string representation of the Discrepancy
func (d *Discrepancy) String() string {
	return fmt.Sprintf("Discrepancy{Type: %s, Severity: %s, Difference: %s}",
		d.Type, d.Severity, d.Difference.String())
}

// MarshalJSON implements custom JSON marshaling, emitting decimal values as
// strings and expanding the linked record identifiers
func (d *Discrepancy) MarshalJSON() ([]byte, error) {
	type Alias Discrepancy
	aux := &struct {
		Expected    string `json:"expected_value"`
		Actual      string `json:"actual_value"`
		Difference  string `json:"difference"`
		LineItemID  string `json:"line_item_id,omitempty"`
		TimeEntryID string `json:"time_entry_id,omitempty"`
		*Alias
	}{
		Expected:   d.Expected.String(),
		Actual:     d.Actual.String(),
		Difference: d.Difference.String(),
		Alias:      (*Alias)(d),
	}

	if d.LineItem != nil {
		aux.LineItemID = d.LineItem.ID
	}
	if d.TimeEntry != nil {
		aux.TimeEntryID = d.TimeEntry.ExternalID
	}

	return json.Marshal(aux)
}
