// Package reconciler orchestrates invoice-to-time-entry reconciliation runs.
//
// A run is modeled as a Session that moves through a small state machine:
//
//	pending -> processing -> completed
//	                      -> error
//
// Completed and errored sessions are terminal. The ReconciliationService
// drives a session through this lifecycle: it scopes the inputs to the
// session's firm and date range, matches every invoice line item against
// the time entry index, detects unbilled work, and records aggregate
// counters on the session itself.
package reconciler

import (
	"fmt"
	"math"
	"time"

	"invoice-reconciliation-service/internal/models"
	apperrors "invoice-reconciliation-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionStatus represents the lifecycle state of a reconciliation session
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
)

// IsValid checks if the session status is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionPending, SessionProcessing, SessionCompleted, SessionError:
		return true
	}
	return false
}

// IsTerminal reports whether the session can no longer change state
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionError
}

// Session represents one reconciliation run for a single firm.
// Counters are zero until the run completes or fails; on failure the
// partial counters accumulated up to the failure point are retained.
type Session struct {
	ID     string        `json:"id"`
	FirmID string        `json:"firm_id"`
	Name   string        `json:"name,omitempty"`
	Status SessionStatus `json:"status"`

	// Scope of the run. A nil date leaves that side of the range open.
	// Both bounds are inclusive.
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	// IDs of the invoices actually processed in this run.
	InvoiceIDs []string `json:"invoice_ids,omitempty"`

	// Aggregate counters.
	InvoicesCount          int             `json:"invoices_count"`
	LineItemsCount         int             `json:"line_items_count"`
	MatchedCount           int             `json:"matched_count"`
	DiscrepancyCount       int             `json:"discrepancy_count"`
	TotalInvoiceAmount     decimal.Decimal `json:"total_invoice_amount"`
	TotalDiscrepancyAmount decimal.Decimal `json:"total_discrepancy_amount"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewSession creates a pending session scoped to the given firm
func NewSession(firmID, name string) *Session {
	return &Session{
		ID:                     uuid.New().String(),
		FirmID:                 firmID,
		Name:                   name,
		Status:                 SessionPending,
		TotalInvoiceAmount:     decimal.Zero,
		TotalDiscrepancyAmount: decimal.Zero,
		CreatedAt:              time.Now().UTC(),
	}
}

// WithDateRange sets the inclusive date range for the session scope
func (s *Session) WithDateRange(start, end *time.Time) *Session {
	s.StartDate = start
	s.EndDate = end
	return s
}

// Validate checks the session fields for consistency
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if s.FirmID == "" {
		return fmt.Errorf("firm ID is required")
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid session status: %s", s.Status)
	}
	if s.StartDate != nil && s.EndDate != nil && s.StartDate.After(*s.EndDate) {
		return fmt.Errorf("start date must not be after end date")
	}
	return nil
}

// Start transitions the session from pending to processing
func (s *Session) Start() error {
	if s.Status != SessionPending {
		return apperrors.ReconciliationError(
			apperrors.CodeInvalidStateTransition,
			fmt.Sprintf("start (current status %s)", s.Status),
			nil,
		)
	}
	s.Status = SessionProcessing
	return nil
}

// Complete transitions the session from processing to completed
func (s *Session) Complete() error {
	if s.Status != SessionProcessing {
		return apperrors.ReconciliationError(
			apperrors.CodeInvalidStateTransition,
			fmt.Sprintf("complete (current status %s)", s.Status),
			nil,
		)
	}
	s.Status = SessionCompleted
	now := time.Now().UTC()
	s.CompletedAt = &now
	return nil
}

// Fail transitions the session to the error state with a message.
// Allowed from pending or processing; terminal states reject it.
func (s *Session) Fail(message string) error {
	if s.Status.IsTerminal() {
		return apperrors.ReconciliationError(
			apperrors.CodeInvalidStateTransition,
			fmt.Sprintf("fail (current status %s)", s.Status),
			nil,
		)
	}
	s.Status = SessionError
	s.ErrorMessage = message
	now := time.Now().UTC()
	s.CompletedAt = &now
	return nil
}

// MatchRate returns the percentage of line items that matched a time
// entry, rounded to one decimal place. Zero line items yields 0.
func (s *Session) MatchRate() float64 {
	if s.LineItemsCount == 0 {
		return 0
	}
	rate := float64(s.MatchedCount) / float64(s.LineItemsCount) * 100
	return math.Round(rate*10) / 10
}

// InDateRange reports whether the given date falls inside the session's
// inclusive date range. Open bounds always pass.
func (s *Session) InDateRange(date time.Time) bool {
	d := models.DateOnly(date)
	if s.StartDate != nil && d.Before(models.DateOnly(*s.StartDate)) {
		return false
	}
	if s.EndDate != nil && d.After(models.DateOnly(*s.EndDate)) {
		return false
	}
	return true
}

// String returns a human-readable representation of the session
func (s *Session) String() string {
	return fmt.Sprintf("Session{ID: %s, Firm: %s, Status: %s, Invoices: %d, Matched: %d/%d, Discrepancies: %d}",
		s.ID, s.FirmID, s.Status, s.InvoicesCount, s.MatchedCount, s.LineItemsCount, s.DiscrepancyCount)
}
