package reconciler

import (
	"context"
	"fmt"
	"time"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
	apperrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	// Matching behavior passed through to the engine.
	Matching *matcher.MatchingConfig

	// Processing options
	ProgressReporting bool
	ProgressInterval  time.Duration

	// Validation options
	ValidateInputs bool
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matching:          matcher.DefaultMatchingConfig(),
		ProgressReporting: false,
		ProgressInterval:  5 * time.Second,
		ValidateInputs:    true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("invalid matching configuration: %w", err)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}
	return nil
}

// ReconciliationService runs reconciliation sessions against in-memory
// invoices and time entries.
type ReconciliationService struct {
	engine      *matcher.MatchingEngine
	edgeHandler *matcher.EdgeCaseHandler
	config      *Config
	logger      logger.Logger
}

// ReconciliationResult contains the complete output of a session run
type ReconciliationResult struct {
	Session       *Session                `json:"session"`
	Outcomes      []*matcher.MatchOutcome `json:"-"`
	Discrepancies []*models.Discrepancy   `json:"discrepancies"`
	ProcessedAt   time.Time               `json:"processed_at"`
	Duration      time.Duration           `json:"duration"`
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(config *Config) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &ReconciliationService{
		engine:      matcher.NewMatchingEngine(config.Matching),
		edgeHandler: matcher.NewEdgeCaseHandler(config.Matching),
		config:      config,
		logger:      logger.GetGlobalLogger().WithComponent("reconciler"),
	}, nil
}

// GetMatchingConfig returns the matching configuration in use
func (rs *ReconciliationService) GetMatchingConfig() *matcher.MatchingConfig {
	return rs.config.Matching
}

// Run executes the reconciliation session against the given invoices and
// time entries.
//
// Preconditions are checked before the session is touched: the session
// must be pending and every invoice and time entry must belong to the
// session's firm. A precondition failure returns an error and leaves the
// session in its current state.
//
// Once processing starts, any failure (including context cancellation or
// a panic in the matching pipeline) moves the session to the error state
// with the failure message recorded; counters accumulated up to that
// point are retained.
func (rs *ReconciliationService) Run(
	ctx context.Context,
	session *Session,
	invoices []*models.Invoice,
	entries []*models.TimeEntry,
) (result *ReconciliationResult, err error) {

	if session == nil {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "session", nil, nil)
	}
	if err := session.Validate(); err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidConfig, "session", session.ID, err)
	}
	if session.Status != SessionPending {
		return nil, apperrors.ReconciliationError(
			apperrors.CodeInvalidStateTransition,
			fmt.Sprintf("run (current status %s)", session.Status),
			nil,
		)
	}
	if err := rs.checkFirmScope(session, invoices, entries); err != nil {
		return nil, err
	}
	if rs.config.ValidateInputs {
		if err := rs.validateInputs(invoices, entries); err != nil {
			return nil, err
		}
	}

	log := rs.logger.WithFields(logger.Fields{
		"session_id": session.ID,
		"firm_id":    session.FirmID,
	})
	log.WithFields(logger.Fields{
		"invoices":     len(invoices),
		"time_entries": len(entries),
	}).Info("Starting reconciliation run")

	if err := session.Start(); err != nil {
		return nil, err
	}

	// From here on the session is processing; a panic anywhere in the
	// pipeline must not leave it stuck there.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic during reconciliation: %v", r)
			log.Error(msg)
			_ = session.Fail(msg)
			result = nil
			err = apperrors.InternalError(apperrors.CodeUnexpectedError, "reconciliation run", fmt.Errorf("%v", r))
		}
	}()

	startTime := time.Now()

	scoped := rs.scopeInvoices(session, invoices)
	scopedEntries := rs.scopeEntries(session, entries)

	log.WithFields(logger.Fields{
		"scoped_invoices":     len(scoped),
		"scoped_time_entries": len(scopedEntries),
	}).Debug("Scoped inputs to session firm and date range")

	rs.engine.LoadTimeEntries(scopedEntries)

	totalLineItems := 0
	for _, inv := range scoped {
		totalLineItems += len(inv.LineItems)
	}

	var tracker *logger.ProgressTracker
	if rs.config.ProgressReporting {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation:   "reconcile line items",
			Total:       int64(totalLineItems),
			LogInterval: rs.config.ProgressInterval,
			Logger:      rs.logger,
		})
	}

	result = &ReconciliationResult{
		Session:     session,
		ProcessedAt: startTime.UTC(),
	}

	fail := func(stage string, cause error) (*ReconciliationResult, error) {
		appErr := apperrors.ReconciliationError(apperrors.CodeProcessingError, stage, cause)
		_ = session.Fail(appErr.Message)
		if tracker != nil {
			tracker.CompleteWithError(appErr)
		}
		log.WithError(cause).Errorf("Reconciliation failed during %s", stage)
		return nil, appErr
	}

	// Match every line item of every scoped invoice.
	for _, inv := range scoped {
		session.InvoiceIDs = append(session.InvoiceIDs, inv.ID)
		session.InvoicesCount++
		session.TotalInvoiceAmount = session.TotalInvoiceAmount.Add(inv.TotalAmount)

		for _, li := range inv.LineItems {
			if err := ctx.Err(); err != nil {
				return fail("line item matching", err)
			}

			outcome, err := rs.engine.MatchLineItem(li)
			if err != nil {
				return fail("line item matching", err)
			}

			session.LineItemsCount++
			if outcome.Matched {
				session.MatchedCount++
			}
			for _, d := range outcome.Discrepancies {
				d.SessionID = session.ID
				result.Discrepancies = append(result.Discrepancies, d)
			}
			result.Outcomes = append(result.Outcomes, outcome)
			if tracker != nil {
				tracker.Increment()
			}
		}

		if rs.config.Matching.DetectDuplicates {
			for _, pair := range rs.edgeHandler.DetectDuplicateLineItems(inv.LineItems) {
				d := rs.edgeHandler.DuplicateDiscrepancy(pair)
				d.SessionID = session.ID
				result.Discrepancies = append(result.Discrepancies, d)
			}
		}
	}

	// Billable entries no line item claimed become unbilled-time findings.
	unbilled, err := rs.engine.FindUnbilled(rs.engine.MatchedIDs())
	if err != nil {
		return fail("unbilled detection", err)
	}
	for _, entry := range unbilled {
		if err := ctx.Err(); err != nil {
			return fail("unbilled detection", err)
		}
		d := rs.engine.UnbilledDiscrepancy(entry)
		d.SessionID = session.ID
		result.Discrepancies = append(result.Discrepancies, d)
	}

	// Aggregate once, after all discrepancies are known. The total is the
	// sum of absolute differences so offsetting errors never cancel out.
	session.DiscrepancyCount = len(result.Discrepancies)
	for _, d := range result.Discrepancies {
		session.TotalDiscrepancyAmount = session.TotalDiscrepancyAmount.Add(d.Difference.Abs())
	}

	if err := session.Complete(); err != nil {
		return fail("completion", err)
	}

	result.Duration = time.Since(startTime)
	if tracker != nil {
		tracker.Complete()
	}

	log.WithFields(logger.Fields{
		"invoices":      session.InvoicesCount,
		"line_items":    session.LineItemsCount,
		"matched":       session.MatchedCount,
		"discrepancies": session.DiscrepancyCount,
		"match_rate":    session.MatchRate(),
		"duration":      result.Duration.String(),
	}).Info("Reconciliation run completed")

	return result, nil
}

// checkFirmScope verifies every invoice and time entry belongs to the
// session's firm.
func (rs *ReconciliationService) checkFirmScope(session *Session, invoices []*models.Invoice, entries []*models.TimeEntry) error {
	for _, inv := range invoices {
		if inv.FirmID != session.FirmID {
			return apperrors.ReconciliationError(apperrors.CodeFirmScopeViolation, "run", nil).
				WithContext("invoice_id", inv.ID).
				WithContext("invoice_firm_id", inv.FirmID).
				WithContext("session_firm_id", session.FirmID)
		}
	}
	for _, entry := range entries {
		if entry.FirmID != session.FirmID {
			return apperrors.ReconciliationError(apperrors.CodeFirmScopeViolation, "run", nil).
				WithContext("time_entry_id", entry.ExternalID).
				WithContext("entry_firm_id", entry.FirmID).
				WithContext("session_firm_id", session.FirmID)
		}
	}
	return nil
}

// validateInputs runs model validation over all inputs before processing
func (rs *ReconciliationService) validateInputs(invoices []*models.Invoice, entries []*models.TimeEntry) error {
	for _, inv := range invoices {
		if err := inv.Validate(); err != nil {
			return apperrors.ValidationError(apperrors.CodeInvalidConfig, "invoice", inv.ID, err)
		}
	}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return apperrors.ValidationError(apperrors.CodeInvalidConfig, "time_entry", entry.ExternalID, err)
		}
	}
	return nil
}

// scopeInvoices keeps only invoices that are in a reconcilable status
func (rs *ReconciliationService) scopeInvoices(session *Session, invoices []*models.Invoice) []*models.Invoice {
	scoped := make([]*models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.Status.IsReconcilable() {
			rs.logger.WithFields(logger.Fields{
				"invoice_id": inv.ID,
				"status":     inv.Status,
			}).Debug("Skipping invoice outside reconcilable statuses")
			continue
		}
		scoped = append(scoped, inv)
	}
	return scoped
}

// scopeEntries keeps only time entries inside the session's date range.
// Entries without a date are excluded: they can never be matched by date
// and would only distort unbilled-time findings.
func (rs *ReconciliationService) scopeEntries(session *Session, entries []*models.TimeEntry) []*models.TimeEntry {
	scoped := make([]*models.TimeEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Date.IsZero() {
			continue
		}
		if !session.InDateRange(entry.Date) {
			continue
		}
		scoped = append(scoped, entry)
	}
	return scoped
}
