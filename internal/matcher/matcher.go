package matcher

import (
	"fmt"

	"invoice-reconciliation-service/internal/models"
	apperrors "invoice-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// MatchingEngine pairs invoice line items with time entries using the
// loaded index and configuration
type MatchingEngine struct {
	Config *MatchingConfig
	Index  *TimeEntryIndex

	// claimed tracks entries already matched in this run; consulted only
	// when ExclusiveMatching is enabled.
	claimed map[string]bool
}

// MatchOutcome represents the result of matching one line item, including
// any discrepancies the attempt produced
type MatchOutcome struct {
	LineItem      *models.LineItem
	Entry         *models.TimeEntry
	Score         float64
	Matched       bool
	Discrepancies []*models.Discrepancy
}

// NewMatchingEngine creates a new matching engine with the specified
// configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config:  config,
		claimed: make(map[string]bool),
	}
}

// LoadTimeEntries builds the index from a snapshot of time entries. The
// snapshot must not be mutated for the remainder of the run.
func (me *MatchingEngine) LoadTimeEntries(entries []*models.TimeEntry) {
	me.Index = NewTimeEntryIndex(entries)
	me.claimed = make(map[string]bool)
}

// MatchLineItem matches a single line item against the loaded time entries.
//
// A line item without a date or timekeeper cannot be safely anchored and is
// unconditionally a no-match. Otherwise candidates come from the exact
// (date, timekeeper) lookup, falling back to fuzzy timekeeper matching on
// the same date. Each candidate scores (descriptionSimilarity + hoursBonus)/2
// and the best must strictly exceed MinMatchScore; ties go to the first
// candidate encountered, so results are deterministic.
//
// On match the line item is marked and all value-discrepancy checks run; on
// no-match a single missing_time discrepancy carries the invoiced amount.
func (me *MatchingEngine) MatchLineItem(li *models.LineItem) (*MatchOutcome, error) {
	if me.Index == nil {
		return nil, apperrors.ReconciliationError(apperrors.CodeIndexNotBuilt,
			"match line item", nil)
	}

	outcome := &MatchOutcome{LineItem: li}

	if !li.HasDate() || !li.HasTimekeeper() {
		outcome.Discrepancies = append(outcome.Discrepancies, me.missingTimeDiscrepancy(li))
		return outcome, nil
	}

	candidates := me.Index.Lookup(li.Date, li.Timekeeper)
	if len(candidates) == 0 {
		candidates = me.Index.FuzzyTimekeeperCandidates(li.Date, li.Timekeeper,
			me.Config.FuzzyTimekeeperThreshold)
	}

	if me.Config.ExclusiveMatching {
		candidates = me.filterClaimed(candidates)
	}

	if me.Config.MaxCandidates > 0 && len(candidates) > me.Config.MaxCandidates {
		candidates = candidates[:me.Config.MaxCandidates]
	}

	best, bestScore := me.selectBestCandidate(li, candidates)
	if best == nil || bestScore <= me.Config.MinMatchScore {
		outcome.Discrepancies = append(outcome.Discrepancies, me.missingTimeDiscrepancy(li))
		return outcome, nil
	}

	li.Matched = true
	li.MatchedTimeEntryID = best.ExternalID
	me.claimed[best.ExternalID] = true

	outcome.Entry = best
	outcome.Score = bestScore
	outcome.Matched = true
	outcome.Discrepancies = me.checkValueDiscrepancies(li, best)

	return outcome, nil
}

// selectBestCandidate scores all candidates and returns the maximum, with
// ties broken by first-encountered order
func (me *MatchingEngine) selectBestCandidate(li *models.LineItem, candidates []*models.TimeEntry) (*models.TimeEntry, float64) {
	var best *models.TimeEntry
	bestScore := 0.0

	for _, entry := range candidates {
		score := me.scoreCandidate(li, entry)
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}

	return best, bestScore
}

// scoreCandidate computes the blended match score for one candidate.
// The description term has no minimum threshold of its own; the hours bonus
// is 1.0 when both sides record equal hours and 0.5 otherwise.
func (me *MatchingEngine) scoreCandidate(li *models.LineItem, entry *models.TimeEntry) float64 {
	descSimilarity := Similarity(li.Description, entry.Description)

	hoursBonus := 0.5
	if li.HasHours() && entry.HasHours() && li.Hours.Equal(entry.Hours) {
		hoursBonus = 1.0
	}

	return (descSimilarity + hoursBonus) / 2
}

func (me *MatchingEngine) filterClaimed(candidates []*models.TimeEntry) []*models.TimeEntry {
	filtered := make([]*models.TimeEntry, 0, len(candidates))
	for _, entry := range candidates {
		if !me.claimed[entry.ExternalID] {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// checkValueDiscrepancies runs the independent rate/hours/amount checks on a
// matched pair. All checks are evaluated; a pair can produce several
// discrepancies. A check is skipped when either side lacks the value.
func (me *MatchingEngine) checkValueDiscrepancies(li *models.LineItem, entry *models.TimeEntry) []*models.Discrepancy {
	var discrepancies []*models.Discrepancy

	if li.HasRate() && entry.HasRate() {
		if li.Rate.Sub(entry.Rate).Abs().GreaterThan(me.Config.RateTolerance) {
			d := models.NewDiscrepancy(
				models.DiscrepancyRateMismatch,
				models.SeverityMedium,
				fmt.Sprintf("Rate mismatch: Invoice $%s/hr vs System $%s/hr",
					li.Rate.String(), entry.Rate.String()),
				entry.Rate,
				li.Rate,
			).WithLineItem(li).WithTimeEntry(entry)
			discrepancies = append(discrepancies, d)
		}
	}

	if li.HasHours() && entry.HasHours() {
		if li.Hours.Sub(entry.Hours).Abs().GreaterThan(me.Config.HoursTolerance) {
			d := models.NewDiscrepancy(
				models.DiscrepancyHoursMismatch,
				models.SeverityMedium,
				fmt.Sprintf("Hours mismatch: Invoice %sh vs System %sh",
					li.Hours.String(), entry.Hours.String()),
				entry.Hours,
				li.Hours,
			).WithLineItem(li).WithTimeEntry(entry)
			discrepancies = append(discrepancies, d)
		}
	}

	if !li.Amount.IsZero() && !entry.Total.IsZero() {
		if li.Amount.Sub(entry.Total).Abs().GreaterThan(me.Config.AmountTolerance) {
			d := models.NewDiscrepancy(
				models.DiscrepancyAmountMismatch,
				models.SeverityHigh,
				fmt.Sprintf("Amount mismatch: Invoice $%s vs System $%s",
					li.Amount.String(), entry.Total.String()),
				entry.Total,
				li.Amount,
			).WithLineItem(li).WithTimeEntry(entry)
			discrepancies = append(discrepancies, d)
		}
	}

	return discrepancies
}

// missingTimeDiscrepancy flags a line item with no matching time entry.
// The full invoiced amount is at risk until an entry is located, so the
// difference carries the line amount rather than actual - expected.
func (me *MatchingEngine) missingTimeDiscrepancy(li *models.LineItem) *models.Discrepancy {
	d := models.NewDiscrepancy(
		models.DiscrepancyMissingTime,
		models.SeverityHigh,
		fmt.Sprintf("No matching time entry found for: %s", models.Truncate(li.Description, 100)),
		li.Amount,
		decimal.Zero,
	).WithLineItem(li)
	d.Difference = li.Amount

	return d
}

// FindUnbilled returns every billable time entry whose external ID is absent
// from matchedIDs. Non-billable entries are never flagged. The matched-ID
// set reflects only the current run; entries matched in other sessions are
// indistinguishable from unmatched ones.
func (me *MatchingEngine) FindUnbilled(matchedIDs map[string]bool) ([]*models.TimeEntry, error) {
	if me.Index == nil {
		return nil, apperrors.ReconciliationError(apperrors.CodeIndexNotBuilt,
			"find unbilled entries", nil)
	}

	var unbilled []*models.TimeEntry
	for _, entry := range me.Index.AllEntries() {
		if entry.Billable && !matchedIDs[entry.ExternalID] {
			unbilled = append(unbilled, entry)
		}
	}

	return unbilled, nil
}

// UnbilledDiscrepancy builds the extra_time discrepancy for an unbilled
// entry. The negative difference signals money recorded by the system but
// absent from every invoice.
func (me *MatchingEngine) UnbilledDiscrepancy(entry *models.TimeEntry) *models.Discrepancy {
	d := models.NewDiscrepancy(
		models.DiscrepancyExtraTime,
		models.SeverityMedium,
		fmt.Sprintf("Unbilled time entry: %s", models.Truncate(entry.Description, 100)),
		decimal.Zero,
		entry.Total,
	).WithTimeEntry(entry)
	d.Difference = entry.Total.Neg()

	return d
}

// MatchedIDs returns the set of entry IDs claimed so far in this run
func (me *MatchingEngine) MatchedIDs() map[string]bool {
	ids := make(map[string]bool, len(me.claimed))
	for id := range me.claimed {
		ids[id] = true
	}
	return ids
}

// Stats returns statistics about the loaded index
func (me *MatchingEngine) Stats() IndexStats {
	if me.Index == nil {
		return IndexStats{}
	}
	return me.Index.Stats()
}
