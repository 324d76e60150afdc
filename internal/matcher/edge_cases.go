package matcher

import (
	"fmt"

	"invoice-reconciliation-service/internal/models"
)

// EdgeCaseHandler provides detection of suspicious patterns that the main
// matching pass does not cover, currently duplicate line items
type EdgeCaseHandler struct {
	Config *MatchingConfig
}

// NewEdgeCaseHandler creates a new edge case handler
func NewEdgeCaseHandler(config *MatchingConfig) *EdgeCaseHandler {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &EdgeCaseHandler{Config: config}
}

// DuplicatePair represents two line items that appear to bill the same work
type DuplicatePair struct {
	First      *models.LineItem
	Second     *models.LineItem
	Similarity float64
}

// DetectDuplicateLineItems scans the line items of the included invoices for
// pairs billing the same work: identical date, timekeeper, hours and amount
// with near-identical descriptions. Each pair is reported at most once, in
// input order.
func (ech *EdgeCaseHandler) DetectDuplicateLineItems(lineItems []*models.LineItem) []DuplicatePair {
	var pairs []DuplicatePair
	flagged := make(map[int]bool)

	for i, first := range lineItems {
		if flagged[i] {
			continue
		}

		for j := i + 1; j < len(lineItems); j++ {
			if flagged[j] {
				continue
			}

			second := lineItems[j]
			if score, ok := ech.isDuplicatePair(first, second); ok {
				pairs = append(pairs, DuplicatePair{
					First:      first,
					Second:     second,
					Similarity: score,
				})
				flagged[j] = true
			}
		}
	}

	return pairs
}

// isDuplicatePair checks whether two line items look like the same billed
// work. All scalar fields must agree exactly; descriptions may differ
// slightly since extraction is lossy.
func (ech *EdgeCaseHandler) isDuplicatePair(a, b *models.LineItem) (float64, bool) {
	if !a.HasDate() || !b.HasDate() || !models.SameDate(a.Date, b.Date) {
		return 0, false
	}

	if models.NormalizeTimekeeper(a.Timekeeper) != models.NormalizeTimekeeper(b.Timekeeper) {
		return 0, false
	}

	if !a.Hours.Equal(b.Hours) || !a.Amount.Equal(b.Amount) {
		return 0, false
	}

	return SimilarityAtLeast(a.Description, b.Description, ech.Config.DuplicateDescriptionThreshold)
}

// DuplicateDiscrepancy builds the duplicate discrepancy for a detected pair.
// The second occurrence carries the doubled amount as the actual value.
func (ech *EdgeCaseHandler) DuplicateDiscrepancy(pair DuplicatePair) *models.Discrepancy {
	return models.NewDiscrepancy(
		models.DiscrepancyDuplicate,
		models.SeverityLow,
		fmt.Sprintf("Possible duplicate line item: %s", models.Truncate(pair.Second.Description, 100)),
		pair.First.Amount,
		pair.First.Amount.Add(pair.Second.Amount),
	).WithLineItem(pair.Second)
}
