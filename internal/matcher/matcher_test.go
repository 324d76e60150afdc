package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
)

func testDate() time.Time {
	return time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
}

func createTestLineItem(desc, timekeeper string, hours, rate, amount float64) *models.LineItem {
	return &models.LineItem{
		ID:          "li-test",
		Date:        testDate(),
		Description: desc,
		Timekeeper:  timekeeper,
		Hours:       decimal.NewFromFloat(hours),
		Rate:        decimal.NewFromFloat(rate),
		Amount:      decimal.NewFromFloat(amount),
		ItemType:    models.ItemTypeTime,
	}
}

func createTestEntry(id, timekeeper, desc string, hours, rate, total float64) *models.TimeEntry {
	return models.NewTimeEntry(id, "firm-1", testDate(), timekeeper, desc,
		decimal.NewFromFloat(hours), decimal.NewFromFloat(rate), decimal.NewFromFloat(total))
}

func TestNewMatchingEngine(t *testing.T) {
	engine := NewMatchingEngine(nil)
	if engine.Config == nil {
		t.Fatal("expected nil config to be replaced with defaults")
	}
	if engine.Config.MinMatchScore != 0.5 {
		t.Errorf("expected default MinMatchScore 0.5, got %f", engine.Config.MinMatchScore)
	}

	custom := StrictMatchingConfig()
	engine = NewMatchingEngine(custom)
	if engine.Config != custom {
		t.Error("expected engine to use the provided config")
	}
}

func TestMatchLineItem_RequiresIndex(t *testing.T) {
	engine := NewMatchingEngine(nil)
	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	_, err := engine.MatchLineItem(li)
	if err == nil {
		t.Fatal("expected an error before LoadTimeEntries")
	}
}

func TestMatchLineItem_PerfectMatch(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750),
	})

	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)
	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !outcome.Matched {
		t.Fatal("expected a match")
	}
	if outcome.Score != 1.0 {
		t.Errorf("expected score 1.0, got %f", outcome.Score)
	}
	if outcome.Entry == nil || outcome.Entry.ExternalID != "entry-1" {
		t.Error("expected outcome to carry the matched entry")
	}
	if len(outcome.Discrepancies) != 0 {
		t.Errorf("expected no discrepancies, got %d", len(outcome.Discrepancies))
	}
	if !li.Matched || li.MatchedTimeEntryID != "entry-1" {
		t.Error("expected line item to be marked matched")
	}
}

func TestMatchLineItem_NoDate(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750),
	})

	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)
	li.Date = time.Time{}

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Matched {
		t.Fatal("line item without a date must never match")
	}
	if len(outcome.Discrepancies) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(outcome.Discrepancies))
	}

	d := outcome.Discrepancies[0]
	if d.Type != models.DiscrepancyMissingTime {
		t.Errorf("expected missing_time, got %s", d.Type)
	}
	if d.Severity != models.SeverityHigh {
		t.Errorf("expected high severity, got %s", d.Severity)
	}
	if !d.Difference.Equal(decimal.NewFromInt(750)) {
		t.Errorf("expected difference to carry the line amount 750, got %s", d.Difference.String())
	}
}

func TestMatchLineItem_NoTimekeeper(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750),
	})

	li := createTestLineItem("Review contract documents", "  ", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Matched {
		t.Fatal("line item without a timekeeper must never match")
	}
	if len(outcome.Discrepancies) != 1 || outcome.Discrepancies[0].Type != models.DiscrepancyMissingTime {
		t.Fatal("expected a single missing_time discrepancy")
	}
}

func TestMatchLineItem_NoCandidates(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Bob Jones", "Draft motion to dismiss", 4.0, 250, 1000),
	})

	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Matched {
		t.Fatal("expected no match for an unknown timekeeper")
	}
	if len(outcome.Discrepancies) != 1 || outcome.Discrepancies[0].Type != models.DiscrepancyMissingTime {
		t.Fatal("expected a single missing_time discrepancy")
	}
}

func TestMatchLineItem_AmountMismatch(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 650),
	})

	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 600)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Matched {
		t.Fatal("expected a match despite the amount difference")
	}
	if len(outcome.Discrepancies) != 1 {
		t.Fatalf("expected 1 discrepancy, got %d", len(outcome.Discrepancies))
	}

	d := outcome.Discrepancies[0]
	if d.Type != models.DiscrepancyAmountMismatch {
		t.Errorf("expected amount_mismatch, got %s", d.Type)
	}
	if d.Severity != models.SeverityHigh {
		t.Errorf("expected high severity, got %s", d.Severity)
	}
	if !d.Expected.Equal(decimal.NewFromInt(650)) || !d.Actual.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected 650 vs actual 600, got %s vs %s", d.Expected.String(), d.Actual.String())
	}
	if !d.Difference.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("expected difference -50, got %s", d.Difference.String())
	}
}

func TestMatchLineItem_RateAndHoursMismatch(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 3.0, 250, 750),
	})

	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Matched {
		t.Fatal("expected a match")
	}
	if len(outcome.Discrepancies) != 2 {
		t.Fatalf("expected rate and hours discrepancies, got %d", len(outcome.Discrepancies))
	}

	types := map[models.DiscrepancyType]bool{}
	for _, d := range outcome.Discrepancies {
		types[d.Type] = true
		if d.Severity != models.SeverityMedium {
			t.Errorf("expected medium severity for %s, got %s", d.Type, d.Severity)
		}
	}
	if !types[models.DiscrepancyRateMismatch] || !types[models.DiscrepancyHoursMismatch] {
		t.Errorf("expected rate_mismatch and hours_mismatch, got %v", types)
	}
}

func TestMatchLineItem_DifferencesWithinTolerance(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300.01, 750.50),
	})

	// Rate off by 0.01, amount off by 0.50: both inside default tolerances.
	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Matched {
		t.Fatal("expected a match")
	}
	if len(outcome.Discrepancies) != 0 {
		t.Errorf("expected differences within tolerance to pass, got %d discrepancies",
			len(outcome.Discrepancies))
	}
}

func TestMatchLineItem_SkipsChecksForAbsentValues(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 0, 750),
	})

	// The entry has no rate, so the rate check cannot run even though the
	// invoice bills one.
	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Matched {
		t.Fatal("expected a match")
	}
	if len(outcome.Discrepancies) != 0 {
		t.Errorf("expected no discrepancies when a side lacks the value, got %d",
			len(outcome.Discrepancies))
	}
}

func TestMatchLineItem_FuzzyTimekeeperFallback(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750),
	})

	// OCR dropped the space in the name; the fuzzy fallback should still
	// anchor the line item.
	li := createTestLineItem("Review contract documents", "Janesmith", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Matched {
		t.Fatal("expected fuzzy timekeeper fallback to match")
	}
	if outcome.Entry.ExternalID != "entry-1" {
		t.Errorf("expected entry-1, got %s", outcome.Entry.ExternalID)
	}
}

func TestMatchLineItem_BelowScoreThreshold(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Telephone conference with opposing counsel", 1.0, 300, 300),
	})

	// Same date and timekeeper, but the work described has nothing in
	// common and the hours disagree.
	li := createTestLineItem("Prepare exhibits for trial", "Jane Smith", 6.0, 300, 1800)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Matched {
		t.Fatalf("expected score %f to fall below the threshold", outcome.Score)
	}
	if len(outcome.Discrepancies) != 1 || outcome.Discrepancies[0].Type != models.DiscrepancyMissingTime {
		t.Fatal("expected a single missing_time discrepancy")
	}
}

func TestMatchLineItem_TieBreaksToFirstCandidate(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750),
		createTestEntry("entry-2", "Jane Smith", "Review contract documents", 2.5, 300, 750),
	})

	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(li)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Matched {
		t.Fatal("expected a match")
	}
	if outcome.Entry.ExternalID != "entry-1" {
		t.Errorf("tie should go to the first candidate, got %s", outcome.Entry.ExternalID)
	}
}

func TestMatchLineItem_ExclusiveMatching(t *testing.T) {
	config := DefaultMatchingConfig()
	config.ExclusiveMatching = true

	engine := NewMatchingEngine(config)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750),
	})

	first := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)
	second := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	outcome, err := engine.MatchLineItem(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Matched {
		t.Fatal("expected the first line item to claim the entry")
	}

	outcome, err = engine.MatchLineItem(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Matched {
		t.Fatal("expected the claimed entry to be unavailable")
	}
}

func TestMatchLineItem_SharedMatchingByDefault(t *testing.T) {
	engine := NewMatchingEngine(nil)
	engine.LoadTimeEntries([]*models.TimeEntry{
		createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750),
	})

	first := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)
	second := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)

	for _, li := range []*models.LineItem{first, second} {
		outcome, err := engine.MatchLineItem(li)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !outcome.Matched {
			t.Fatal("expected both line items to match the same entry")
		}
	}
}

func TestFindUnbilled(t *testing.T) {
	engine := NewMatchingEngine(nil)

	billable := createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750)
	unmatched := createTestEntry("entry-2", "Bob Jones", "Draft motion to dismiss", 4.0, 250, 1000)
	nonBillable := createTestEntry("entry-3", "Jane Smith", "Internal training session", 1.0, 0, 0)
	nonBillable.Billable = false

	engine.LoadTimeEntries([]*models.TimeEntry{billable, unmatched, nonBillable})

	li := createTestLineItem("Review contract documents", "Jane Smith", 2.5, 300, 750)
	if _, err := engine.MatchLineItem(li); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unbilled, err := engine.FindUnbilled(engine.MatchedIDs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(unbilled) != 1 {
		t.Fatalf("expected 1 unbilled entry, got %d", len(unbilled))
	}
	if unbilled[0].ExternalID != "entry-2" {
		t.Errorf("expected entry-2 to be unbilled, got %s", unbilled[0].ExternalID)
	}
}

func TestFindUnbilled_RequiresIndex(t *testing.T) {
	engine := NewMatchingEngine(nil)
	if _, err := engine.FindUnbilled(map[string]bool{}); err == nil {
		t.Fatal("expected an error before LoadTimeEntries")
	}
}

func TestUnbilledDiscrepancy(t *testing.T) {
	engine := NewMatchingEngine(nil)
	entry := createTestEntry("entry-1", "Jane Smith", "Review contract documents", 2.5, 300, 750)

	d := engine.UnbilledDiscrepancy(entry)

	if d.Type != models.DiscrepancyExtraTime {
		t.Errorf("expected extra_time, got %s", d.Type)
	}
	if d.Severity != models.SeverityMedium {
		t.Errorf("expected medium severity, got %s", d.Severity)
	}
	if !d.Difference.Equal(decimal.NewFromInt(-750)) {
		t.Errorf("expected difference -750, got %s", d.Difference.String())
	}
	if d.TimeEntry != entry {
		t.Error("expected discrepancy to link the time entry")
	}
}
