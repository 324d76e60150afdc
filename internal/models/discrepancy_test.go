package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewDiscrepancy(t *testing.T) {
	expected := decimal.NewFromInt(650)
	actual := decimal.NewFromInt(600)

	d := NewDiscrepancy(DiscrepancyAmountMismatch, SeverityHigh, "Amount mismatch", expected, actual)

	if d.Type != DiscrepancyAmountMismatch {
		t.Errorf("expected amount_mismatch, got %s", d.Type)
	}
	if !d.Difference.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("expected difference actual - expected = -50, got %s", d.Difference.String())
	}
	if d.Status != ResolutionPending {
		t.Errorf("expected pending status, got %s", d.Status)
	}
	if d.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if d.ID == "" {
		t.Error("expected a generated ID")
	}
}

func TestDiscrepancy_Links(t *testing.T) {
	li := &LineItem{ID: "li-1", Description: "Review"}
	entry := &TimeEntry{ExternalID: "entry-1"}

	d := NewDiscrepancy(DiscrepancyRateMismatch, SeverityMedium, "Rate mismatch",
		decimal.NewFromInt(300), decimal.NewFromInt(350)).
		WithLineItem(li).
		WithTimeEntry(entry)

	if d.LineItem != li || d.TimeEntry != entry {
		t.Error("expected both records to be linked")
	}
}

func TestDiscrepancy_Validate(t *testing.T) {
	valid := NewDiscrepancy(DiscrepancyMissingTime, SeverityHigh, "No matching time entry",
		decimal.NewFromInt(750), decimal.Zero)
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid discrepancy, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Discrepancy)
	}{
		{"invalid type", func(d *Discrepancy) { d.Type = "bogus" }},
		{"invalid severity", func(d *Discrepancy) { d.Severity = "urgent" }},
		{"invalid status", func(d *Discrepancy) { d.Status = "closed" }},
		{"empty description", func(d *Discrepancy) { d.Description = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDiscrepancy(DiscrepancyMissingTime, SeverityHigh, "No matching time entry",
				decimal.NewFromInt(750), decimal.Zero)
			tt.mutate(d)
			if err := d.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDiscrepancy_Resolve(t *testing.T) {
	d := NewDiscrepancy(DiscrepancyHoursMismatch, SeverityMedium, "Hours mismatch",
		decimal.NewFromFloat(2.5), decimal.NewFromFloat(3.0))

	if d.IsResolved() {
		t.Fatal("new discrepancy should not be resolved")
	}

	resolvedAt := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if err := d.Resolve(ResolutionResolved, "Corrected in billing system", "reviewer@firm.test", resolvedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !d.IsResolved() {
		t.Error("expected resolved state")
	}
	if d.Status != ResolutionResolved || d.ResolutionNote != "Corrected in billing system" {
		t.Error("resolution fields not recorded")
	}
	if !d.ResolvedAt.Equal(resolvedAt) {
		t.Errorf("expected resolved at %v, got %v", resolvedAt, d.ResolvedAt)
	}
}

func TestDiscrepancy_ResolveRejectsInvalidStatus(t *testing.T) {
	d := NewDiscrepancy(DiscrepancyHoursMismatch, SeverityMedium, "Hours mismatch",
		decimal.NewFromFloat(2.5), decimal.NewFromFloat(3.0))

	if err := d.Resolve("closed", "", "", time.Now()); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
	if d.Status != ResolutionPending {
		t.Error("failed resolve must not change the status")
	}
}

func TestDiscrepancy_AcknowledgedCountsAsResolved(t *testing.T) {
	d := NewDiscrepancy(DiscrepancyDuplicate, SeverityLow, "Possible duplicate",
		decimal.NewFromInt(750), decimal.NewFromInt(1500))

	if err := d.Resolve(ResolutionAcknowledged, "", "reviewer@firm.test", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IsResolved() {
		t.Error("acknowledged discrepancies should count as resolved")
	}
}

func TestSeverity_Rank(t *testing.T) {
	if SeverityHigh.Rank() <= SeverityMedium.Rank() || SeverityMedium.Rank() <= SeverityLow.Rank() {
		t.Error("severity ranks must order high > medium > low")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity should rank 0")
	}
}

func TestDiscrepancyType_DisplayName(t *testing.T) {
	tests := []struct {
		dtype    DiscrepancyType
		expected string
	}{
		{DiscrepancyMissingTime, "Missing Time Entry"},
		{DiscrepancyExtraTime, "Unbilled Time Entry"},
		{DiscrepancyRateMismatch, "Rate Mismatch"},
		{DiscrepancyHoursMismatch, "Hours Mismatch"},
		{DiscrepancyAmountMismatch, "Amount Mismatch"},
		{DiscrepancyDuplicate, "Possible Duplicate"},
	}

	for _, tt := range tests {
		if got := tt.dtype.DisplayName(); got != tt.expected {
			t.Errorf("DisplayName(%s) = %q, expected %q", tt.dtype, got, tt.expected)
		}
	}
}
