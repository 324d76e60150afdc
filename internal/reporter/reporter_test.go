package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/reconciler"
)

func createReportTestResult() (*reconciler.ReconciliationResult, []*models.Invoice) {
	session := reconciler.NewSession("firm-1", "July run")
	session.Start()

	inv := models.NewInvoice("inv-1", "firm-1", "INV-001", "Acme Corp", decimal.NewFromInt(1750))
	inv.Status = models.InvoiceStatusExtracted
	li := &models.LineItem{
		ID:          "li-1",
		Description: "Review contract documents",
		Amount:      decimal.NewFromInt(750),
	}
	inv.AddLineItem(li)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	missing := models.NewDiscrepancy(models.DiscrepancyMissingTime, models.SeverityHigh,
		"No matching time entry found for: Review contract documents",
		decimal.NewFromInt(750), decimal.Zero).WithLineItem(li)
	missing.Difference = decimal.NewFromInt(750)
	missing.CreatedAt = base

	unbilled := models.NewDiscrepancy(models.DiscrepancyExtraTime, models.SeverityMedium,
		"Unbilled time entry: Client strategy call",
		decimal.Zero, decimal.NewFromInt(300))
	unbilled.Difference = decimal.NewFromInt(-300)
	unbilled.CreatedAt = base.Add(time.Minute)

	duplicate := models.NewDiscrepancy(models.DiscrepancyDuplicate, models.SeverityLow,
		"Possible duplicate line item: Review contract documents",
		decimal.NewFromInt(750), decimal.NewFromInt(1500)).WithLineItem(li)
	duplicate.CreatedAt = base.Add(2 * time.Minute)

	session.InvoicesCount = 1
	session.LineItemsCount = 1
	session.MatchedCount = 0
	session.DiscrepancyCount = 3
	session.TotalInvoiceAmount = decimal.NewFromInt(1750)
	session.TotalDiscrepancyAmount = decimal.NewFromInt(1800)
	session.Complete()

	result := &reconciler.ReconciliationResult{
		Session:       session,
		Discrepancies: []*models.Discrepancy{unbilled, duplicate, missing},
		ProcessedAt:   base,
	}

	return result, []*models.Invoice{inv}
}

func TestBuildReport(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()
	report := generator.BuildReport(result, invoices)

	if report.SessionID != result.Session.ID || report.FirmID != "firm-1" {
		t.Error("report header fields not copied from the session")
	}
	if report.DiscrepancyCount != 3 || len(report.Rows) != 3 {
		t.Errorf("expected 3 discrepancies and 3 rows, got %d and %d",
			report.DiscrepancyCount, len(report.Rows))
	}

	if summary := report.ByType["missing_time"]; summary.Count != 1 || !summary.TotalAmount.Equal(decimal.NewFromInt(750)) {
		t.Errorf("unexpected missing_time summary: %+v", summary)
	}
	if summary := report.ByType["extra_time"]; !summary.TotalAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected absolute amount 300 for extra_time, got %s", summary.TotalAmount.String())
	}
	if report.BySeverity["high"] != 1 || report.BySeverity["medium"] != 1 || report.BySeverity["low"] != 1 {
		t.Errorf("unexpected severity counts: %v", report.BySeverity)
	}
	if report.ByStatus["pending"] != 3 {
		t.Errorf("expected 3 pending discrepancies, got %v", report.ByStatus)
	}
}

func TestBuildReport_RowOrderAndContent(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()
	report := generator.BuildReport(result, invoices)

	// Severity ordering: HIGH first, LOW last, regardless of input order.
	if report.Rows[0].Severity != "HIGH" || report.Rows[1].Severity != "MEDIUM" || report.Rows[2].Severity != "LOW" {
		t.Errorf("unexpected row order: %s, %s, %s",
			report.Rows[0].Severity, report.Rows[1].Severity, report.Rows[2].Severity)
	}

	row := report.Rows[0]
	if row.Type != "Missing Time Entry" {
		t.Errorf("expected display name, got %q", row.Type)
	}
	if row.InvoiceNumber != "INV-001" || row.ClientName != "Acme Corp" {
		t.Errorf("expected invoice lookup via line item, got %q / %q", row.InvoiceNumber, row.ClientName)
	}
	if row.Expected != "$750.00" || row.Difference != "$750.00" {
		t.Errorf("expected formatted money values, got %q / %q", row.Expected, row.Difference)
	}
	if row.Status != "Pending Review" {
		t.Errorf("expected status display name, got %q", row.Status)
	}

	// The unbilled row has no line item, so no invoice attribution.
	if report.Rows[1].InvoiceNumber != "" {
		t.Errorf("expected empty invoice number, got %q", report.Rows[1].InvoiceNumber)
	}
	if report.Rows[1].Difference != "$-300.00" {
		t.Errorf("expected negative difference, got %q", report.Rows[1].Difference)
	}
}

func TestBuildReport_NewestFirstWithinSeverity(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()

	older := models.NewDiscrepancy(models.DiscrepancyAmountMismatch, models.SeverityHigh,
		"Amount mismatch: older", decimal.NewFromInt(100), decimal.NewFromInt(90))
	older.CreatedAt = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	result.Discrepancies = append(result.Discrepancies, older)

	report := generator.BuildReport(result, invoices)

	if report.Rows[0].Description == "Amount mismatch: older" {
		t.Error("expected the newer high-severity row first")
	}
	if report.Rows[1].Description != "Amount mismatch: older" {
		t.Errorf("expected the older high-severity row second, got %q", report.Rows[1].Description)
	}
}

func TestBuildReport_ExcludesResolvedRows(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeResolved = false

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()
	result.Discrepancies[0].Resolve(models.ResolutionResolved, "reviewed", "reviewer@firm.test", time.Now())

	report := generator.BuildReport(result, invoices)

	if len(report.Rows) != 2 {
		t.Errorf("expected resolved row filtered out, got %d rows", len(report.Rows))
	}
	// Aggregates still cover every discrepancy.
	if report.ByStatus["resolved"] != 1 || report.ByStatus["pending"] != 2 {
		t.Errorf("aggregates must include resolved discrepancies: %v", report.ByStatus)
	}
}

func TestBuildReport_MaxRows(t *testing.T) {
	config := DefaultReportConfig()
	config.MaxRows = 1

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()
	report := generator.BuildReport(result, invoices)

	if len(report.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(report.Rows))
	}
	if report.Rows[0].Severity != "HIGH" {
		t.Error("row cap must keep the most severe rows")
	}
	if report.DiscrepancyCount != 3 {
		t.Error("row cap must not affect the discrepancy count")
	}
}

func TestBuildReport_NoDetailRows(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeDiscrepancies = false

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()
	report := generator.BuildReport(result, invoices)

	if len(report.Rows) != 0 {
		t.Errorf("expected no rows, got %d", len(report.Rows))
	}
	if report.ByType["missing_time"].Count != 1 {
		t.Error("summary aggregates must survive without detail rows")
	}
}

func TestGenerateReport_Console(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, invoices, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"RECONCILIATION REPORT",
		"=== SUMMARY ===",
		"Missing Time Entry",
		"$750.00",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("console output missing %q", want)
		}
	}
}

func TestGenerateReport_JSON(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, invoices, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["session_id"] != result.Session.ID {
		t.Error("expected session_id in JSON output")
	}
	if decoded["discrepancy_count"] != float64(3) {
		t.Errorf("expected discrepancy_count 3, got %v", decoded["discrepancy_count"])
	}
}

func TestGenerateReport_CSV(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, invoices, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d records", len(records))
	}

	header := records[0]
	expected := []string{"Type", "Severity", "Description", "Invoice #", "Client",
		"Expected Value", "Actual Value", "Difference", "Status", "Resolution Note"}
	for i, col := range expected {
		if header[i] != col {
			t.Errorf("header column %d = %q, expected %q", i, header[i], col)
		}
	}

	if records[1][0] != "Missing Time Entry" || records[1][1] != "HIGH" {
		t.Errorf("unexpected first data row: %v", records[1])
	}
	if records[1][3] != "INV-001" {
		t.Errorf("expected invoice number in CSV, got %q", records[1][3])
	}
}

func TestGenerateReport_CSVWithoutHeaders(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.CSVHeaders = false

	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result, invoices := createReportTestResult()

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, invoices, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 data rows without a header, got %d", len(records))
	}
}

func TestReportConfig_Validate(t *testing.T) {
	config := DefaultReportConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	config.Format = "xml"
	if err := config.Validate(); err == nil {
		t.Error("expected unknown format to be rejected")
	}

	config = DefaultReportConfig()
	config.MaxRows = -1
	if err := config.Validate(); err == nil {
		t.Error("expected negative max rows to be rejected")
	}
}

func TestNewReportGenerator_NilConfig(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generator.GetConfiguration().Format != FormatConsole {
		t.Error("expected default configuration")
	}
}
