// Package reporter generates discrepancy reports from reconciliation results.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: row-per-discrepancy export for spreadsheet review
//
// Reports combine a session summary (counters, match rate, totals broken
// down by discrepancy type, severity, and resolution status) with a
// detail table of discrepancies ordered by severity, most severe first.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/reconciler"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeDiscrepancies bool `json:"include_discrepancies"`
	IncludeResolved      bool `json:"include_resolved"`
	MaxRows              int  `json:"max_rows"` // 0 means unlimited

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeDiscrepancies: true,
		IncludeResolved:      true,
		MaxRows:              0,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("max rows cannot be negative, got %d", c.MaxRows)
	}
	return nil
}

// TypeSummary aggregates discrepancies of a single type
type TypeSummary struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Report is the assembled report content, independent of output format
type Report struct {
	SessionID   string                   `json:"session_id"`
	SessionName string                   `json:"session_name,omitempty"`
	FirmID      string                   `json:"firm_id"`
	Status      reconciler.SessionStatus `json:"status"`
	GeneratedAt time.Time                `json:"generated_at"`

	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	InvoicesCount          int             `json:"invoices_count"`
	LineItemsCount         int             `json:"line_items_count"`
	MatchedCount           int             `json:"matched_count"`
	DiscrepancyCount       int             `json:"discrepancy_count"`
	MatchRate              float64         `json:"match_rate"`
	TotalInvoiceAmount     decimal.Decimal `json:"total_invoice_amount"`
	TotalDiscrepancyAmount decimal.Decimal `json:"total_discrepancy_amount"`

	ByType     map[string]TypeSummary `json:"by_type"`
	BySeverity map[string]int         `json:"by_severity"`
	ByStatus   map[string]int         `json:"by_status"`

	Rows []Row `json:"discrepancies,omitempty"`
}

// Row is one discrepancy prepared for tabular display. Monetary values
// are already formatted for presentation.
type Row struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	InvoiceNumber  string `json:"invoice_number"`
	ClientName     string `json:"client_name"`
	Expected       string `json:"expected_value"`
	Actual         string `json:"actual_value"`
	Difference     string `json:"difference"`
	Status         string `json:"status"`
	ResolutionNote string `json:"resolution_note"`

	severityRank int
	createdAt    time.Time
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport builds a report from the reconciliation result and
// writes it to the provided writer. Invoices are used to resolve the
// invoice number and client for each discrepancy row.
func (rg *ReportGenerator) GenerateReport(
	result *reconciler.ReconciliationResult,
	invoices []*models.Invoice,
	writer io.Writer,
) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	report := rg.BuildReport(result, invoices)

	switch rg.config.Format {
	case FormatConsole:
		return rg.writeConsoleReport(report, writer)
	case FormatJSON:
		return rg.writeJSONReport(report, writer)
	case FormatCSV:
		return rg.writeCSVReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// BuildReport assembles the format-independent report content
func (rg *ReportGenerator) BuildReport(result *reconciler.ReconciliationResult, invoices []*models.Invoice) *Report {
	session := result.Session

	report := &Report{
		SessionID:              session.ID,
		SessionName:            session.Name,
		FirmID:                 session.FirmID,
		Status:                 session.Status,
		GeneratedAt:            time.Now().UTC(),
		StartDate:              session.StartDate,
		EndDate:                session.EndDate,
		InvoicesCount:          session.InvoicesCount,
		LineItemsCount:         session.LineItemsCount,
		MatchedCount:           session.MatchedCount,
		DiscrepancyCount:       session.DiscrepancyCount,
		MatchRate:              session.MatchRate(),
		TotalInvoiceAmount:     session.TotalInvoiceAmount,
		TotalDiscrepancyAmount: session.TotalDiscrepancyAmount,
		ByType:                 make(map[string]TypeSummary),
		BySeverity:             make(map[string]int),
		ByStatus:               make(map[string]int),
	}

	invoiceByLineItem := indexInvoicesByLineItem(invoices)

	for _, d := range result.Discrepancies {
		ts := report.ByType[string(d.Type)]
		ts.Count++
		ts.TotalAmount = ts.TotalAmount.Add(d.Difference.Abs())
		report.ByType[string(d.Type)] = ts

		report.BySeverity[string(d.Severity)]++
		report.ByStatus[string(d.Status)]++

		if !rg.config.IncludeDiscrepancies {
			continue
		}
		if !rg.config.IncludeResolved && d.IsResolved() {
			continue
		}
		report.Rows = append(report.Rows, rg.buildRow(d, invoiceByLineItem))
	}

	sortRows(report.Rows)
	if rg.config.MaxRows > 0 && len(report.Rows) > rg.config.MaxRows {
		report.Rows = report.Rows[:rg.config.MaxRows]
	}

	return report
}

func (rg *ReportGenerator) buildRow(d *models.Discrepancy, invoiceByLineItem map[string]*models.Invoice) Row {
	row := Row{
		Type:           d.Type.DisplayName(),
		Severity:       strings.ToUpper(string(d.Severity)),
		Description:    d.Description,
		Expected:       formatMoney(d.Expected),
		Actual:         formatMoney(d.Actual),
		Difference:     formatMoney(d.Difference),
		Status:         d.Status.DisplayName(),
		ResolutionNote: d.ResolutionNote,
		severityRank:   d.Severity.Rank(),
		createdAt:      d.CreatedAt,
	}

	if d.LineItem != nil {
		if inv, ok := invoiceByLineItem[d.LineItem.ID]; ok {
			row.InvoiceNumber = inv.InvoiceNumber
			row.ClientName = inv.ClientName
		}
	}

	return row
}

// sortRows orders rows by severity, most severe first, and newest first
// within the same severity.
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].severityRank != rows[j].severityRank {
			return rows[i].severityRank > rows[j].severityRank
		}
		return rows[i].createdAt.After(rows[j].createdAt)
	})
}

func indexInvoicesByLineItem(invoices []*models.Invoice) map[string]*models.Invoice {
	index := make(map[string]*models.Invoice)
	for _, inv := range invoices {
		for _, li := range inv.LineItems {
			index[li.ID] = inv
		}
	}
	return index
}

// formatMoney formats a decimal amount for display
func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// writeConsoleReport writes a human-readable console report
func (rg *ReportGenerator) writeConsoleReport(report *Report, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Session:   %s\n", report.SessionID)
	if report.SessionName != "" {
		fmt.Fprintf(writer, "Name:      %s\n", report.SessionName)
	}
	fmt.Fprintf(writer, "Firm:      %s\n", report.FirmID)
	fmt.Fprintf(writer, "Status:    %s\n", report.Status)
	fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	if report.StartDate != nil || report.EndDate != nil {
		fmt.Fprintf(writer, "Period:    %s to %s\n", formatDate(report.StartDate), formatDate(report.EndDate))
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Invoices Processed:       %d\n", report.InvoicesCount)
	fmt.Fprintf(writer, "Line Items:               %d\n", report.LineItemsCount)
	fmt.Fprintf(writer, "Matched Line Items:       %d (%.1f%%)\n", report.MatchedCount, report.MatchRate)
	fmt.Fprintf(writer, "Discrepancies:            %d\n", report.DiscrepancyCount)
	fmt.Fprintf(writer, "Total Invoice Amount:     %s\n", formatMoney(report.TotalInvoiceAmount))
	fmt.Fprintf(writer, "Total Discrepancy Amount: %s\n", formatMoney(report.TotalDiscrepancyAmount))
	fmt.Fprintf(writer, "\n")

	if len(report.ByType) > 0 {
		fmt.Fprintf(writer, "=== DISCREPANCIES BY TYPE ===\n")
		for _, dtype := range discrepancyTypeOrder {
			ts, ok := report.ByType[string(dtype)]
			if !ok {
				continue
			}
			fmt.Fprintf(writer, "%-22s %4d  %s\n", dtype.DisplayName()+":", ts.Count, formatMoney(ts.TotalAmount))
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.BySeverity) > 0 {
		fmt.Fprintf(writer, "=== DISCREPANCIES BY SEVERITY ===\n")
		for _, sev := range []models.Severity{models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
			count, ok := report.BySeverity[string(sev)]
			if !ok {
				continue
			}
			fmt.Fprintf(writer, "%-8s %d\n", strings.ToUpper(string(sev))+":", count)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Rows) > 0 {
		fmt.Fprintf(writer, "=== DISCREPANCY DETAILS ===\n")
		for i, row := range report.Rows {
			fmt.Fprintf(writer, "%d. [%s] %s\n", i+1, row.Severity, row.Type)
			fmt.Fprintf(writer, "   %s\n", row.Description)
			if row.InvoiceNumber != "" {
				fmt.Fprintf(writer, "   Invoice: %s  Client: %s\n", row.InvoiceNumber, row.ClientName)
			}
			fmt.Fprintf(writer, "   Expected: %s  Actual: %s  Difference: %s\n", row.Expected, row.Actual, row.Difference)
			fmt.Fprintf(writer, "   Status: %s", row.Status)
			if row.ResolutionNote != "" {
				fmt.Fprintf(writer, " (%s)", row.ResolutionNote)
			}
			fmt.Fprintf(writer, "\n")
		}
	}

	return nil
}

// discrepancyTypeOrder fixes the display order of type summaries
var discrepancyTypeOrder = []models.DiscrepancyType{
	models.DiscrepancyMissingTime,
	models.DiscrepancyExtraTime,
	models.DiscrepancyRateMismatch,
	models.DiscrepancyHoursMismatch,
	models.DiscrepancyAmountMismatch,
	models.DiscrepancyDuplicate,
	models.DiscrepancyOther,
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return t.Format(models.DateLayout)
}

// writeJSONReport writes a structured JSON report
func (rg *ReportGenerator) writeJSONReport(report *Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// writeCSVReport writes one row per discrepancy
func (rg *ReportGenerator) writeCSVReport(report *Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Type",
			"Severity",
			"Description",
			"Invoice #",
			"Client",
			"Expected Value",
			"Actual Value",
			"Difference",
			"Status",
			"Resolution Note",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, row := range report.Rows {
		record := []string{
			row.Type,
			row.Severity,
			row.Description,
			row.InvoiceNumber,
			row.ClientName,
			row.Expected,
			row.Actual,
			row.Difference,
			row.Status,
			row.ResolutionNote,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write discrepancy record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
