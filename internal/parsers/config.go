package parsers

import (
	"fmt"
)

// InvoiceParserConfig configures parsing of invoice line-item exports.
// ColumnMappings translates logical field names to the column headers
// actually present in the file.
type InvoiceParserConfig struct {
	HasHeader      bool              `json:"has_header"`
	Delimiter      rune              `json:"delimiter"`
	ColumnMappings map[string]string `json:"column_mappings"`

	// DefaultStatus is assigned to invoices whose file has no status
	// column. Exports pulled for reconciliation are extracted by
	// definition, so that is the default.
	DefaultStatus string `json:"default_status"`
}

// DefaultInvoiceParserConfig returns the standard invoice export layout
func DefaultInvoiceParserConfig() *InvoiceParserConfig {
	return &InvoiceParserConfig{
		HasHeader: true,
		Delimiter: ',',
		ColumnMappings: map[string]string{
			"invoice_number":   "invoice_number",
			"client_name":      "client_name",
			"matter_number":    "matter_number",
			"billing_attorney": "billing_attorney",
			"invoice_date":     "invoice_date",
			"status":           "status",
			"date":             "date",
			"description":      "description",
			"timekeeper":       "timekeeper",
			"hours":            "hours",
			"rate":             "rate",
			"amount":           "amount",
			"item_type":        "item_type",
		},
		DefaultStatus: "extracted",
	}
}

// GetColumnName returns the mapped column header for a logical field
func (c *InvoiceParserConfig) GetColumnName(field string) string {
	if mapped, exists := c.ColumnMappings[field]; exists {
		return mapped
	}
	return field
}

// Validate validates the configuration
func (c *InvoiceParserConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter is required")
	}
	for _, field := range []string{"invoice_number", "client_name", "description", "amount"} {
		if c.GetColumnName(field) == "" {
			return fmt.Errorf("column mapping for %s cannot be empty", field)
		}
	}
	return nil
}

// TimeEntryParserConfig configures parsing of time entry exports
type TimeEntryParserConfig struct {
	HasHeader      bool              `json:"has_header"`
	Delimiter      rune              `json:"delimiter"`
	ColumnMappings map[string]string `json:"column_mappings"`

	// DefaultBillable applies when the file carries no billable column.
	DefaultBillable bool `json:"default_billable"`
}

// DefaultTimeEntryParserConfig returns the standard time entry layout
func DefaultTimeEntryParserConfig() *TimeEntryParserConfig {
	return &TimeEntryParserConfig{
		HasHeader: true,
		Delimiter: ',',
		ColumnMappings: map[string]string{
			"entry_id":      "entry_id",
			"date":          "date",
			"timekeeper":    "timekeeper",
			"description":   "description",
			"hours":         "hours",
			"rate":          "rate",
			"total":         "total",
			"matter_number": "matter_number",
			"billable":      "billable",
		},
		DefaultBillable: true,
	}
}

// GetColumnName returns the mapped column header for a logical field
func (c *TimeEntryParserConfig) GetColumnName(field string) string {
	if mapped, exists := c.ColumnMappings[field]; exists {
		return mapped
	}
	return field
}

// Validate validates the configuration
func (c *TimeEntryParserConfig) Validate() error {
	if c.Delimiter == 0 {
		return fmt.Errorf("delimiter is required")
	}
	for _, field := range []string{"entry_id", "date", "timekeeper", "description"} {
		if c.GetColumnName(field) == "" {
			return fmt.Errorf("column mapping for %s cannot be empty", field)
		}
	}
	return nil
}
