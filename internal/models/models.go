package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date format used throughout the engine.
const DateLayout = "2006-01-02"

// InvoiceStatus represents the processing state of an uploaded invoice.
// Only invoices whose extraction is complete participate in reconciliation.
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "pending"
	InvoiceStatusProcessing InvoiceStatus = "processing"
	InvoiceStatusExtracted  InvoiceStatus = "extracted"
	InvoiceStatusReview     InvoiceStatus = "review"
	InvoiceStatusConfirmed  InvoiceStatus = "confirmed"
	InvoiceStatusError      InvoiceStatus = "error"
)

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid checks if the invoice status is valid
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusProcessing, InvoiceStatusExtracted,
		InvoiceStatusReview, InvoiceStatusConfirmed, InvoiceStatusError:
		return true
	default:
		return false
	}
}

// IsReconcilable reports whether an invoice in this status may be included
// in a reconciliation run. Extraction must be complete.
func (s InvoiceStatus) IsReconcilable() bool {
	return s == InvoiceStatusExtracted || s == InvoiceStatusConfirmed
}

// ItemType classifies an invoice line item
type ItemType string

const (
	ItemTypeTime    ItemType = "time"
	ItemTypeExpense ItemType = "expense"
	ItemTypeFlatFee ItemType = "flat_fee"
	ItemTypeOther   ItemType = "other"
)

// String returns the string representation of ItemType
func (t ItemType) String() string {
	return string(t)
}

// IsValid checks if the item type is valid
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeTime, ItemTypeExpense, ItemTypeFlatFee, ItemTypeOther:
		return true
	default:
		return false
	}
}

// LineItem represents one billable row extracted from an invoice document.
// Date, Timekeeper, Hours and Rate are optional; a zero time.Time, empty
// string or zero decimal means the extractor could not supply the field.
type LineItem struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date,omitempty"`
	Description string          `json:"description"`
	Timekeeper  string          `json:"timekeeper,omitempty"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	ItemType    ItemType        `json:"item_type"`
	LineNumber  int             `json:"line_number"`

	// Matching state, written only by the matching engine during a run.
	Matched            bool   `json:"matched"`
	MatchedTimeEntryID string `json:"matched_time_entry_id,omitempty"`
}

// HasDate reports whether the line item carries a usable date
func (li *LineItem) HasDate() bool {
	return !li.Date.IsZero()
}

// HasTimekeeper reports whether the line item names a timekeeper
func (li *LineItem) HasTimekeeper() bool {
	return strings.TrimSpace(li.Timekeeper) != ""
}

// HasHours reports whether hours were extracted for this line item.
// A zero value is treated as absent, matching extractor behavior.
func (li *LineItem) HasHours() bool {
	return !li.Hours.IsZero()
}

// HasRate reports whether a rate was extracted for this line item
func (li *LineItem) HasRate() bool {
	return !li.Rate.IsZero()
}

// Validate performs basic validation on the LineItem
func (li *LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("line item description cannot be empty")
	}

	if li.Hours.IsNegative() {
		return fmt.Errorf("line item hours cannot be negative: %s", li.Hours.String())
	}

	if li.Rate.IsNegative() {
		return fmt.Errorf("line item rate cannot be negative: %s", li.Rate.String())
	}

	if li.ItemType != "" && !li.ItemType.IsValid() {
		return fmt.Errorf("invalid line item type: %s", li.ItemType)
	}

	return nil
}

// String returns a string representation of the LineItem
func (li *LineItem) String() string {
	date := "?"
	if li.HasDate() {
		date = li.Date.Format(DateLayout)
	}
	return fmt.Sprintf("LineItem{Date: %s, Timekeeper: %s, Amount: %s, Desc: %s}",
		date, li.Timekeeper, li.Amount.String(), Truncate(li.Description, 40))
}

// Invoice represents an uploaded invoice with its extracted line items
type Invoice struct {
	ID              string        `json:"id"`
	FirmID          string        `json:"firm_id"`
	InvoiceNumber   string        `json:"invoice_number"`
	ClientName      string        `json:"client_name"`
	MatterNumber    string        `json:"matter_number,omitempty"`
	BillingAttorney string        `json:"billing_attorney,omitempty"`
	InvoiceDate     time.Time     `json:"invoice_date,omitempty"`
	DueDate         time.Time     `json:"due_date,omitempty"`
	Status          InvoiceStatus `json:"status"`

	Subtotal    decimal.Decimal `json:"subtotal"`
	Taxes       decimal.Decimal `json:"taxes"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountDue   decimal.Decimal `json:"amount_due"`

	LineItems []*LineItem `json:"line_items"`
}

// NewInvoice creates a new Invoice instance
func NewInvoice(id, firmID, number, client string, total decimal.Decimal) *Invoice {
	return &Invoice{
		ID:            id,
		FirmID:        firmID,
		InvoiceNumber: number,
		ClientName:    client,
		Status:        InvoiceStatusExtracted,
		TotalAmount:   total,
	}
}

// Validate performs basic validation on the Invoice
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invoice ID cannot be empty")
	}

	if !inv.Status.IsValid() {
		return fmt.Errorf("invalid invoice status: %s", inv.Status)
	}

	if inv.TotalAmount.IsNegative() {
		return fmt.Errorf("invoice total cannot be negative: %s", inv.TotalAmount.String())
	}

	for i, li := range inv.LineItems {
		if err := li.Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i+1, err)
		}
	}

	return nil
}

// String returns a string representation of the Invoice
func (inv *Invoice) String() string {
	return fmt.Sprintf("Invoice{Number: %s, Client: %s, Total: %s, Items: %d}",
		inv.InvoiceNumber, inv.ClientName, inv.TotalAmount.String(), len(inv.LineItems))
}

// AddLineItem appends a line item, assigning its line number
func (inv *Invoice) AddLineItem(li *LineItem) {
	li.LineNumber = len(inv.LineItems) + 1
	inv.LineItems = append(inv.LineItems, li)
}

// TimeEntry represents one unit of billable work recorded in an external
// practice-management system. Entries are read-only inputs to a run.
type TimeEntry struct {
	ExternalID     string          `json:"external_id"`
	FirmID         string          `json:"firm_id"`
	MatterNumber   string          `json:"matter_number,omitempty"`
	Date           time.Time       `json:"date"`
	TimekeeperName string          `json:"timekeeper_name"`
	Description    string          `json:"description"`
	Hours          decimal.Decimal `json:"hours"`
	Rate           decimal.Decimal `json:"rate"`
	Total          decimal.Decimal `json:"total"`
	Billable       bool            `json:"billable"`
}

// NewTimeEntry creates a new TimeEntry instance
func NewTimeEntry(externalID, firmID string, date time.Time, timekeeper, description string,
	hours, rate, total decimal.Decimal) *TimeEntry {
	return &TimeEntry{
		ExternalID:     externalID,
		FirmID:         firmID,
		Date:           DateOnly(date),
		TimekeeperName: timekeeper,
		Description:    description,
		Hours:          hours,
		Rate:           rate,
		Total:          total,
		Billable:       true,
	}
}

// HasHours reports whether the entry carries recorded hours
func (te *TimeEntry) HasHours() bool {
	return !te.Hours.IsZero()
}

// HasRate reports whether the entry carries a billing rate
func (te *TimeEntry) HasRate() bool {
	return !te.Rate.IsZero()
}

// Validate performs basic validation on the TimeEntry
func (te *TimeEntry) Validate() error {
	if strings.TrimSpace(te.ExternalID) == "" {
		return fmt.Errorf("time entry external ID cannot be empty")
	}

	if te.Date.IsZero() {
		return fmt.Errorf("time entry date cannot be zero")
	}

	if strings.TrimSpace(te.TimekeeperName) == "" {
		return fmt.Errorf("time entry timekeeper name cannot be empty")
	}

	if te.Hours.IsNegative() {
		return fmt.Errorf("time entry hours cannot be negative: %s", te.Hours.String())
	}

	return nil
}

// String returns a string representation of the TimeEntry
func (te *TimeEntry) String() string {
	return fmt.Sprintf("TimeEntry{ID: %s, Date: %s, Timekeeper: %s, Total: %s}",
		te.ExternalID, te.Date.Format(DateLayout), te.TimekeeperName, te.Total.String())
}

// MarshalJSON implements custom JSON marshaling for TimeEntry
func (te *TimeEntry) MarshalJSON() ([]byte, error) {
	type Alias TimeEntry
	return json.Marshal(&struct {
		Date string `json:"date"`
		*Alias
	}{
		Date:  te.Date.Format(DateLayout),
		Alias: (*Alias)(te),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for TimeEntry
func (te *TimeEntry) UnmarshalJSON(data []byte) error {
	type Alias TimeEntry
	aux := &struct {
		Date string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(te),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	te.Date, err = ParseDateWithFormats(aux.Date)
	if err != nil {
		return fmt.Errorf("invalid time entry date: %w", err)
	}

	return nil
}

// Utility functions for type conversion and validation

// ParseDecimalFromString parses a decimal value from string with validation,
// tolerating currency symbols and thousand separators from extracted data.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseItemType parses and validates a line item type from string
func ParseItemType(s string) (ItemType, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "", "time", "t":
		return ItemTypeTime, nil
	case "expense", "exp", "e":
		return ItemTypeExpense, nil
	case "flat_fee", "flat fee", "flat", "fixed":
		return ItemTypeFlatFee, nil
	case "other":
		return ItemTypeOther, nil
	default:
		return "", fmt.Errorf("invalid item type '%s'", s)
	}
}

// ParseDateWithFormats attempts to parse a date from string using the
// formats commonly found in invoice extracts and time entry exports
func ParseDateWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateLayout,            // "2006-01-02"
		time.RFC3339,          // "2006-01-02T15:04:05Z07:00"
		"2006-01-02 15:04:05", // "2006-01-02 15:04:05"
		"01/02/2006",          // "01/02/2006"
		"2006/01/02",          // "2006/01/02"
		"Jan 2, 2006",         // "Jan 2, 2006"
		"January 2, 2006",     // "January 2, 2006"
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return DateOnly(t), nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// DateOnly truncates a time to midnight UTC so that entries and line items
// from different sources compare by calendar date alone
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether two times fall on the same calendar date
func SameDate(a, b time.Time) bool {
	return a.Format(DateLayout) == b.Format(DateLayout)
}

// NormalizeTimekeeper lowercases and trims a timekeeper name for use as an
// index key
func NormalizeTimekeeper(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Truncate shortens a string for display in descriptions and logs
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
