package parsers

import (
	"context"
	"io"

	"invoice-reconciliation-service/internal/models"
	apperrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceParser parses invoice line-item CSV exports. Each row is one
// line item; rows sharing an invoice number are grouped into a single
// Invoice in file order.
type InvoiceParser struct {
	*BaseParser
	config *InvoiceParserConfig
	logger logger.Logger
}

// NewInvoiceParser creates a new InvoiceParser with the given configuration
func NewInvoiceParser(config *InvoiceParserConfig) (*InvoiceParser, error) {
	if config == nil {
		config = DefaultInvoiceParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(
			apperrors.CodeInvalidConfig,
			"invoice_parser_config",
			config,
			err,
		)
	}

	baseParser := NewBaseParser(&ParseConfig{
		HasHeader:        config.HasHeader,
		Delimiter:        config.Delimiter,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
	})

	return &InvoiceParser{
		BaseParser: baseParser,
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("invoice_parser"),
	}, nil
}

// ParseInvoices parses a CSV file of invoice line items for the given firm
func (ip *InvoiceParser) ParseInvoices(filePath, firmID string) ([]*models.Invoice, *ParseStats, error) {
	return ip.ParseInvoicesWithContext(context.Background(), filePath, firmID)
}

// ParseInvoicesWithContext parses invoices with cancellation support
func (ip *InvoiceParser) ParseInvoicesWithContext(ctx context.Context, filePath, firmID string) ([]*models.Invoice, *ParseStats, error) {
	ip.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"firm_id":   firmID,
	}).Info("Starting invoice parsing")

	file, reader, err := ip.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	requiredHeaders := []string{
		ip.config.GetColumnName("invoice_number"),
		ip.config.GetColumnName("client_name"),
		ip.config.GetColumnName("description"),
		ip.config.GetColumnName("amount"),
	}
	if err := ip.ReadHeaders(reader, parseCtx, filePath, requiredHeaders); err != nil {
		return nil, stats, err
	}

	var invoices []*models.Invoice
	invoiceByNumber := make(map[string]*models.Invoice)

	for {
		record, err := ip.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if appErr, ok := apperrors.AsReconcilerError(err); ok && appErr.Category == apperrors.CategoryInternal {
				return invoices, stats, appErr
			}

			ip.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read record")
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Message: "malformed CSV record",
				Err:     err,
			})
			continue
		}

		stats.RecordsParsed++

		invoiceNumber := ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("invoice_number"))
		if invoiceNumber == "" {
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Field:   ip.config.GetColumnName("invoice_number"),
				Message: "invoice number is required",
			})
			continue
		}

		li, parseErr := ip.parseLineItem(record, parseCtx)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		inv, exists := invoiceByNumber[invoiceNumber]
		if !exists {
			inv = ip.buildInvoice(record, parseCtx, firmID, invoiceNumber)
			invoiceByNumber[invoiceNumber] = inv
			invoices = append(invoices, inv)
		}

		inv.AddLineItem(li)
		inv.Subtotal = inv.Subtotal.Add(li.Amount)
		inv.TotalAmount = inv.TotalAmount.Add(li.Amount)
		inv.AmountDue = inv.AmountDue.Add(li.Amount)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	ip.logger.WithFields(logger.Fields{
		"file_path":      filePath,
		"total_lines":    stats.TotalLines,
		"invoices":       len(invoices),
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Invoice parsing completed")

	if stats.HasErrors() {
		ip.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return invoices, stats, nil
}

// buildInvoice creates the Invoice shell from the first row seen for a number
func (ip *InvoiceParser) buildInvoice(record []string, parseCtx *ParseContext, firmID, invoiceNumber string) *models.Invoice {
	inv := models.NewInvoice(
		uuid.New().String(),
		firmID,
		invoiceNumber,
		ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("client_name")),
		decimal.Zero,
	)
	inv.MatterNumber = ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("matter_number"))
	inv.BillingAttorney = ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("billing_attorney"))

	if statusStr := ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("status")); statusStr != "" {
		status := models.InvoiceStatus(statusStr)
		if status.IsValid() {
			inv.Status = status
		}
	} else if ip.config.DefaultStatus != "" {
		inv.Status = models.InvoiceStatus(ip.config.DefaultStatus)
	}

	if dateStr := ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("invoice_date")); dateStr != "" {
		if date, err := models.ParseDateWithFormats(dateStr); err == nil {
			inv.InvoiceDate = date
		}
	}

	return inv
}

// parseLineItem creates a LineItem from one CSV row
func (ip *InvoiceParser) parseLineItem(record []string, parseCtx *ParseContext) (*models.LineItem, *ParseError) {
	li := &models.LineItem{
		ID:          uuid.New().String(),
		Description: ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("description")),
		Timekeeper:  ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("timekeeper")),
		ItemType:    models.ItemTypeTime,
	}

	// Date and timekeeper are optional; an unparseable date is an error
	// rather than silently treated as absent.
	if dateStr := ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("date")); dateStr != "" {
		date, err := models.ParseDateWithFormats(dateStr)
		if err != nil {
			return nil, &ParseError{
				Line:    parseCtx.LineNumber,
				Field:   ip.config.GetColumnName("date"),
				Value:   dateStr,
				Message: "invalid date",
				Err:     err,
			}
		}
		li.Date = date
	}

	if typeStr := ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName("item_type")); typeStr != "" {
		itemType, err := models.ParseItemType(typeStr)
		if err != nil {
			return nil, &ParseError{
				Line:    parseCtx.LineNumber,
				Field:   ip.config.GetColumnName("item_type"),
				Value:   typeStr,
				Message: "invalid item type",
				Err:     err,
			}
		}
		li.ItemType = itemType
	}

	var parseErr *ParseError
	li.Hours, parseErr = ip.parseDecimalField(record, parseCtx, "hours")
	if parseErr != nil {
		return nil, parseErr
	}
	li.Rate, parseErr = ip.parseDecimalField(record, parseCtx, "rate")
	if parseErr != nil {
		return nil, parseErr
	}
	li.Amount, parseErr = ip.parseDecimalField(record, parseCtx, "amount")
	if parseErr != nil {
		return nil, parseErr
	}

	if err := li.Validate(); err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   "line_item",
			Message: "line item validation failed",
			Err:     err,
		}
	}

	return li, nil
}

func (ip *InvoiceParser) parseDecimalField(record []string, parseCtx *ParseContext, field string) (decimal.Decimal, *ParseError) {
	raw := ip.GetFieldValue(record, parseCtx, ip.config.GetColumnName(field))
	if raw == "" {
		return decimal.Zero, nil
	}

	value, err := models.ParseDecimalFromString(raw)
	if err != nil {
		return decimal.Zero, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   ip.config.GetColumnName(field),
			Value:   raw,
			Message: "invalid decimal value",
			Err:     err,
		}
	}
	return value, nil
}
