package parsers

import (
	"context"
	"io"
	"strings"

	"invoice-reconciliation-service/internal/models"
	apperrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// TimeEntryParser parses time entry CSV exports from timekeeping systems
type TimeEntryParser struct {
	*BaseParser
	config *TimeEntryParserConfig
	logger logger.Logger
}

// NewTimeEntryParser creates a new TimeEntryParser with the given configuration
func NewTimeEntryParser(config *TimeEntryParserConfig) (*TimeEntryParser, error) {
	if config == nil {
		config = DefaultTimeEntryParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(
			apperrors.CodeInvalidConfig,
			"time_entry_parser_config",
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

	return &TimeEntryParser{
		BaseParser: baseParser,
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("time_entry_parser"),
	}, nil
}

// ParseTimeEntries parses a CSV file of time entries for the given firm
func (tp *TimeEntryParser) ParseTimeEntries(filePath, firmID string) ([]*models.TimeEntry, *ParseStats, error) {
	return tp.ParseTimeEntriesWithContext(context.Background(), filePath, firmID)
}

// ParseTimeEntriesWithContext parses time entries with cancellation support
func (tp *TimeEntryParser) ParseTimeEntriesWithContext(ctx context.Context, filePath, firmID string) ([]*models.TimeEntry, *ParseStats, error) {
	tp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"firm_id":   firmID,
	}).Info("Starting time entry parsing")

	file, reader, err := tp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	requiredHeaders := []string{
		tp.config.GetColumnName("entry_id"),
		tp.config.GetColumnName("date"),
		tp.config.GetColumnName("timekeeper"),
		tp.config.GetColumnName("description"),
	}
	if err := tp.ReadHeaders(reader, parseCtx, filePath, requiredHeaders); err != nil {
		return nil, stats, err
	}

	var entries []*models.TimeEntry

	for {
		record, err := tp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			if appErr, ok := apperrors.AsReconcilerError(err); ok && appErr.Category == apperrors.CategoryInternal {
				return entries, stats, appErr
			}

			tp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber).Warn("Failed to read record")
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Message: "malformed CSV record",
				Err:     err,
			})
			continue
		}

		stats.RecordsParsed++

		entry, parseErr := tp.parseTimeEntry(record, parseCtx, firmID)
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		entries = append(entries, entry)
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	tp.logger.WithFields(logger.Fields{
		"file_path":      filePath,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Time entry parsing completed")

	if stats.HasErrors() {
		tp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return entries, stats, nil
}

// parseTimeEntry creates a TimeEntry from one CSV row
func (tp *TimeEntryParser) parseTimeEntry(record []string, parseCtx *ParseContext, firmID string) (*models.TimeEntry, *ParseError) {
	entryID := tp.GetFieldValue(record, parseCtx, tp.config.GetColumnName("entry_id"))
	if entryID == "" {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   tp.config.GetColumnName("entry_id"),
			Message: "entry ID is required",
		}
	}

	dateStr := tp.GetFieldValue(record, parseCtx, tp.config.GetColumnName("date"))
	if dateStr == "" {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   tp.config.GetColumnName("date"),
			Message: "date is required",
		}
	}
	date, err := models.ParseDateWithFormats(dateStr)
	if err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   tp.config.GetColumnName("date"),
			Value:   dateStr,
			Message: "invalid date",
			Err:     err,
		}
	}

	hours, parseErr := tp.parseDecimalField(record, parseCtx, "hours")
	if parseErr != nil {
		return nil, parseErr
	}
	rate, parseErr := tp.parseDecimalField(record, parseCtx, "rate")
	if parseErr != nil {
		return nil, parseErr
	}
	total, parseErr := tp.parseDecimalField(record, parseCtx, "total")
	if parseErr != nil {
		return nil, parseErr
	}

	// A total column is often absent; derive it from hours and rate so
	// amount comparisons still have something to work against.
	if total.IsZero() && !hours.IsZero() && !rate.IsZero() {
		total = hours.Mul(rate)
	}

	entry := models.NewTimeEntry(
		entryID,
		firmID,
		date,
		tp.GetFieldValue(record, parseCtx, tp.config.GetColumnName("timekeeper")),
		tp.GetFieldValue(record, parseCtx, tp.config.GetColumnName("description")),
		hours,
		rate,
		total,
	)
	entry.MatterNumber = tp.GetFieldValue(record, parseCtx, tp.config.GetColumnName("matter_number"))

	if billableStr := tp.GetFieldValue(record, parseCtx, tp.config.GetColumnName("billable")); billableStr != "" {
		entry.Billable = parseBillable(billableStr)
	} else {
		entry.Billable = tp.config.DefaultBillable
	}

	if err := entry.Validate(); err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   "time_entry",
			Value:   entryID,
			Message: "time entry validation failed",
			Err:     err,
		}
	}

	return entry, nil
}

func (tp *TimeEntryParser) parseDecimalField(record []string, parseCtx *ParseContext, field string) (decimal.Decimal, *ParseError) {
	raw := tp.GetFieldValue(record, parseCtx, tp.config.GetColumnName(field))
	if raw == "" {
		return decimal.Zero, nil
	}

	value, err := models.ParseDecimalFromString(raw)
	if err != nil {
		return decimal.Zero, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   tp.config.GetColumnName(field),
			Value:   raw,
			Message: "invalid decimal value",
			Err:     err,
		}
	}
	return value, nil
}

// parseBillable interprets the billable flag variants seen in exports
func parseBillable(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1", "billable":
		return true
	default:
		return false
	}
}
