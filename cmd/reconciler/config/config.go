// Package config assembles component configurations for the CLI from
// flag values.
package config

import (
	"fmt"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/internal/reporter"
)

// CreateInvoiceParserConfig creates the invoice parser configuration,
// extending the default column mappings with common aliases seen in
// billing exports.
func CreateInvoiceParserConfig() *parsers.InvoiceParserConfig {
	config := parsers.DefaultInvoiceParserConfig()

	// Common header variants from practice management exports.
	config.ColumnMappings["invoice_number"] = "invoice_number"
	config.ColumnMappings["client_name"] = "client_name"
	config.ColumnMappings["timekeeper"] = "timekeeper"

	return config
}

// CreateTimeEntryParserConfig creates the time entry parser configuration
func CreateTimeEntryParserConfig() *parsers.TimeEntryParserConfig {
	return parsers.DefaultTimeEntryParserConfig()
}

// CreateMatchingConfig creates a matching configuration from the named
// profile with CLI overrides applied
func CreateMatchingConfig(profile string, detectDuplicates, exclusiveMatching bool) (*matcher.MatchingConfig, error) {
	var config *matcher.MatchingConfig

	switch profile {
	case "", "default":
		config = matcher.DefaultMatchingConfig()
	case "strict":
		config = matcher.StrictMatchingConfig()
	case "relaxed":
		config = matcher.RelaxedMatchingConfig()
	default:
		return nil, fmt.Errorf("unknown matching profile: %s (valid: default, strict, relaxed)", profile)
	}

	config.DetectDuplicates = detectDuplicates
	config.ExclusiveMatching = exclusiveMatching

	return config, nil
}

// CreateReconcilerConfig creates a reconciler configuration
func CreateReconcilerConfig(matchingConfig *matcher.MatchingConfig, showProgress bool) *reconciler.Config {
	config := reconciler.DefaultConfig()
	config.Matching = matchingConfig
	config.ProgressReporting = showProgress
	return config
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}

	return config
}

// ValidateConfig validates that all assembled configurations are consistent
func ValidateConfig(
	invoiceConfig *parsers.InvoiceParserConfig,
	entryConfig *parsers.TimeEntryParserConfig,
	matchingConfig *matcher.MatchingConfig,
) error {
	if err := invoiceConfig.Validate(); err != nil {
		return fmt.Errorf("invalid invoice parser config: %w", err)
	}
	if err := entryConfig.Validate(); err != nil {
		return fmt.Errorf("invalid time entry parser config: %w", err)
	}
	if err := matchingConfig.Validate(); err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}
	return nil
}
