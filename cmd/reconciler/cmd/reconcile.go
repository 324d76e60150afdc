package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"invoice-reconciliation-service/cmd/reconciler/config"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/reconciler"
	"invoice-reconciliation-service/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	invoicesFile    string
	entriesFile     string
	firmID          string
	sessionName     string
	outputFormat    string
	outputFile      string
	startDate       string
	endDate         string
	matchingProfile string
	showProgress    bool

	detectDuplicates  bool
	exclusiveMatching bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile invoice line items with time entries",
	Long: `Reconcile compares invoice line items against time entries recorded in
the firm's timekeeping system. It matches each line item by date and
timekeeper, compares rates, hours, and amounts on matched pairs, and
flags line items with no supporting time entry as well as billable time
that never made it onto an invoice.

This command requires:
- An invoice line item file (CSV format)
- A time entry file (CSV format)
- The firm identifier both files belong to

Examples:
  # Basic reconciliation
  reconciler reconcile --invoices-file invoices.csv --entries-file entries.csv --firm firm-123

  # Restrict to a billing period
  reconciler reconcile --invoices-file inv.csv --entries-file te.csv --firm firm-123 \
    --start-date 2026-07-01 --end-date 2026-07-31

  # JSON report to a file
  reconciler reconcile --invoices-file inv.csv --entries-file te.csv --firm firm-123 \
    --output-format json --output-file report.json

  # Stricter matching with duplicate detection
  reconciler reconcile --invoices-file inv.csv --entries-file te.csv --firm firm-123 \
    --matching-profile strict --detect-duplicates`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVarP(&invoicesFile, "invoices-file", "i", "", "path to invoice line item CSV file (required)")
	reconcileCmd.Flags().StringVarP(&entriesFile, "entries-file", "e", "", "path to time entry CSV file (required)")
	reconcileCmd.Flags().StringVar(&firmID, "firm", "", "firm identifier the files belong to (required)")

	// Session flags
	reconcileCmd.Flags().StringVar(&sessionName, "session-name", "", "descriptive name for the reconciliation session")
	reconcileCmd.Flags().StringVar(&startDate, "start-date", "", "inclusive period start (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&endDate, "end-date", "", "inclusive period end (YYYY-MM-DD)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Matching flags
	reconcileCmd.Flags().StringVar(&matchingProfile, "matching-profile", "default", "matching profile: default, strict, relaxed")
	reconcileCmd.Flags().BoolVar(&detectDuplicates, "detect-duplicates", false, "flag likely duplicate line items within an invoice")
	reconcileCmd.Flags().BoolVar(&exclusiveMatching, "exclusive-matching", false, "allow each time entry to support at most one line item")

	// UI flags
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "log progress during long runs")

	reconcileCmd.MarkFlagRequired("invoices-file")
	reconcileCmd.MarkFlagRequired("entries-file")
	reconcileCmd.MarkFlagRequired("firm")

	viper.BindPFlag("invoices-file", reconcileCmd.Flags().Lookup("invoices-file"))
	viper.BindPFlag("entries-file", reconcileCmd.Flags().Lookup("entries-file"))
	viper.BindPFlag("firm", reconcileCmd.Flags().Lookup("firm"))
	viper.BindPFlag("session-name", reconcileCmd.Flags().Lookup("session-name"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("start-date", reconcileCmd.Flags().Lookup("start-date"))
	viper.BindPFlag("end-date", reconcileCmd.Flags().Lookup("end-date"))
	viper.BindPFlag("matching-profile", reconcileCmd.Flags().Lookup("matching-profile"))
	viper.BindPFlag("detect-duplicates", reconcileCmd.Flags().Lookup("detect-duplicates"))
	viper.BindPFlag("exclusive-matching", reconcileCmd.Flags().Lookup("exclusive-matching"))
	viper.BindPFlag("progress", reconcileCmd.Flags().Lookup("progress"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Viper values allow overrides from config file and environment.
	invoicesFile = viper.GetString("invoices-file")
	entriesFile = viper.GetString("entries-file")
	firmID = viper.GetString("firm")
	sessionName = viper.GetString("session-name")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	startDate = viper.GetString("start-date")
	endDate = viper.GetString("end-date")
	matchingProfile = viper.GetString("matching-profile")
	detectDuplicates = viper.GetBool("detect-duplicates")
	exclusiveMatching = viper.GetBool("exclusive-matching")
	showProgress = viper.GetBool("progress")

	if invoicesFile == "" {
		return fmt.Errorf("invoices-file is required")
	}
	if entriesFile == "" {
		return fmt.Errorf("entries-file is required")
	}
	if firmID == "" {
		return fmt.Errorf("firm is required")
	}

	if err := validateFileExists(invoicesFile, "invoice file"); err != nil {
		return err
	}
	if err := validateFileExists(entriesFile, "time entry file"); err != nil {
		return err
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if startDate != "" {
		if _, err := time.Parse(models.DateLayout, startDate); err != nil {
			return fmt.Errorf("invalid start date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if endDate != "" {
		if _, err := time.Parse(models.DateLayout, endDate); err != nil {
			return fmt.Errorf("invalid end date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if startDate != "" && endDate != "" {
		start, _ := time.Parse(models.DateLayout, startDate)
		end, _ := time.Parse(models.DateLayout, endDate)
		if start.After(end) {
			return fmt.Errorf("start date cannot be after end date")
		}
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	errorHandler := NewCLIErrorHandler()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting reconciliation...\n")
		fmt.Fprintf(os.Stderr, "Invoice file: %s\n", invoicesFile)
		fmt.Fprintf(os.Stderr, "Time entry file: %s\n", entriesFile)
		fmt.Fprintf(os.Stderr, "Firm: %s\n", firmID)
		fmt.Fprintf(os.Stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "Output file: %s\n", outputFile)
		}
	}

	// Assemble configurations from flags.
	invoiceConfig := config.CreateInvoiceParserConfig()
	entryConfig := config.CreateTimeEntryParserConfig()
	matchingConfig, err := config.CreateMatchingConfig(matchingProfile, detectDuplicates, exclusiveMatching)
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(invoiceConfig, entryConfig, matchingConfig); err != nil {
		return err
	}

	invoices, entries, err := parseInputs(ctx, invoiceConfig, entryConfig)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	// Build and run the session.
	session := reconciler.NewSession(firmID, sessionName)
	session.WithDateRange(parseDateFlag(startDate), parseDateFlag(endDate))

	service, err := reconciler.NewReconciliationService(config.CreateReconcilerConfig(matchingConfig, showProgress))
	if err != nil {
		return fmt.Errorf("failed to create reconciliation service: %w", err)
	}

	if showProgress {
		fmt.Fprintf(os.Stderr, "Processing reconciliation...\n")
	}

	result, err := service.Run(ctx, session, invoices, entries)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	// Generate the report.
	reportGenerator, err := reporter.NewReportGenerator(config.CreateReportConfig(outputFormat))
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := reportGenerator.GenerateReport(result, invoices, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(os.Stderr, "Processed %d invoices with %d line items.\n",
			session.InvoicesCount, session.LineItemsCount)
		fmt.Fprintf(os.Stderr, "Matched %d line items (%.1f%%), found %d discrepancies.\n",
			session.MatchedCount, session.MatchRate(), session.DiscrepancyCount)
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", result.Duration)
	}

	return nil
}

func parseInputs(
	ctx context.Context,
	invoiceConfig *parsers.InvoiceParserConfig,
	entryConfig *parsers.TimeEntryParserConfig,
) ([]*models.Invoice, []*models.TimeEntry, error) {
	invoiceParser, err := parsers.NewInvoiceParser(invoiceConfig)
	if err != nil {
		return nil, nil, err
	}
	invoices, invoiceStats, err := invoiceParser.ParseInvoicesWithContext(ctx, invoicesFile, firmID)
	if err != nil {
		return nil, nil, err
	}
	if invoiceStats.HasErrors() && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Invoice file: %s\n", invoiceStats)
	}

	entryParser, err := parsers.NewTimeEntryParser(entryConfig)
	if err != nil {
		return nil, nil, err
	}
	entries, entryStats, err := entryParser.ParseTimeEntriesWithContext(ctx, entriesFile, firmID)
	if err != nil {
		return nil, nil, err
	}
	if entryStats.HasErrors() && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Time entry file: %s\n", entryStats)
	}

	return invoices, entries, nil
}

// parseDateFlag converts a validated YYYY-MM-DD flag value to a time pointer
func parseDateFlag(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}
