// Package reporter renders computed statements for people and programs.
//
// Supported output formats:
//   - Console: aligned plain-text statement for terminal display
//   - JSON: the statement result as structured data, amounts as decimal strings
//   - CSV: one row per statement line followed by the totals
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:        reporter.FormatJSON,
//		IncludeLines:  true,
//		TableMaxWidth: 100,
//	})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/models"
	"etat-statement-service/internal/statement"
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
	IncludeLines         bool `json:"include_lines"`
	IncludeSectionErrors bool `json:"include_section_errors"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width"`
	MaxLines      int `json:"max_lines"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeLines:         true,
		IncludeSectionErrors: true,
		TableMaxWidth:        100,
		MaxLines:             0,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxLines < 0 {
		return fmt.Errorf("max lines cannot be negative, got %d", c.MaxLines)
	}

	return nil
}

// ReportGenerator renders statement results in one format
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

	if config.CSVDelimiter == 0 {
		cfg := *config
		cfg.CSVDelimiter = ','
		config = &cfg
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport renders result and writes it to writer
func (rg *ReportGenerator) GenerateReport(result *statement.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("statement result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *statement.Result, writer io.Writer) error {
	ew := &errWriter{w: writer}

	ew.printf("STATEMENT\n")
	ew.printf("Period: %s\n", result.Window.String())
	switch {
	case result.Window.Mode == filter.ModeBeneficiary:
		ew.printf("Beneficiary: %s\n", result.Window.BeneficiaryName)
	case result.Scope == models.ScopeClient:
		label := result.ClientID
		if result.ClientName != "" {
			label = fmt.Sprintf("%s (%s)", result.ClientName, result.ClientID)
		}
		ew.printf("Scope: client %s\n", label)
	default:
		ew.printf("Scope: %s\n", result.Scope)
	}
	ew.printf("\n")

	if rg.config.IncludeLines {
		ew.printf("=== FEES ===\n")
		rg.printLines(ew, result.FeeLines)
		ew.printf("\n")

		ew.printf("=== EXPENSES ===\n")
		rg.printLines(ew, result.ExpenseLines)
		ew.printf("\n")
	}

	ew.printf("=== TOTALS ===\n")
	ew.printf("Fees:           %s\n", formatAmount(result.FeeTotal))
	ew.printf("Expenses:       %s\n", formatAmount(result.ExpenseTotal))
	ew.printf("Balance:        %s\n", formatAmount(result.Balance))
	if result.CarryOver != nil {
		ew.printf("Carry-over:     %s (from %d)\n", formatAmount(result.CarryOver.Amount), result.CarryOver.FromYear)
	}
	if result.FinalBalance != nil {
		ew.printf("Final balance:  %s\n", formatAmount(*result.FinalBalance))
	}

	if rg.config.IncludeSectionErrors && len(result.SectionErrors) > 0 {
		ew.printf("\n=== UNAVAILABLE SECTIONS ===\n")
		for _, se := range result.SectionErrors {
			ew.printf("  - %s: %s\n", se.Section, se.Message)
		}
	}

	return ew.err
}

func (rg *ReportGenerator) printLines(ew *errWriter, lines []models.StatementLine) {
	if len(lines) == 0 {
		ew.printf("  (none)\n")
		return
	}

	// date + amount column + separators
	labelWidth := rg.config.TableMaxWidth - len(models.DateLayout) - 20
	for i, line := range lines {
		if rg.config.MaxLines > 0 && i >= rg.config.MaxLines {
			ew.printf("  ... and %d more\n", len(lines)-rg.config.MaxLines)
			break
		}
		ew.printf("  %s  %-*s %14s\n",
			formatDate(line),
			labelWidth,
			truncate(line.Label, labelWidth),
			formatAmount(line.Amount))
	}
}

// generateJSONReport writes the result as indented JSON. The result carries
// no timestamps, so equal results give equal bytes.
func (rg *ReportGenerator) generateJSONReport(result *statement.Result, writer io.Writer) error {
	output := *result
	if !rg.config.IncludeLines {
		output.FeeLines = make([]models.StatementLine, 0)
		output.ExpenseLines = make([]models.StatementLine, 0)
	}
	if !rg.config.IncludeSectionErrors {
		output.SectionErrors = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(&output)
}

func (rg *ReportGenerator) generateCSVReport(result *statement.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write([]string{"Section", "Date", "Label", "Amount"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	records := make([][]string, 0, len(result.FeeLines)+len(result.ExpenseLines)+6)
	if rg.config.IncludeLines {
		for _, line := range result.FeeLines {
			records = append(records, []string{"fee", formatDate(line), line.Label, line.Amount.StringFixed(2)})
		}
		for _, line := range result.ExpenseLines {
			records = append(records, []string{"expense", formatDate(line), line.Label, line.Amount.StringFixed(2)})
		}
	}

	records = append(records,
		[]string{"fee_total", "", "", result.FeeTotal.StringFixed(2)},
		[]string{"expense_total", "", "", result.ExpenseTotal.StringFixed(2)},
		[]string{"balance", "", "", result.Balance.StringFixed(2)},
	)
	if result.CarryOver != nil {
		records = append(records, []string{"carry_over", "", fmt.Sprintf("from %d", result.CarryOver.FromYear), result.CarryOver.Amount.StringFixed(2)})
	}
	if result.FinalBalance != nil {
		records = append(records, []string{"final_balance", "", "", result.FinalBalance.StringFixed(2)})
	}

	for _, record := range records {
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write statement record: %w", err)
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

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatDate(line models.StatementLine) string {
	if line.Date.IsZero() {
		return strings.Repeat("-", len(models.DateLayout))
	}
	return line.Date.Format(models.DateLayout)
}

func truncate(s string, width int) string {
	if width <= 3 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

// errWriter keeps the first write error so a report is written without
// checking every line
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
