// Package csvledger serves statement records from the office's CSV ledger exports.
//
// Each query re-reads its file, so a statement always reflects the latest
// export. Headers are matched through French and English aliases
// ("libellé" or "label", "montant client" or "client_amount", ...), and
// malformed rows are normalized rather than dropped: an unreadable amount
// becomes zero and an unreadable date leaves the record outside every
// bounded window.
//
// Expected files:
//
//	fees.csv       id, date, label, office_amount, client_amount, client_id
//	expenses.csv   id, date, amount, description, beneficiary, client_id
//	carryover.csv  client_id, year, amount, from_year
//	clients.csv    id, name
package csvledger

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/ledger"
	"etat-statement-service/internal/models"
	"etat-statement-service/pkg/errors"
	"etat-statement-service/pkg/logger"
)

var feeColumns = []column{
	{name: "id", aliases: []string{"id", "ref", "reference", "numero"}},
	{name: "date", aliases: []string{"date", "date_operation", "date_paiement", "transaction_date"}},
	{name: "label", aliases: []string{"label", "libelle", "libellé", "designation", "description"}},
	{name: "office_amount", aliases: []string{"office_amount", "montant_bureau", "montant_cgm", "amount_office"}},
	{name: "client_amount", aliases: []string{"client_amount", "montant_client", "amount_client"}},
	{name: "amount", aliases: []string{"amount", "montant"}},
	{name: "client_id", aliases: []string{"client_id", "id_client", "client"}},
}

var expenseColumns = []column{
	{name: "id", aliases: []string{"id", "ref", "reference", "numero"}},
	{name: "date", aliases: []string{"date", "date_operation", "transaction_date"}},
	{name: "amount", aliases: []string{"amount", "montant"}},
	{name: "description", aliases: []string{"description", "libelle", "libellé", "label", "designation"}},
	{name: "beneficiary", aliases: []string{"beneficiary", "beneficiaire", "bénéficiaire", "payee"}},
	{name: "client_id", aliases: []string{"client_id", "id_client", "client"}},
}

var carryOverColumns = []column{
	{name: "client_id", aliases: []string{"client_id", "id_client", "client"}},
	{name: "year", aliases: []string{"year", "annee", "année", "exercice"}},
	{name: "amount", aliases: []string{"amount", "montant", "solde", "solde_reporte", "solde_reporté"}},
	{name: "from_year", aliases: []string{"from_year", "annee_origine", "année_origine"}},
}

var clientColumns = []column{
	{name: "id", aliases: []string{"id", "client_id", "id_client"}},
	{name: "name", aliases: []string{"name", "nom", "raison_sociale", "client_name"}},
}

// Config locates the ledger files
type Config struct {
	FeesFile      string
	ExpensesFile  string
	CarryOverFile string
	ClientsFile   string

	// Location is the zone dates without an offset are read in
	Location *time.Location
	Read     *ReadConfig
}

// Validate checks that the mandatory files are configured
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FeesFile) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "fees-file", c.FeesFile, nil)
	}
	if strings.TrimSpace(c.ExpensesFile) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "expenses-file", c.ExpensesFile, nil)
	}
	return nil
}

// ReadStats summarizes one file read
type ReadStats struct {
	Rows       int
	Normalized int
}

// String returns a human-readable summary
func (s ReadStats) String() string {
	return fmt.Sprintf("Read %d rows, %d normalized", s.Rows, s.Normalized)
}

// Ledger implements every ledger contract over CSV files
type Ledger struct {
	config *Config
	logger logger.Logger
}

// New creates a CSV ledger
func New(config *Config) (*Ledger, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "csv ledger", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg := *config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Read == nil {
		cfg.Read = DefaultReadConfig()
	}

	log := logger.WithComponent("csv_ledger")
	log.WithFields(logger.Fields{
		"fees_file":      cfg.FeesFile,
		"expenses_file":  cfg.ExpensesFile,
		"carryover_file": cfg.CarryOverFile,
		"clients_file":   cfg.ClientsFile,
	}).Debug("Created CSV ledger")

	return &Ledger{config: &cfg, logger: log}, nil
}

// Sources exposes the ledger as the full set of statement sources
func (l *Ledger) Sources() ledger.Sources {
	return ledger.Sources{
		Fees:          l,
		Expenses:      l,
		Clients:       l,
		CarryOver:     l,
		Beneficiaries: l,
	}
}

// QueryFees implements ledger.FeeLedger
func (l *Ledger) QueryFees(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.FeeRecord, error) {
	fees, _, err := l.ReadFees(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.SelectFees(fees, scope, clientID, window), nil
}

// QueryExpenses implements ledger.ExpenseLedger
func (l *Ledger) QueryExpenses(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.ExpenseRecord, error) {
	expenses, _, err := l.ReadExpenses(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.SelectExpenses(expenses, scope, clientID, window), nil
}

// ReadFees reads every fee record in the fees file
func (l *Ledger) ReadFees(ctx context.Context) ([]models.FeeRecord, ReadStats, error) {
	var stats ReadStats
	path := l.config.FeesFile

	t, err := openTable(ctx, path, l.config.Read, feeColumns, []string{"date", "label"}, l.logger)
	if err != nil {
		return nil, stats, err
	}
	defer t.Close()

	hasSplit := t.has("office_amount") || t.has("client_amount")
	if !hasSplit && !t.has("amount") {
		return nil, stats, errors.ParseError(errors.CodeMissingColumn, path, 1, "office_amount, client_amount", nil).
			WithSuggestion("Provide office_amount/client_amount columns, or a single amount column")
	}

	var fees []models.FeeRecord
	for {
		record, err := t.next(l.config.Read.SkipEmptyRows)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, err
		}
		stats.Rows++

		normalized := false
		date, ok := l.parseDate(t.field(record, "date"))
		normalized = normalized || !ok

		var office, client decimal.Decimal
		if hasSplit {
			office, ok = optionalAmount(t.field(record, "office_amount"))
			normalized = normalized || !ok
			client, ok = optionalAmount(t.field(record, "client_amount"))
			normalized = normalized || !ok
		} else {
			office, ok = parseAmount(t.field(record, "amount"))
			normalized = normalized || !ok
			client = office
		}

		id := t.field(record, "id")
		if id == "" {
			id = fmt.Sprintf("%s:%d", path, t.line)
		}

		if normalized {
			stats.Normalized++
			l.logger.WithFields(logger.Fields{
				"file_path":   path,
				"line_number": t.line,
			}).Warn("Normalized malformed fee row")
		}

		fees = append(fees, models.NewFeeRecord(id, date, t.field(record, "label"), office, client, t.field(record, "client_id")))
	}

	l.logger.WithFields(logger.Fields{
		"file_path":  path,
		"rows":       stats.Rows,
		"normalized": stats.Normalized,
	}).Debug("Read fee ledger")

	return fees, stats, nil
}

// ReadExpenses reads every expense record in the expenses file
func (l *Ledger) ReadExpenses(ctx context.Context) ([]models.ExpenseRecord, ReadStats, error) {
	var stats ReadStats
	path := l.config.ExpensesFile

	t, err := openTable(ctx, path, l.config.Read, expenseColumns, []string{"date", "amount", "description"}, l.logger)
	if err != nil {
		return nil, stats, err
	}
	defer t.Close()

	var expenses []models.ExpenseRecord
	for {
		record, err := t.next(l.config.Read.SkipEmptyRows)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, err
		}
		stats.Rows++

		date, dateOK := l.parseDate(t.field(record, "date"))
		amount, amountOK := parseAmount(t.field(record, "amount"))
		if !dateOK || !amountOK {
			stats.Normalized++
			l.logger.WithFields(logger.Fields{
				"file_path":   path,
				"line_number": t.line,
			}).Warn("Normalized malformed expense row")
		}

		id := t.field(record, "id")
		if id == "" {
			id = fmt.Sprintf("%s:%d", path, t.line)
		}

		expenses = append(expenses, models.NewExpenseRecord(id, date, amount,
			t.field(record, "description"), t.field(record, "beneficiary"), t.field(record, "client_id")))
	}

	l.logger.WithFields(logger.Fields{
		"file_path":  path,
		"rows":       stats.Rows,
		"normalized": stats.Normalized,
	}).Debug("Read expense ledger")

	return expenses, stats, nil
}

// GetClient implements ledger.ClientDirectory
func (l *Ledger) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	if strings.TrimSpace(l.config.ClientsFile) == "" {
		return nil, ledger.ErrClientNotFound
	}

	t, err := openTable(ctx, l.config.ClientsFile, l.config.Read, clientColumns, []string{"id", "name"}, l.logger)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	for {
		record, err := t.next(l.config.Read.SkipEmptyRows)
		if err == io.EOF {
			return nil, ledger.ErrClientNotFound
		}
		if err != nil {
			return nil, err
		}
		if t.field(record, "id") == clientID {
			return &models.Client{ID: clientID, Name: t.field(record, "name")}, nil
		}
	}
}

// GetCarryOver implements ledger.CarryOverLedger. Without a carry-over file
// every client has no carry-over.
func (l *Ledger) GetCarryOver(ctx context.Context, clientID string, year int) (*models.CarryOverBalance, error) {
	path := l.config.CarryOverFile
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	t, err := openTable(ctx, path, l.config.Read, carryOverColumns, []string{"client_id", "year", "amount"}, l.logger)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	for {
		record, err := t.next(l.config.Read.SkipEmptyRows)
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if t.field(record, "client_id") != clientID {
			continue
		}
		rowYear, convErr := strconv.Atoi(t.field(record, "year"))
		if convErr != nil || rowYear != year {
			continue
		}

		amount, ok := parseAmount(t.field(record, "amount"))
		if !ok {
			l.logger.WithFields(logger.Fields{
				"file_path":   path,
				"line_number": t.line,
			}).Warn("Normalized malformed carry-over amount")
		}

		fromYear := year - 1
		if v, convErr := strconv.Atoi(t.field(record, "from_year")); convErr == nil {
			fromYear = v
		}

		return &models.CarryOverBalance{Amount: amount, FromYear: fromYear}, nil
	}
}

// GetBeneficiaryStats implements ledger.BeneficiaryStatistics by aggregating
// both files over their whole history
func (l *Ledger) GetBeneficiaryStats(ctx context.Context, name string) (*models.BeneficiaryStats, error) {
	fees, _, err := l.ReadFees(ctx)
	if err != nil {
		return nil, err
	}
	expenses, _, err := l.ReadExpenses(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.AggregateBeneficiary(name, fees, expenses), nil
}

func (l *Ledger) parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := models.ParseTimeWithFormats(value, l.config.Location)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseAmount reads an amount; blank and malformed values read as zero and
// report false
func parseAmount(value string) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, false
	}
	d, err := models.ParseDecimalFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// optionalAmount reads a split fee amount where a blank cell means zero
func optionalAmount(value string) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, true
	}
	return parseAmount(value)
}
