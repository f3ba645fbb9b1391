// Package ledger defines the record sources a statement is computed from.
//
// Sources are consulted on every statement request; implementations must not
// serve cached records across requests. Three implementations are provided:
// memory (tests and embedding), csvledger (ledger exports on disk) and
// httpledger (the office's REST ledger).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/models"
)

// ErrClientNotFound is returned by a ClientDirectory for an unknown client id
var ErrClientNotFound = errors.New("client not found")

// FeeLedger returns raw fee records for a scope, an optional client and a window
type FeeLedger interface {
	QueryFees(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.FeeRecord, error)
}

// ExpenseLedger returns raw expense records for a scope, an optional client and a window
type ExpenseLedger interface {
	QueryExpenses(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.ExpenseRecord, error)
}

// ClientDirectory resolves a client id for display labeling
type ClientDirectory interface {
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
}

// CarryOverLedger returns a client's carry-over for a reference year.
// A nil balance with a nil error means no carry-over exists.
type CarryOverLedger interface {
	GetCarryOver(ctx context.Context, clientID string, year int) (*models.CarryOverBalance, error)
}

// BeneficiaryStatistics returns the pre-aggregated activity of a beneficiary.
// A nil result with a nil error means the beneficiary has no activity.
type BeneficiaryStatistics interface {
	GetBeneficiaryStats(ctx context.Context, name string) (*models.BeneficiaryStats, error)
}

// Sources groups the collaborators a statement engine consumes
type Sources struct {
	Fees          FeeLedger
	Expenses      ExpenseLedger
	Clients       ClientDirectory
	CarryOver     CarryOverLedger
	Beneficiaries BeneficiaryStatistics
}

// Validate checks that the mandatory sources are present
func (s Sources) Validate() error {
	if s.Fees == nil {
		return fmt.Errorf("fee ledger is required")
	}
	if s.Expenses == nil {
		return fmt.Errorf("expense ledger is required")
	}
	return nil
}

// SelectFees narrows fee records the way a ledger query does: client scope
// keeps the given client's records, and bounded windows keep records whose
// calendar day is inside the window.
func SelectFees(records []models.FeeRecord, scope models.Scope, clientID string, window filter.Window) []models.FeeRecord {
	selected := make([]models.FeeRecord, 0, len(records))
	for _, record := range records {
		if scope == models.ScopeClient && clientID != "" && record.ClientID != clientID {
			continue
		}
		if !window.Contains(record.Date) {
			continue
		}
		selected = append(selected, record)
	}
	return selected
}

// SelectExpenses narrows expense records like SelectFees
func SelectExpenses(records []models.ExpenseRecord, scope models.Scope, clientID string, window filter.Window) []models.ExpenseRecord {
	selected := make([]models.ExpenseRecord, 0, len(records))
	for _, record := range records {
		if scope == models.ScopeClient && clientID != "" && record.ClientID != clientID {
			continue
		}
		if !window.Contains(record.Date) {
			continue
		}
		selected = append(selected, record)
	}
	return selected
}

// AggregateBeneficiary builds beneficiary statistics from raw records.
// Expenses match on their beneficiary field and fees on their label, both by
// case-insensitive substring. Fee totals read the office amount.
func AggregateBeneficiary(name string, fees []models.FeeRecord, expenses []models.ExpenseRecord) *models.BeneficiaryStats {
	needle := strings.ToLower(strings.TrimSpace(name))
	stats := &models.BeneficiaryStats{
		FeeTotal:     decimal.Zero,
		ExpenseTotal: decimal.Zero,
		ExpenseLines: make([]models.StatementLine, 0),
		Balance:      decimal.Zero,
	}
	if needle == "" {
		return stats
	}

	for _, fee := range fees {
		if strings.Contains(strings.ToLower(fee.Label), needle) {
			stats.FeeTotal = stats.FeeTotal.Add(fee.OfficeAmount())
		}
	}

	for _, expense := range expenses {
		if !strings.Contains(strings.ToLower(expense.Beneficiary), needle) {
			continue
		}
		stats.ExpenseLines = append(stats.ExpenseLines, models.StatementLine{
			Date:   expense.Date,
			Label:  expense.Description,
			Amount: expense.Amount,
		})
		stats.ExpenseTotal = stats.ExpenseTotal.Add(expense.Amount)
	}

	stats.Balance = stats.FeeTotal.Sub(stats.ExpenseTotal)
	return stats
}
