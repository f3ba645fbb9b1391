package statement

import (
	"time"

	"github.com/shopspring/decimal"

	"etat-statement-service/internal/classifier"
	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/models"
)

// Aggregate builds a statement from classified fees and expenses.
// The balance is signed; a deficit is a valid balance.
func Aggregate(fees, expenses classifier.Classification) Statement {
	stmt := EmptyStatement()
	if fees.Lines != nil {
		stmt.FeeLines = fees.Lines
	}
	if expenses.Lines != nil {
		stmt.ExpenseLines = expenses.Lines
	}
	stmt.FeeTotal = fees.Total.Add(decimal.Zero)
	stmt.ExpenseTotal = expenses.Total.Add(decimal.Zero)
	stmt.Balance = stmt.FeeTotal.Sub(stmt.ExpenseTotal)
	return stmt
}

// ApplyCarryOver sets the final balance of a client statement.
// A nil or zero carry-over leaves FinalBalance equal to Balance and shows no
// carry-over line.
func ApplyCarryOver(stmt *Statement, carryOver *models.CarryOverBalance) {
	amount := decimal.Zero
	if carryOver != nil {
		amount = carryOver.Amount
	}

	final := stmt.Balance.Add(amount)
	stmt.FinalBalance = &final

	stmt.CarryOver = nil
	if !carryOver.IsZero() {
		stmt.CarryOver = &models.CarryOverBalance{
			Amount:   carryOver.Amount,
			FromYear: carryOver.FromYear,
		}
	}
}

// ReferenceYear returns the single year a carry-over applies to: the
// explicit year for year and month windows, the start day's year for day
// and range windows, otherwise the current year in the window's zone.
func ReferenceYear(window filter.Window, now time.Time) int {
	switch window.Mode {
	case filter.ModeYear, filter.ModeMonth:
		if window.Year != 0 {
			return window.Year
		}
		return window.Start.Year()
	case filter.ModeDay, filter.ModeRange:
		return window.Start.Year()
	default:
		return now.In(window.Location()).Year()
	}
}

// FromBeneficiaryStats republishes pre-aggregated beneficiary statistics as
// a statement, without recomputing or checking any total
func FromBeneficiaryStats(stats *models.BeneficiaryStats) Statement {
	stmt := EmptyStatement()
	if stats == nil {
		return stmt
	}

	if stats.ExpenseLines != nil {
		stmt.ExpenseLines = stats.ExpenseLines
	}
	stmt.FeeTotal = stats.FeeTotal.Add(decimal.Zero)
	stmt.ExpenseTotal = stats.ExpenseTotal.Add(decimal.Zero)
	stmt.Balance = stats.Balance.Add(decimal.Zero)
	return stmt
}
