package classifier

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/models"
)

// Classification is the outcome of classifying one record stream
type Classification struct {
	Lines []models.StatementLine
	Total decimal.Decimal

	// Inspected is the number of input records, kept so a total can be
	// audited against the size of the fetched set
	Inspected int
}

// Skipped returns how many inspected records did not make it into Lines
func (c Classification) Skipped() int {
	return c.Inspected - len(c.Lines)
}

// Classifier applies a Vocabulary to fee and expense records
type Classifier struct {
	vocab *Vocabulary
}

// New creates a classifier. A nil vocabulary selects DefaultVocabulary.
func New(vocab *Vocabulary) (*Classifier, error) {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if err := vocab.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vocabulary: %w", err)
	}
	return &Classifier{vocab: vocab.Clone()}, nil
}

// Vocabulary returns a copy of the classifier's markers
func (c *Classifier) Vocabulary() *Vocabulary {
	return c.vocab.Clone()
}

// ClassifyFees keeps the received fees of scope inside window.
// A fee is kept when its date is in the window, its label carries a
// received-fee marker and no declaration-advance marker, and the amount
// booked for scope is strictly positive.
func (c *Classifier) ClassifyFees(records []models.FeeRecord, window filter.Window, scope models.Scope) Classification {
	result := Classification{
		Lines:     make([]models.StatementLine, 0),
		Total:     decimal.Zero,
		Inspected: len(records),
	}

	for _, record := range records {
		if !window.Contains(record.Date) {
			continue
		}
		if c.vocab.IsDeclarationAdvance(record.Label) {
			continue
		}
		if !c.vocab.IsReceivedFee(record.Label) {
			continue
		}

		amount := scope.FeeAmount(record)
		if !amount.IsPositive() {
			continue
		}

		result.Lines = append(result.Lines, models.StatementLine{
			Date:   lineDate(record.Date, window),
			Label:  record.Label,
			Amount: amount,
		})
		result.Total = result.Total.Add(amount)
	}

	return result
}

// ClassifyExpenses keeps the expenses of scope inside window.
// Received-fee and declaration-advance entries are dropped first, then office
// scope keeps office-tagged descriptions and client scope keeps the rest. The
// window is always re-applied, whatever the upstream query already filtered.
func (c *Classifier) ClassifyExpenses(records []models.ExpenseRecord, window filter.Window, scope models.Scope) Classification {
	result := Classification{
		Lines:     make([]models.StatementLine, 0),
		Total:     decimal.Zero,
		Inspected: len(records),
	}

	for _, record := range records {
		if c.vocab.IsReceivedFee(record.Description) || c.vocab.IsDeclarationAdvance(record.Description) {
			continue
		}
		if c.ExpenseScope(record) != scope {
			continue
		}
		if !window.Contains(record.Date) {
			continue
		}

		amount := record.Amount
		result.Lines = append(result.Lines, models.StatementLine{
			Date:   lineDate(record.Date, window),
			Label:  c.vocab.StripOfficeMarkers(record.Description),
			Amount: amount,
		})
		result.Total = result.Total.Add(amount)
	}

	return result
}

// ExpenseScope derives the single scope an expense belongs to
func (c *Classifier) ExpenseScope(record models.ExpenseRecord) models.Scope {
	if c.vocab.IsOfficeTagged(record.Description) {
		return models.ScopeOffice
	}
	return models.ScopeClient
}

// lineDate returns the calendar day of t in the window's reference zone
func lineDate(t time.Time, window filter.Window) time.Time {
	if t.IsZero() {
		return t
	}
	return filter.CalendarDay(t, window.Location())
}
