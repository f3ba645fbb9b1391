package statement

import (
	"strings"

	"github.com/shopspring/decimal"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/models"
	"etat-statement-service/pkg/errors"
)

// Section names used in SectionErrors, logs and metrics
const (
	SectionFees        = "fees"
	SectionExpenses    = "expenses"
	SectionCarryOver   = "carry_over"
	SectionBeneficiary = "beneficiary"
)

// Computation paths used in metrics
const (
	PathWindow      = "window"
	PathBeneficiary = "beneficiary"
)

// Context is the statement context a computation runs for. It is set by the
// caller for each request and read once when the computation starts.
type Context struct {
	Scope    models.Scope `json:"scope"`
	ClientID string       `json:"clientId,omitempty"`
}

// Office returns the office-scope context
func Office() Context {
	return Context{Scope: models.ScopeOffice}
}

// ForClient returns the client-scope context of clientID
func ForClient(clientID string) Context {
	return Context{Scope: models.ScopeClient, ClientID: clientID}
}

// Validate checks the scope and, for client scope, the client id
func (c Context) Validate() error {
	if !c.Scope.IsValid() {
		return errors.ValidationError(errors.CodeInvalidScope, "scope", c.Scope)
	}
	if c.Scope == models.ScopeClient && strings.TrimSpace(c.ClientID) == "" {
		return errors.ValidationError(errors.CodeMissingClient, "clientId", c.ClientID)
	}
	return nil
}

// Request is one statement computation request
type Request struct {
	Filter  filter.FilterSpec `json:"filter"`
	Context Context           `json:"context"`
}

// SectionError reports a section that could not be fetched; the section's
// totals in the result are zero
type SectionError struct {
	Section string `json:"section"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e SectionError) Error() string {
	return e.Section + ": " + e.Message
}

// Unwrap returns the underlying fetch error
func (e SectionError) Unwrap() error {
	return e.Err
}

// Statement is the presented statement ("état")
type Statement struct {
	FeeLines     []models.StatementLine   `json:"feeLines"`
	ExpenseLines []models.StatementLine   `json:"expenseLines"`
	FeeTotal     decimal.Decimal          `json:"feeTotal"`
	ExpenseTotal decimal.Decimal          `json:"expenseTotal"`
	Balance      decimal.Decimal          `json:"balance"`
	CarryOver    *models.CarryOverBalance `json:"carryOver,omitempty"`
	FinalBalance *decimal.Decimal         `json:"finalBalance,omitempty"`
}

// EmptyStatement returns a statement with zero totals and no lines
func EmptyStatement() Statement {
	return Statement{
		FeeLines:     make([]models.StatementLine, 0),
		ExpenseLines: make([]models.StatementLine, 0),
		FeeTotal:     decimal.Zero,
		ExpenseTotal: decimal.Zero,
		Balance:      decimal.Zero,
	}
}

// Result is a computed statement with the context it was computed for.
// It carries no timestamps, so identical inputs give identical output.
type Result struct {
	Scope      models.Scope  `json:"scope,omitempty"`
	ClientID   string        `json:"clientId,omitempty"`
	ClientName string        `json:"clientName,omitempty"`
	Window     filter.Window `json:"window"`

	Statement

	SectionErrors []SectionError `json:"sectionErrors,omitempty"`

	// Generation is set by a Session to the request generation that produced the result
	Generation uint64 `json:"-"`
}

// Partial reports whether at least one section failed
func (r *Result) Partial() bool {
	return len(r.SectionErrors) > 0
}

// SectionFailed reports whether the named section failed
func (r *Result) SectionFailed(section string) bool {
	for _, se := range r.SectionErrors {
		if se.Section == section {
			return true
		}
	}
	return false
}

// HasCarryOver reports whether a carry-over line is shown
func (r *Result) HasCarryOver() bool {
	return r.CarryOver != nil
}
