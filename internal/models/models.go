package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day layout used on every statement boundary
const DateLayout = "2006-01-02"

// Scope selects whose books a statement is computed for
type Scope string

const (
	// ScopeOffice is the firm's own aggregate scope ("bureau")
	ScopeOffice Scope = "office"
	// ScopeClient is a single client's scope
	ScopeClient Scope = "client"
)

// String returns the string representation of Scope
func (s Scope) String() string {
	return string(s)
}

// IsValid checks if the scope is one of the known variants
func (s Scope) IsValid() bool {
	return s == ScopeOffice || s == ScopeClient
}

// ParseScope parses a scope name, accepting the office's historical aliases
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "office", "bureau", "cgm":
		return ScopeOffice, nil
	case "client":
		return ScopeClient, nil
	default:
		return "", fmt.Errorf("invalid scope '%s': must be office or client", s)
	}
}

// FeeAmount reads the fee amount that belongs to this scope.
// Unknown scopes read as zero so they can never contribute to a total.
func (s Scope) FeeAmount(fee FeeRecord) decimal.Decimal {
	switch s {
	case ScopeOffice:
		return fee.OfficeAmount()
	case ScopeClient:
		return fee.ClientAmount()
	default:
		return decimal.Zero
	}
}

// FeeAmounts holds the two amounts a fee carries, one per scope
type FeeAmounts struct {
	Office decimal.Decimal `json:"office"`
	Client decimal.Decimal `json:"client"`
}

// FeeRecord is one fee ("honoraires") transaction
type FeeRecord struct {
	ID       string     `json:"id"`
	Date     time.Time  `json:"date"`
	Label    string     `json:"label"`
	Amounts  FeeAmounts `json:"amounts"`
	ClientID string     `json:"client_id,omitempty"`
}

// OfficeAmount returns the amount booked for the office scope
func (f FeeRecord) OfficeAmount() decimal.Decimal {
	return f.Amounts.Office
}

// ClientAmount returns the amount booked for the client scope
func (f FeeRecord) ClientAmount() decimal.Decimal {
	return f.Amounts.Client
}

// ExpenseRecord is one expense ("dépenses") transaction. Its scope is not
// stored; it is derived from markers in Description.
type ExpenseRecord struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Beneficiary string          `json:"beneficiary,omitempty"`
	ClientID    string          `json:"client_id,omitempty"`
}

// CarryOverBalance is a prior period's closing balance for one client
type CarryOverBalance struct {
	Amount   decimal.Decimal `json:"amount"`
	FromYear int             `json:"fromYear"`
}

// IsZero reports whether the carry-over has no effect on a balance
func (c *CarryOverBalance) IsZero() bool {
	return c == nil || c.Amount.IsZero()
}

// Client is the directory entry used to label client statements
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BeneficiaryStats is the pre-aggregated activity of a named beneficiary
type BeneficiaryStats struct {
	FeeTotal     decimal.Decimal `json:"feeTotal"`
	ExpenseTotal decimal.Decimal `json:"expenseTotal"`
	ExpenseLines []StatementLine `json:"expenseLines"`
	Balance      decimal.Decimal `json:"balance"`
}

// StatementLine is one presented row of a statement
type StatementLine struct {
	Date   time.Time
	Label  string
	Amount decimal.Decimal
}

// MarshalJSON renders the line as {date, label, amount} with a calendar date
// and a decimal string amount
func (l StatementLine) MarshalJSON() ([]byte, error) {
	date := ""
	if !l.Date.IsZero() {
		date = l.Date.Format(DateLayout)
	}
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Label  string `json:"label"`
		Amount string `json:"amount"`
	}{
		Date:   date,
		Label:  l.Label,
		Amount: l.Amount.String(),
	})
}

// UnmarshalJSON accepts the presented line shape; malformed amounts read as
// zero, malformed labels as blank and malformed dates as the zero time
func (l *StatementLine) UnmarshalJSON(data []byte) error {
	aux := &struct {
		Date   LenientText   `json:"date"`
		Label  LenientText   `json:"label"`
		Amount LenientAmount `json:"amount"`
	}{}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	l.Label = aux.Label.String()
	l.Amount = aux.Amount.Decimal()
	l.Date = time.Time{}
	if parsed, err := ParseTimeWithFormats(aux.Date.String(), time.UTC); err == nil {
		l.Date = parsed
	}
	return nil
}

// LenientAmount decodes an amount that may arrive as a JSON number, a string
// or null. Anything unreadable becomes zero so a malformed record keeps its
// place in the record count instead of failing the whole fetch.
type LenientAmount struct {
	value decimal.Decimal
}

// Decimal returns the decoded amount
func (a LenientAmount) Decimal() decimal.Decimal {
	return a.value
}

// UnmarshalJSON implements json.Unmarshaler
func (a *LenientAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	a.value = decimal.Zero
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		a.value = ParseAmountLenient(s)
		return nil
	}
	if d, err := decimal.NewFromString(string(data)); err == nil {
		a.value = d
	}
	return nil
}

// LenientText decodes a text field that should be a JSON string. Numbers,
// booleans, objects and null read as blank so a malformed record is kept and
// counted instead of failing the whole fetch.
type LenientText struct {
	value string
}

// String returns the decoded text
func (t LenientText) String() string {
	return t.value
}

// UnmarshalJSON implements json.Unmarshaler
func (t *LenientText) UnmarshalJSON(data []byte) error {
	t.value = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.value = s
	}
	return nil
}

// ParseDecimalFromString parses a decimal value from string with validation.
// Both "1234.50" and the French "1 234,50" notations are accepted.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.NewReplacer("€", "", "$", "", "MAD", "", "DH", "", " ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			// "1,234.50": comma is a thousands separator
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseAmountLenient parses an amount, reading anything malformed as zero
func ParseAmountLenient(s string) decimal.Decimal {
	d, err := ParseDecimalFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseTimeWithFormats parses a date or timestamp using the formats the
// office's ledgers produce. Values without an explicit offset are read in loc.
func ParseTimeWithFormats(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}
	if loc == nil {
		loc = time.UTC
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		DateLayout,
		"02/01/2006 15:04:05",
		"02/01/2006",
		"02-01-2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.ParseInLocation(format, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// NewFeeRecord creates a FeeRecord with trimmed text fields
func NewFeeRecord(id string, date time.Time, label string, office, client decimal.Decimal, clientID string) FeeRecord {
	return FeeRecord{
		ID:       strings.TrimSpace(id),
		Date:     date,
		Label:    strings.TrimSpace(label),
		Amounts:  FeeAmounts{Office: office, Client: client},
		ClientID: strings.TrimSpace(clientID),
	}
}

// NewExpenseRecord creates an ExpenseRecord with trimmed text fields
func NewExpenseRecord(id string, date time.Time, amount decimal.Decimal, description, beneficiary, clientID string) ExpenseRecord {
	return ExpenseRecord{
		ID:          strings.TrimSpace(id),
		Date:        date,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		Beneficiary: strings.TrimSpace(beneficiary),
		ClientID:    strings.TrimSpace(clientID),
	}
}

// String returns a string representation of the FeeRecord
func (f FeeRecord) String() string {
	return fmt.Sprintf("FeeRecord{ID: %s, Date: %s, Label: %q, Office: %s, Client: %s}",
		f.ID, f.Date.Format(DateLayout), f.Label, f.Amounts.Office.String(), f.Amounts.Client.String())
}

// String returns a string representation of the ExpenseRecord
func (e ExpenseRecord) String() string {
	return fmt.Sprintf("ExpenseRecord{ID: %s, Date: %s, Amount: %s, Description: %q}",
		e.ID, e.Date.Format(DateLayout), e.Amount.String(), e.Description)
}
