package httpledger

import (
	"time"

	"etat-statement-service/internal/models"
)

// Wire shapes of the REST ledger. Amounts may arrive as numbers, strings or
// null; dates as calendar days or timestamps. Anything unreadable is
// normalized to a zero amount, a zero date or a blank text.

type feeDTO struct {
	ID           models.LenientText   `json:"id"`
	Date         models.LenientText   `json:"date"`
	Label        models.LenientText   `json:"label"`
	OfficeAmount models.LenientAmount `json:"office_amount"`
	ClientAmount models.LenientAmount `json:"client_amount"`
	ClientID     models.LenientText   `json:"client_id"`
}

func (d feeDTO) toModel(loc *time.Location) models.FeeRecord {
	return models.NewFeeRecord(d.ID.String(), parseDate(d.Date.String(), loc), d.Label.String(),
		d.OfficeAmount.Decimal(), d.ClientAmount.Decimal(), d.ClientID.String())
}

type expenseDTO struct {
	ID          models.LenientText   `json:"id"`
	Date        models.LenientText   `json:"date"`
	Amount      models.LenientAmount `json:"amount"`
	Description models.LenientText   `json:"description"`
	Beneficiary models.LenientText   `json:"beneficiary"`
	ClientID    models.LenientText   `json:"client_id"`
}

func (d expenseDTO) toModel(loc *time.Location) models.ExpenseRecord {
	return models.NewExpenseRecord(d.ID.String(), parseDate(d.Date.String(), loc), d.Amount.Decimal(),
		d.Description.String(), d.Beneficiary.String(), d.ClientID.String())
}

type carryOverDTO struct {
	Amount   models.LenientAmount `json:"amount"`
	FromYear int                  `json:"fromYear"`
}

type beneficiaryDTO struct {
	FeeTotal     models.LenientAmount   `json:"feeTotal"`
	ExpenseTotal models.LenientAmount   `json:"expenseTotal"`
	ExpenseLines []models.StatementLine `json:"expenseLines"`
	Balance      models.LenientAmount   `json:"balance"`
}

// toModel republishes the collaborator's totals as sent, without recomputing them
func (d beneficiaryDTO) toModel() *models.BeneficiaryStats {
	lines := d.ExpenseLines
	if lines == nil {
		lines = make([]models.StatementLine, 0)
	}
	return &models.BeneficiaryStats{
		FeeTotal:     d.FeeTotal.Decimal(),
		ExpenseTotal: d.ExpenseTotal.Decimal(),
		ExpenseLines: lines,
		Balance:      d.Balance.Decimal(),
	}
}

func parseDate(value string, loc *time.Location) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := models.ParseTimeWithFormats(value, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}
