package statement

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/ledger"
	"etat-statement-service/internal/ledger/memory"
	"etat-statement-service/internal/metrics"
	"etat-statement-service/internal/models"
	"etat-statement-service/pkg/errors"
)

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := filter.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("failed to load zone: %v", err)
	}
	return loc
}

func dayIn(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := filter.ParseDate(s, paris(t))
	if err != nil {
		t.Fatalf("bad date %s: %v", s, err)
	}
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEngine(t *testing.T, sources ledger.Sources, m *metrics.Metrics) *Engine {
	t.Helper()
	config := DefaultConfig()
	config.Location = paris(t)
	config.Clock = func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC) }

	engine, err := NewEngine(sources, config, m)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

// scenarioLedger holds one received fee of 100 and one expense of 40 on 2025-03-05
func scenarioLedger(t *testing.T, expenseDescription string) *memory.Ledger {
	t.Helper()
	l := memory.New()
	l.AddFees(models.NewFeeRecord("F1", dayIn(t, "2025-03-05"), "Honoraires reçus mars", dec("100"), dec("100"), "C1"))
	l.AddExpenses(models.NewExpenseRecord("E1", dayIn(t, "2025-03-05"), dec("40"), expenseDescription, "", "C1"))
	l.AddClient(models.Client{ID: "C1", Name: "Dupont SARL"})
	return l
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("expected %s %s, got %s", name, want, got)
	}
}

func TestOfficeDayStatement(t *testing.T) {
	engine := newEngine(t, scenarioLedger(t, "[OFFICE] Supplies").Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{
		Filter:  filter.Day("2025-03-05"),
		Context: Office(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertDecimal(t, "fee total", result.FeeTotal, "100")
	assertDecimal(t, "expense total", result.ExpenseTotal, "40")
	assertDecimal(t, "balance", result.Balance, "60")
	if result.FinalBalance != nil || result.CarryOver != nil {
		t.Error("expected no carry-over data for office scope")
	}
	if len(result.ExpenseLines) != 1 || result.ExpenseLines[0].Label != "Supplies" {
		t.Errorf("expected one expense line labeled Supplies, got %+v", result.ExpenseLines)
	}
	if result.Partial() {
		t.Errorf("expected no section errors, got %v", result.SectionErrors)
	}
}

func TestClientScopeExcludesOfficeExpenses(t *testing.T) {
	engine := newEngine(t, scenarioLedger(t, "[OFFICE] Supplies").Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{
		Filter:  filter.Day("2025-03-05"),
		Context: ForClient("C1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertDecimal(t, "expense total", result.ExpenseTotal, "0")
	assertDecimal(t, "balance", result.Balance, "100")
	if result.ClientName != "Dupont SARL" {
		t.Errorf("expected client label, got %q", result.ClientName)
	}
	if result.FinalBalance == nil {
		t.Fatal("expected final balance for client scope")
	}
	assertDecimal(t, "final balance", *result.FinalBalance, "100")
	if result.HasCarryOver() {
		t.Error("expected no carry-over line without a carry-over")
	}
}

func TestCarryOverIsMerged(t *testing.T) {
	l := scenarioLedger(t, "Supplies")
	l.SetCarryOver("C1", 2025, models.CarryOverBalance{Amount: dec("-20"), FromYear: 2024})
	engine := newEngine(t, l.Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{
		Filter:  filter.Month(3, 2025),
		Context: ForClient("C1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertDecimal(t, "balance", result.Balance, "60")
	if !result.HasCarryOver() {
		t.Fatal("expected carry-over line")
	}
	assertDecimal(t, "carry-over", result.CarryOver.Amount, "-20")
	if result.CarryOver.FromYear != 2024 {
		t.Errorf("expected carry-over from 2024, got %d", result.CarryOver.FromYear)
	}
	assertDecimal(t, "final balance", *result.FinalBalance, "40")
}

func TestCarryOverReferenceYear(t *testing.T) {
	tests := []struct {
		name   string
		filter filter.FilterSpec
		shown  bool
	}{
		{"range starting in 2024", filter.Range("2024-12-20", "2025-01-10"), true},
		{"year 2024", filter.Year(2024), true},
		{"day in 2025", filter.Day("2025-01-02"), false},
		{"all dates uses the clock year", filter.All(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := memory.New()
			l.SetCarryOver("C1", 2024, models.CarryOverBalance{Amount: dec("15"), FromYear: 2023})
			engine := newEngine(t, l.Sources(), nil)

			result, err := engine.Compute(context.Background(), Request{Filter: tt.filter, Context: ForClient("C1")})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.HasCarryOver() != tt.shown {
				t.Errorf("expected carry-over shown=%v, got %v", tt.shown, result.HasCarryOver())
			}
		})
	}
}

func TestBeneficiaryWithoutActivity(t *testing.T) {
	engine := newEngine(t, scenarioLedger(t, "Supplies").Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{Filter: filter.Beneficiary("Smith")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertDecimal(t, "fee total", result.FeeTotal, "0")
	assertDecimal(t, "expense total", result.ExpenseTotal, "0")
	assertDecimal(t, "balance", result.Balance, "0")
	if result.ExpenseLines == nil || result.FeeLines == nil {
		t.Error("expected empty, non-nil line lists")
	}
	if result.Scope != "" {
		t.Errorf("expected no scope on a beneficiary statement, got %s", result.Scope)
	}
}

type fixedStats struct {
	stats *models.BeneficiaryStats
	err   error
}

func (f fixedStats) GetBeneficiaryStats(ctx context.Context, name string) (*models.BeneficiaryStats, error) {
	return f.stats, f.err
}

func TestBeneficiaryStatsArePublishedVerbatim(t *testing.T) {
	l := memory.New()
	sources := l.Sources()
	sources.Beneficiaries = fixedStats{stats: &models.BeneficiaryStats{
		FeeTotal:     dec("10"),
		ExpenseTotal: dec("3"),
		Balance:      dec("99"),
	}}
	engine := newEngine(t, sources, nil)

	result, err := engine.Compute(context.Background(), Request{Filter: filter.Beneficiary("Smith")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "balance", result.Balance, "99")
	if result.ExpenseLines == nil {
		t.Error("expected non-nil expense lines")
	}
}

func TestBeneficiaryFailureIsSectionError(t *testing.T) {
	l := memory.New()
	sources := l.Sources()
	sources.Beneficiaries = fixedStats{err: stderrors.New("stats offline")}
	engine := newEngine(t, sources, nil)

	result, err := engine.Compute(context.Background(), Request{Filter: filter.Beneficiary("Smith")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.SectionFailed(SectionBeneficiary) {
		t.Errorf("expected beneficiary section error, got %v", result.SectionErrors)
	}
	assertDecimal(t, "balance", result.Balance, "0")
}

func TestDayEqualsSingleDayRange(t *testing.T) {
	l := scenarioLedger(t, "Supplies")
	l.AddFees(models.NewFeeRecord("F2", dayIn(t, "2025-03-06"), "Honoraires reçus", dec("7"), dec("7"), "C1"))
	engine := newEngine(t, l.Sources(), nil)

	for _, sc := range []Context{Office(), ForClient("C1")} {
		day, err := engine.Compute(context.Background(), Request{Filter: filter.Day("2025-03-05"), Context: sc})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rng, err := engine.Compute(context.Background(), Request{Filter: filter.Range("2025-03-05", "2025-03-05"), Context: sc})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dayJSON, _ := json.Marshal(day.Statement)
		rangeJSON, _ := json.Marshal(rng.Statement)
		if !bytes.Equal(dayJSON, rangeJSON) {
			t.Errorf("expected identical statements for %s scope:\n%s\n%s", sc.Scope, dayJSON, rangeJSON)
		}
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	l := scenarioLedger(t, "Supplies")
	l.SetCarryOver("C1", 2025, models.CarryOverBalance{Amount: dec("12.50"), FromYear: 2024})
	engine := newEngine(t, l.Sources(), nil)
	req := Request{Filter: filter.Year(2025), Context: ForClient("C1")}

	first, err := engine.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Errorf("expected byte-identical results:\n%s\n%s", firstJSON, secondJSON)
	}
}

func TestBalanceProperties(t *testing.T) {
	l := memory.New()
	l.AddFees(
		models.NewFeeRecord("F1", dayIn(t, "2025-02-01"), "Honoraires reçus", dec("120.10"), dec("30"), "C1"),
		models.NewFeeRecord("F2", dayIn(t, "2025-02-15"), "Avance sur déclaration", dec("500"), dec("500"), "C1"),
		models.NewFeeRecord("F3", dayIn(t, "2025-02-20"), "Honoraires reçus", dec("0"), dec("0"), "C1"),
	)
	l.AddExpenses(
		models.NewExpenseRecord("E1", dayIn(t, "2025-02-03"), dec("200"), "[BUREAU] Loyer", "", ""),
		models.NewExpenseRecord("E2", dayIn(t, "2025-02-04"), dec("5.05"), "Timbres", "", "C1"),
	)
	engine := newEngine(t, l.Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{Filter: filter.Month(2, 2025), Context: Office()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertDecimal(t, "fee total", result.FeeTotal, "120.10")
	assertDecimal(t, "expense total", result.ExpenseTotal, "200")
	assertDecimal(t, "balance", result.Balance, "-79.90")
	if !result.Balance.Equal(result.FeeTotal.Sub(result.ExpenseTotal)) {
		t.Error("expected balance to equal fee total minus expense total")
	}

	sum := decimal.Zero
	for _, line := range result.FeeLines {
		sum = sum.Add(line.Amount)
	}
	if !sum.Equal(result.FeeTotal) {
		t.Errorf("expected fee lines to sum to %s, got %s", result.FeeTotal, sum)
	}
}

func TestReferenceZoneDecidesCalendarDay(t *testing.T) {
	l := memory.New()
	// 23:30 UTC on the 4th is 00:30 on the 5th in Paris
	l.AddFees(models.NewFeeRecord("F1", time.Date(2025, time.March, 4, 23, 30, 0, 0, time.UTC), "Honoraires reçus", dec("100"), dec("0"), ""))
	engine := newEngine(t, l.Sources(), nil)

	fifth, err := engine.Compute(context.Background(), Request{Filter: filter.Day("2025-03-05"), Context: Office()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fourth, err := engine.Compute(context.Background(), Request{Filter: filter.Day("2025-03-04"), Context: Office()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertDecimal(t, "fees on the 5th", fifth.FeeTotal, "100")
	assertDecimal(t, "fees on the 4th", fourth.FeeTotal, "0")
}

func TestLineDatesUseReferenceZone(t *testing.T) {
	l := memory.New()
	// 23:30 UTC on the 5th is 00:30 on the 6th in Paris
	stamp := time.Date(2025, time.March, 5, 23, 30, 0, 0, time.UTC)
	l.AddFees(models.NewFeeRecord("F1", stamp, "Honoraires reçus", dec("100"), dec("0"), ""))
	l.AddExpenses(models.NewExpenseRecord("E1", stamp, dec("40"), "[OFFICE] Supplies", "", ""))
	engine := newEngine(t, l.Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{Filter: filter.Day("2025-03-06"), Context: Office()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "fee total", result.FeeTotal, "100")

	data, err := json.Marshal(result.Statement)
	if err != nil {
		t.Fatalf("failed to marshal statement: %v", err)
	}
	var out struct {
		FeeLines     []struct{ Date string } `json:"feeLines"`
		ExpenseLines []struct{ Date string } `json:"expenseLines"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("failed to decode statement: %v", err)
	}

	if len(out.FeeLines) != 1 || out.FeeLines[0].Date != "2025-03-06" {
		t.Errorf("expected fee line dated 2025-03-06, got %+v", out.FeeLines)
	}
	if len(out.ExpenseLines) != 1 || out.ExpenseLines[0].Date != "2025-03-06" {
		t.Errorf("expected expense line dated 2025-03-06, got %+v", out.ExpenseLines)
	}
}

func TestSectionFailureIsIsolated(t *testing.T) {
	tests := []struct {
		name    string
		section string
		failed  string
		fees    string
		expense string
		final   string
	}{
		{"fees down", memory.SectionFees, SectionFees, "0", "40", "-60"},
		{"expenses down", memory.SectionExpenses, SectionExpenses, "100", "0", "80"},
		{"carry-over down", memory.SectionCarryOver, SectionCarryOver, "100", "40", "60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := scenarioLedger(t, "Supplies")
			l.SetCarryOver("C1", 2025, models.CarryOverBalance{Amount: dec("-20"), FromYear: 2024})
			l.Fail(tt.section, stderrors.New("ledger down"))
			m := metrics.New()
			engine := newEngine(t, l.Sources(), m)

			result, err := engine.Compute(context.Background(), Request{Filter: filter.Day("2025-03-05"), Context: ForClient("C1")})
			if err != nil {
				t.Fatalf("expected partial result, got error %v", err)
			}

			if len(result.SectionErrors) != 1 || result.SectionErrors[0].Section != tt.failed {
				t.Fatalf("expected a single %s section error, got %v", tt.failed, result.SectionErrors)
			}
			if !errors.IsCategory(result.SectionErrors[0].Err, errors.CategoryFetch) {
				t.Errorf("expected fetch error, got %v", result.SectionErrors[0].Err)
			}
			assertDecimal(t, "fee total", result.FeeTotal, tt.fees)
			assertDecimal(t, "expense total", result.ExpenseTotal, tt.expense)
			assertDecimal(t, "final balance", *result.FinalBalance, tt.final)
			if got := m.SectionFetches(tt.failed, metrics.StatusError); got != 1 {
				t.Errorf("expected 1 failed %s fetch recorded, got %v", tt.failed, got)
			}
		})
	}
}

func TestSectionErrorsKeepFixedOrder(t *testing.T) {
	l := scenarioLedger(t, "Supplies")
	l.Fail(memory.SectionCarryOver, stderrors.New("down"))
	l.Fail(memory.SectionExpenses, stderrors.New("down"))
	l.Fail(memory.SectionFees, stderrors.New("down"))
	engine := newEngine(t, l.Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{Filter: filter.All(), Context: ForClient("C1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{SectionFees, SectionExpenses, SectionCarryOver}
	if len(result.SectionErrors) != len(expected) {
		t.Fatalf("expected %d section errors, got %v", len(expected), result.SectionErrors)
	}
	for i, section := range expected {
		if result.SectionErrors[i].Section != section {
			t.Errorf("expected section %d to be %s, got %s", i, section, result.SectionErrors[i].Section)
		}
	}
}

func TestClientLookupFailureOnlyLosesLabel(t *testing.T) {
	l := scenarioLedger(t, "Supplies")
	l.Fail(memory.SectionClients, stderrors.New("directory down"))
	engine := newEngine(t, l.Sources(), nil)

	result, err := engine.Compute(context.Background(), Request{Filter: filter.Day("2025-03-05"), Context: ForClient("C1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ClientName != "" || result.Partial() {
		t.Errorf("expected no label and no section error, got %q %v", result.ClientName, result.SectionErrors)
	}
	assertDecimal(t, "balance", result.Balance, "60")
}

type countingLedger struct {
	*memory.Ledger
	calls atomic.Int32
}

func (c *countingLedger) QueryFees(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.FeeRecord, error) {
	c.calls.Add(1)
	return c.Ledger.QueryFees(ctx, scope, clientID, window)
}

func (c *countingLedger) QueryExpenses(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.ExpenseRecord, error) {
	c.calls.Add(1)
	return c.Ledger.QueryExpenses(ctx, scope, clientID, window)
}

func TestValidationHappensBeforeAnyFetch(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		code errors.ErrorCode
	}{
		{"end before start", Request{Filter: filter.Range("2025-03-10", "2025-03-01"), Context: Office()}, errors.CodeInvalidRange},
		{"bad month", Request{Filter: filter.Month(13, 2025), Context: Office()}, errors.CodeOutOfRange},
		{"bad date", Request{Filter: filter.Day("05/03/2025x"), Context: Office()}, errors.CodeInvalidDate},
		{"client scope without client", Request{Filter: filter.All(), Context: Context{Scope: models.ScopeClient}}, errors.CodeMissingClient},
		{"unknown scope", Request{Filter: filter.All(), Context: Context{Scope: "team"}}, errors.CodeInvalidScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counting := &countingLedger{Ledger: memory.New()}
			m := metrics.New()
			engine := newEngine(t, ledger.Sources{Fees: counting, Expenses: counting}, m)

			result, err := engine.Compute(context.Background(), tt.req)
			if result != nil {
				t.Error("expected no result")
			}
			statementErr, ok := errors.AsStatementError(err)
			if !ok || statementErr.Category != errors.CategoryValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if statementErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, statementErr.Code)
			}
			if got := counting.calls.Load(); got != 0 {
				t.Errorf("expected no fetch, got %d", got)
			}
		})
	}
}

func TestNewEngineRequiresFeeAndExpenseSources(t *testing.T) {
	_, err := NewEngine(ledger.Sources{}, DefaultConfig(), nil)
	if !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestBeneficiaryWithoutSourceIsConfigurationError(t *testing.T) {
	l := memory.New()
	engine := newEngine(t, ledger.Sources{Fees: l, Expenses: l}, nil)

	_, err := engine.Compute(context.Background(), Request{Filter: filter.Beneficiary("Smith")})
	if !errors.IsCategory(err, errors.CategoryConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestReferenceYear(t *testing.T) {
	resolver := filter.NewResolver(time.UTC)
	now := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		spec     filter.FilterSpec
		expected int
	}{
		{"year", filter.Year(2023), 2023},
		{"month", filter.Month(11, 2022), 2022},
		{"day", filter.Day("2021-06-30"), 2021},
		{"range uses start", filter.Range("2020-12-31", "2021-01-01"), 2020},
		{"all uses now", filter.All(), 2026},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window, err := resolver.Resolve(tt.spec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := ReferenceYear(window, now); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestApplyCarryOver(t *testing.T) {
	tests := []struct {
		name      string
		carryOver *models.CarryOverBalance
		final     string
		shown     bool
	}{
		{"none", nil, "60", false},
		{"zero", &models.CarryOverBalance{Amount: decimal.Zero, FromYear: 2024}, "60", false},
		{"deficit", &models.CarryOverBalance{Amount: dec("-80"), FromYear: 2024}, "-20", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := EmptyStatement()
			stmt.Balance = dec("60")
			ApplyCarryOver(&stmt, tt.carryOver)

			assertDecimal(t, "final balance", *stmt.FinalBalance, tt.final)
			if (stmt.CarryOver != nil) != tt.shown {
				t.Errorf("expected carry-over shown=%v", tt.shown)
			}
		})
	}
}
