package httpledger

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/ledger"
	"etat-statement-service/internal/models"
	"etat-statement-service/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(DefaultConfig(server.URL), server.Client())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestQueryFeesSendsWindowAndDecodesLeniently(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/fees", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"F1","date":"2025-03-05","label":"Honoraires reçus","office_amount":100,"client_amount":"80,5","client_id":"C1"},
			{"id":"F2","date":"garbage","label":null,"office_amount":null,"client_amount":"n/a"}
		]`))
	})
	client := newTestClient(t, mux)

	window, err := filter.NewResolver(time.UTC).Resolve(filter.Month(3, 2025))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fees, err := client.QueryFees(context.Background(), models.ScopeClient, "C1", window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedQuery := "client_id=C1&end=2025-03-31&scope=client&start=2025-03-01"
	if gotQuery != expectedQuery {
		t.Errorf("expected query %s, got %s", expectedQuery, gotQuery)
	}
	if len(fees) != 2 {
		t.Fatalf("expected 2 fees, got %d", len(fees))
	}
	if fees[0].ClientAmount().String() != "80.5" {
		t.Errorf("expected client amount 80.5, got %s", fees[0].ClientAmount())
	}
	if !fees[1].Date.IsZero() || fees[1].Label != "" || !fees[1].OfficeAmount().IsZero() {
		t.Errorf("expected malformed record normalized, got %s", fees[1])
	}
}

func TestNonStringTextFieldsAreBlanked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"E1","date":"2025-03-05","amount":40,"description":123,"beneficiary":true,"client_id":["C1"]},
			{"id":{"ref":2},"date":20250305,"amount":"12,50","description":"Timbres","beneficiary":"La Poste","client_id":"C1"}
		]`))
	})
	mux.HandleFunc("/fees", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"F1","date":"2025-03-05","label":123,"office_amount":100,"client_amount":100}]`))
	})
	client := newTestClient(t, mux)

	expenses, err := client.QueryExpenses(context.Background(), models.ScopeOffice, "", filter.Window{})
	if err != nil {
		t.Fatalf("expected malformed text to be normalized, got %v", err)
	}
	if len(expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(expenses))
	}
	if expenses[0].Description != "" || expenses[0].Beneficiary != "" || expenses[0].ClientID != "" {
		t.Errorf("expected blank text fields, got %s", expenses[0])
	}
	if !expenses[0].Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected amount 40, got %s", expenses[0].Amount)
	}
	if expenses[1].ID != "" || !expenses[1].Date.IsZero() || expenses[1].Description != "Timbres" {
		t.Errorf("expected blank id and zero date with description kept, got %s", expenses[1])
	}

	fees, err := client.QueryFees(context.Background(), models.ScopeOffice, "", filter.Window{})
	if err != nil {
		t.Fatalf("expected malformed label to be normalized, got %v", err)
	}
	if len(fees) != 1 || fees[0].Label != "" {
		t.Errorf("expected one fee with a blank label, got %v", fees)
	}
}

func TestFetchErrorsCarrySection(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode errors.ErrorCode
	}{
		{"server error", http.StatusBadGateway, "", errors.CodeSourceUnavailable},
		{"client error", http.StatusBadRequest, "", errors.CodeBadResponse},
		{"invalid json", http.StatusOK, "{not json", errors.CodeBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			_, err := client.QueryExpenses(context.Background(), models.ScopeOffice, "", filter.Window{})
			statementErr, ok := errors.AsStatementError(err)
			if !ok {
				t.Fatalf("expected StatementError, got %v", err)
			}
			if statementErr.Category != errors.CategoryFetch {
				t.Errorf("expected fetch category, got %s", statementErr.Category)
			}
			if statementErr.Section != SectionExpenses {
				t.Errorf("expected section %s, got %s", SectionExpenses, statementErr.Section)
			}
			if statementErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, statementErr.Code)
			}
		})
	}
}

func TestNotFoundIsEmptyNotError(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	ctx := context.Background()

	balance, err := client.GetCarryOver(ctx, "C1", 2025)
	if err != nil || balance != nil {
		t.Errorf("expected no carry-over, got %v (%v)", balance, err)
	}

	stats, err := client.GetBeneficiaryStats(ctx, "Smith")
	if err != nil || stats != nil {
		t.Errorf("expected no beneficiary stats, got %v (%v)", stats, err)
	}

	if _, err := client.GetClient(ctx, "C1"); !stderrors.Is(err, ledger.ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}
}

func TestCarryOverAndBeneficiaryDecoding(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/clients/C1/carry-over", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("year") != "2025" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"amount":"-20","fromYear":2024}`))
	})
	mux.HandleFunc("/beneficiaries/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"feeTotal":0,"expenseTotal":"0","expenseLines":null,"balance":null}`))
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	balance, err := client.GetCarryOver(ctx, "C1", 2025)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.Amount.String() != "-20" || balance.FromYear != 2024 {
		t.Errorf("expected -20 from 2024, got %s from %d", balance.Amount, balance.FromYear)
	}

	stats, err := client.GetBeneficiaryStats(ctx, "Smith")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.FeeTotal.IsZero() || !stats.Balance.IsZero() || len(stats.ExpenseLines) != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
	if stats.ExpenseLines == nil {
		t.Error("expected empty, non-nil expense lines")
	}
}

func TestNoRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if _, err := client.QueryFees(context.Background(), models.ScopeOffice, "", filter.Window{}); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 call, got %d", got)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 8; i++ {
		client.QueryFees(context.Background(), models.ScopeOffice, "", filter.Window{})
	}

	if state := client.BreakerState(SectionFees); state != gobreaker.StateOpen {
		t.Errorf("expected fees breaker open, got %s", state)
	}
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("expected breaker to stop calls after 5 failures, got %d calls", got)
	}
	if state := client.BreakerState(SectionExpenses); state != gobreaker.StateClosed {
		t.Errorf("expected expenses breaker unaffected, got %s", state)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{"empty", ""},
		{"no scheme", "ledger.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(DefaultConfig(tt.baseURL), nil)
			if !errors.IsCategory(err, errors.CategoryConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}
