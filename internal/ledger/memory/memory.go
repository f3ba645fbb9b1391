// Package memory provides an in-process ledger holding every record source
package memory

import (
	"context"
	"sync"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/ledger"
	"etat-statement-service/internal/models"
)

// Section names accepted by Fail
const (
	SectionFees          = "fees"
	SectionExpenses      = "expenses"
	SectionClients       = "clients"
	SectionCarryOver     = "carry_over"
	SectionBeneficiaries = "beneficiary"
)

type carryOverKey struct {
	clientID string
	year     int
}

// Ledger is a concurrency-safe in-memory implementation of every ledger contract
type Ledger struct {
	mu         sync.RWMutex
	fees       []models.FeeRecord
	expenses   []models.ExpenseRecord
	clients    map[string]models.Client
	carryOvers map[carryOverKey]models.CarryOverBalance
	failures   map[string]error
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		clients:    make(map[string]models.Client),
		carryOvers: make(map[carryOverKey]models.CarryOverBalance),
		failures:   make(map[string]error),
	}
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

// AddFees appends fee records
func (l *Ledger) AddFees(records ...models.FeeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fees = append(l.fees, records...)
}

// AddExpenses appends expense records
func (l *Ledger) AddExpenses(records ...models.ExpenseRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expenses = append(l.expenses, records...)
}

// AddClient registers a client in the directory
func (l *Ledger) AddClient(client models.Client) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients[client.ID] = client
}

// SetCarryOver stores the carry-over of clientID for a reference year
func (l *Ledger) SetCarryOver(clientID string, year int, balance models.CarryOverBalance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.carryOvers[carryOverKey{clientID: clientID, year: year}] = balance
}

// Fail makes every call for section return err; a nil err clears the failure
func (l *Ledger) Fail(section string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, section)
		return
	}
	l.failures[section] = err
}

func (l *Ledger) failure(section string) error {
	return l.failures[section]
}

// QueryFees implements ledger.FeeLedger
func (l *Ledger) QueryFees(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.FeeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.failure(SectionFees); err != nil {
		return nil, err
	}
	return ledger.SelectFees(l.fees, scope, clientID, window), nil
}

// QueryExpenses implements ledger.ExpenseLedger
func (l *Ledger) QueryExpenses(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.failure(SectionExpenses); err != nil {
		return nil, err
	}
	return ledger.SelectExpenses(l.expenses, scope, clientID, window), nil
}

// GetClient implements ledger.ClientDirectory
func (l *Ledger) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.failure(SectionClients); err != nil {
		return nil, err
	}
	client, ok := l.clients[clientID]
	if !ok {
		return nil, ledger.ErrClientNotFound
	}
	return &client, nil
}

// GetCarryOver implements ledger.CarryOverLedger
func (l *Ledger) GetCarryOver(ctx context.Context, clientID string, year int) (*models.CarryOverBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.failure(SectionCarryOver); err != nil {
		return nil, err
	}
	balance, ok := l.carryOvers[carryOverKey{clientID: clientID, year: year}]
	if !ok {
		return nil, nil
	}
	return &balance, nil
}

// GetBeneficiaryStats implements ledger.BeneficiaryStatistics
func (l *Ledger) GetBeneficiaryStats(ctx context.Context, name string) (*models.BeneficiaryStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := l.failure(SectionBeneficiaries); err != nil {
		return nil, err
	}
	return ledger.AggregateBeneficiary(name, l.fees, l.expenses), nil
}
