// Package statement computes the fee/expense statement ("état") of the
// office or of one client over a time window, and the statement of a
// beneficiary from its pre-aggregated statistics.
package statement

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"etat-statement-service/internal/classifier"
	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/ledger"
	"etat-statement-service/internal/metrics"
	"etat-statement-service/internal/models"
	"etat-statement-service/pkg/errors"
	"etat-statement-service/pkg/logger"
)

// Computer computes one statement per request
type Computer interface {
	Compute(ctx context.Context, req Request) (*Result, error)
}

// Config holds the engine settings
type Config struct {
	// Location is the reference zone calendar days are read in
	Location *time.Location

	// Vocabulary holds the markers the classifier recognizes; nil selects the default
	Vocabulary *classifier.Vocabulary

	// SectionTimeout bounds each section fetch; zero leaves the caller's context in charge
	SectionTimeout time.Duration

	// Clock supplies the current time for the carry-over year of unbounded windows
	Clock func() time.Time
}

// DefaultConfig returns the engine configuration for the default reference zone
func DefaultConfig() *Config {
	loc, err := filter.LoadLocation(filter.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &Config{
		Location:       loc,
		Vocabulary:     classifier.DefaultVocabulary(),
		SectionTimeout: 30 * time.Second,
		Clock:          time.Now,
	}
}

// Validate checks the engine configuration
func (c *Config) Validate() error {
	if c.Location == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "timezone", nil, nil)
	}
	if c.SectionTimeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "section_timeout", c.SectionTimeout, nil)
	}
	if c.Vocabulary != nil {
		if err := c.Vocabulary.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "vocabulary", nil, err)
		}
	}
	return nil
}

// Engine computes statements from the ledger sources. Records are fetched
// afresh for every request.
type Engine struct {
	sources    ledger.Sources
	config     *Config
	resolver   *filter.Resolver
	classifier *classifier.Classifier
	metrics    *metrics.Metrics
	logger     logger.Logger
}

// NewEngine creates a statement engine. A nil config selects DefaultConfig
// and a nil metrics disables instrumentation.
func NewEngine(sources ledger.Sources, config *Config, m *metrics.Metrics) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := sources.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "sources", nil, err)
	}

	c, err := classifier.New(config.Vocabulary)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "vocabulary", nil, err)
	}

	cfg := *config
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Engine{
		sources:    sources,
		config:     &cfg,
		resolver:   filter.NewResolver(cfg.Location),
		classifier: c,
		metrics:    m,
		logger:     logger.WithComponent("statement_engine"),
	}, nil
}

// Resolve validates a filter selection without fetching anything
func (e *Engine) Resolve(spec filter.FilterSpec) (filter.Window, error) {
	return e.resolver.Resolve(spec)
}

// Location returns the engine's reference zone
func (e *Engine) Location() *time.Location {
	return e.config.Location
}

// Compute validates the request and computes its statement.
// Validation failures are returned before any source is consulted. A
// section whose fetch fails contributes zero and is reported in
// Result.SectionErrors; the other sections are still computed.
func (e *Engine) Compute(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	log := e.logger.WithField("request_id", uuid.NewString())

	window, err := e.resolver.Resolve(req.Filter)
	if err != nil {
		log.WithError(err).Warn("Rejected statement filter")
		e.metrics.RecordStatement(PathWindow, metrics.StatusInvalid, time.Since(started))
		return nil, err
	}

	if window.Mode == filter.ModeBeneficiary {
		return e.computeBeneficiary(ctx, window, log, started)
	}

	if err := req.Context.Validate(); err != nil {
		log.WithError(err).Warn("Rejected statement context")
		e.metrics.RecordStatement(PathWindow, metrics.StatusInvalid, time.Since(started))
		return nil, err
	}

	return e.computeWindow(ctx, window, req.Context, log, started)
}

type fetched struct {
	fees         []models.FeeRecord
	feesErr      error
	expenses     []models.ExpenseRecord
	expensesErr  error
	carryOver    *models.CarryOverBalance
	carryOverErr error
	client       *models.Client
	clientErr    error
}

func (e *Engine) computeWindow(ctx context.Context, window filter.Window, sc Context, log logger.Logger, started time.Time) (*Result, error) {
	clientID := ""
	if sc.Scope == models.ScopeClient {
		clientID = sc.ClientID
	}
	log = log.WithFields(logger.Fields{
		"scope":     sc.Scope,
		"client_id": clientID,
		"window":    window.String(),
	})
	log.Debug("Computing statement")

	year := ReferenceYear(window, e.config.Clock())
	f := e.fetch(ctx, window, sc.Scope, clientID, year)

	var sectionErrors []SectionError
	if f.feesErr != nil {
		sectionErrors = append(sectionErrors, e.sectionError(SectionFees, f.feesErr, log))
		f.fees = nil
	}
	if f.expensesErr != nil {
		sectionErrors = append(sectionErrors, e.sectionError(SectionExpenses, f.expensesErr, log))
		f.expenses = nil
	}
	if f.carryOverErr != nil {
		sectionErrors = append(sectionErrors, e.sectionError(SectionCarryOver, f.carryOverErr, log))
		f.carryOver = nil
	}

	fees := e.classifier.ClassifyFees(f.fees, window, sc.Scope)
	expenses := e.classifier.ClassifyExpenses(f.expenses, window, sc.Scope)
	e.metrics.AddInspected(SectionFees, fees.Inspected)
	e.metrics.AddInspected(SectionExpenses, expenses.Inspected)

	result := &Result{
		Scope:         sc.Scope,
		ClientID:      clientID,
		Window:        window,
		Statement:     Aggregate(fees, expenses),
		SectionErrors: sectionErrors,
	}

	if sc.Scope == models.ScopeClient {
		ApplyCarryOver(&result.Statement, f.carryOver)

		switch {
		case f.clientErr != nil:
			log.WithError(f.clientErr).Warn("Client label lookup failed")
		case f.client != nil:
			result.ClientName = f.client.Name
		}
	}

	status := metrics.StatusOK
	if result.Partial() {
		status = metrics.StatusPartial
	}
	e.metrics.RecordStatement(PathWindow, status, time.Since(started))

	log.WithFields(logger.Fields{
		"fee_lines":        len(result.FeeLines),
		"fees_skipped":     fees.Skipped(),
		"expense_lines":    len(result.ExpenseLines),
		"expenses_skipped": expenses.Skipped(),
		"balance":          result.Balance.String(),
		"section_errors":   len(result.SectionErrors),
		"duration":         time.Since(started),
	}).Info("Statement computed")

	return result, nil
}

// fetch consults every section concurrently. A failing section never
// cancels its siblings: each goroutine keeps its own error and returns nil.
func (e *Engine) fetch(ctx context.Context, window filter.Window, scope models.Scope, clientID string, year int) *fetched {
	f := &fetched{}
	var g errgroup.Group

	g.Go(func() error {
		e.timed(ctx, SectionFees, func(ctx context.Context) error {
			f.fees, f.feesErr = e.sources.Fees.QueryFees(ctx, scope, clientID, window)
			return f.feesErr
		})
		return nil
	})

	g.Go(func() error {
		e.timed(ctx, SectionExpenses, func(ctx context.Context) error {
			f.expenses, f.expensesErr = e.sources.Expenses.QueryExpenses(ctx, scope, clientID, window)
			return f.expensesErr
		})
		return nil
	})

	if scope == models.ScopeClient && e.sources.CarryOver != nil {
		g.Go(func() error {
			e.timed(ctx, SectionCarryOver, func(ctx context.Context) error {
				f.carryOver, f.carryOverErr = e.sources.CarryOver.GetCarryOver(ctx, clientID, year)
				return f.carryOverErr
			})
			return nil
		})
	}

	if scope == models.ScopeClient && e.sources.Clients != nil {
		g.Go(func() error {
			ctx, cancel := e.sectionContext(ctx)
			defer cancel()
			f.client, f.clientErr = e.sources.Clients.GetClient(ctx, clientID)
			if stderrors.Is(f.clientErr, ledger.ErrClientNotFound) {
				f.client, f.clientErr = nil, nil
			}
			return nil
		})
	}

	_ = g.Wait()
	return f
}

func (e *Engine) timed(ctx context.Context, section string, fn func(ctx context.Context) error) {
	ctx, cancel := e.sectionContext(ctx)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	e.metrics.RecordSection(section, err, time.Since(start))
}

func (e *Engine) sectionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.SectionTimeout > 0 {
		return context.WithTimeout(ctx, e.config.SectionTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) sectionError(section string, err error, log logger.Logger) SectionError {
	statementErr, ok := errors.AsStatementError(err)
	if !ok {
		code := errors.CodeSourceUnavailable
		if stderrors.Is(err, context.DeadlineExceeded) {
			code = errors.CodeTimeout
		}
		statementErr = errors.FetchError(code, section, err)
	}

	log.WithError(err).WithField("section", section).Warn("Section fetch failed")

	message := statementErr.Message
	if statementErr.Cause != nil {
		message = fmt.Sprintf("%s: %v", message, statementErr.Cause)
	}

	return SectionError{
		Section: section,
		Message: message,
		Err:     statementErr,
	}
}

func (e *Engine) computeBeneficiary(ctx context.Context, window filter.Window, log logger.Logger, started time.Time) (*Result, error) {
	if e.sources.Beneficiaries == nil {
		err := errors.ConfigurationError(errors.CodeMissingConfig, "beneficiary_source", nil,
			fmt.Errorf("no beneficiary statistics source configured"))
		e.metrics.RecordStatement(PathBeneficiary, metrics.StatusError, time.Since(started))
		return nil, err
	}

	log = log.WithField("beneficiary", window.BeneficiaryName)
	log.Debug("Computing beneficiary statement")

	var stats *models.BeneficiaryStats
	var statsErr error
	e.timed(ctx, SectionBeneficiary, func(ctx context.Context) error {
		stats, statsErr = e.sources.Beneficiaries.GetBeneficiaryStats(ctx, window.BeneficiaryName)
		return statsErr
	})

	result := &Result{Window: window}
	status := metrics.StatusOK
	if statsErr != nil {
		result.Statement = EmptyStatement()
		result.SectionErrors = []SectionError{e.sectionError(SectionBeneficiary, statsErr, log)}
		status = metrics.StatusPartial
	} else {
		result.Statement = FromBeneficiaryStats(stats)
	}
	e.metrics.RecordStatement(PathBeneficiary, status, time.Since(started))

	log.WithFields(logger.Fields{
		"expense_lines": len(result.ExpenseLines),
		"balance":       result.Balance.String(),
		"duration":      time.Since(started),
	}).Info("Beneficiary statement computed")

	return result, nil
}
