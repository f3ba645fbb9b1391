// Package httpledger reads statement records from the office's REST ledger.
//
// Every call goes through a per-section circuit breaker. Calls are never
// retried: a failed section is reported to the statement engine, which
// degrades that section and leaves a re-run to the caller.
package httpledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/ledger"
	"etat-statement-service/internal/models"
	"etat-statement-service/pkg/errors"
	"etat-statement-service/pkg/logger"
)

// Section names, also used as circuit breaker names
const (
	SectionFees          = "fees"
	SectionExpenses      = "expenses"
	SectionClients       = "clients"
	SectionCarryOver     = "carry_over"
	SectionBeneficiaries = "beneficiary"
)

var errNotFound = stderrors.New("resource not found")

// Config holds the REST ledger client settings
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Location is the zone dates without an offset are read in
	Location *time.Location

	// Breaker settings, shared by every section breaker
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerOpenTimeout  time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:             baseURL,
		Timeout:             10 * time.Second,
		Location:            time.UTC,
		BreakerMaxRequests:  3,
		BreakerInterval:     30 * time.Second,
		BreakerOpenTimeout:  10 * time.Second,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.6,
	}
}

// Validate checks the client configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger-url", c.BaseURL, nil)
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ledger-url", c.BaseURL, err)
	}
	if c.Timeout <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "http-timeout", c.Timeout, nil)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "breaker-failure-ratio", c.BreakerFailureRatio, nil)
	}
	return nil
}

// Client implements every ledger contract over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
	loc        *time.Location
	breakers   map[string]*gobreaker.CircuitBreaker
	logger     logger.Logger
}

// New creates a REST ledger client. A nil httpClient gets one with the
// configured timeout.
func New(config *Config, httpClient *http.Client) (*Client, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "ledger-url", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	loc := config.Location
	if loc == nil {
		loc = time.UTC
	}

	log := logger.WithComponent("http_ledger")
	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, section := range []string{SectionFees, SectionExpenses, SectionClients, SectionCarryOver, SectionBeneficiaries} {
		breakers[section] = newBreaker(section, config, log)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		loc:        loc,
		breakers:   breakers,
		logger:     log,
	}, nil
}

func newBreaker(section string, config *Config, log logger.Logger) *gobreaker.CircuitBreaker {
	minRequests := config.BreakerMinRequests
	ratio := config.BreakerFailureRatio

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        section,
		MaxRequests: config.BreakerMaxRequests,
		Interval:    config.BreakerInterval,
		Timeout:     config.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logger.Fields{
				"section": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Ledger circuit breaker changed state")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, errNotFound)
		},
	})
}

// Sources exposes the client as the full set of statement sources
func (c *Client) Sources() ledger.Sources {
	return ledger.Sources{
		Fees:          c,
		Expenses:      c,
		Clients:       c,
		CarryOver:     c,
		Beneficiaries: c,
	}
}

// BreakerState returns the state of a section's circuit breaker
func (c *Client) BreakerState(section string) gobreaker.State {
	if cb, ok := c.breakers[section]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// QueryFees implements ledger.FeeLedger
func (c *Client) QueryFees(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.FeeRecord, error) {
	var payload []feeDTO
	if err := c.get(ctx, SectionFees, "/fees", windowQuery(scope, clientID, window), &payload); err != nil {
		if stderrors.Is(err, errNotFound) {
			return []models.FeeRecord{}, nil
		}
		return nil, err
	}

	fees := make([]models.FeeRecord, 0, len(payload))
	for _, dto := range payload {
		fees = append(fees, dto.toModel(c.loc))
	}
	return fees, nil
}

// QueryExpenses implements ledger.ExpenseLedger
func (c *Client) QueryExpenses(ctx context.Context, scope models.Scope, clientID string, window filter.Window) ([]models.ExpenseRecord, error) {
	var payload []expenseDTO
	if err := c.get(ctx, SectionExpenses, "/expenses", windowQuery(scope, clientID, window), &payload); err != nil {
		if stderrors.Is(err, errNotFound) {
			return []models.ExpenseRecord{}, nil
		}
		return nil, err
	}

	expenses := make([]models.ExpenseRecord, 0, len(payload))
	for _, dto := range payload {
		expenses = append(expenses, dto.toModel(c.loc))
	}
	return expenses, nil
}

// GetClient implements ledger.ClientDirectory
func (c *Client) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	var payload models.Client
	path := "/clients/" + url.PathEscape(clientID)
	if err := c.get(ctx, SectionClients, path, nil, &payload); err != nil {
		if stderrors.Is(err, errNotFound) {
			return nil, ledger.ErrClientNotFound
		}
		return nil, err
	}
	if payload.ID == "" {
		payload.ID = clientID
	}
	return &payload, nil
}

// GetCarryOver implements ledger.CarryOverLedger; a 404 means no carry-over
func (c *Client) GetCarryOver(ctx context.Context, clientID string, year int) (*models.CarryOverBalance, error) {
	var payload carryOverDTO
	path := "/clients/" + url.PathEscape(clientID) + "/carry-over"
	query := url.Values{"year": []string{strconv.Itoa(year)}}
	if err := c.get(ctx, SectionCarryOver, path, query, &payload); err != nil {
		if stderrors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}

	fromYear := payload.FromYear
	if fromYear == 0 {
		fromYear = year - 1
	}
	return &models.CarryOverBalance{Amount: payload.Amount.Decimal(), FromYear: fromYear}, nil
}

// GetBeneficiaryStats implements ledger.BeneficiaryStatistics; a 404 means no activity
func (c *Client) GetBeneficiaryStats(ctx context.Context, name string) (*models.BeneficiaryStats, error) {
	var payload beneficiaryDTO
	query := url.Values{"name": []string{name}}
	if err := c.get(ctx, SectionBeneficiaries, "/beneficiaries/stats", query, &payload); err != nil {
		if stderrors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return payload.toModel(), nil
}

// get performs one GET through the section's breaker and decodes a JSON body
// into out. A 404 is returned as errNotFound; everything else is a FetchError.
func (c *Client) get(ctx context.Context, section, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	log := c.logger.WithFields(logger.Fields{
		"section":  section,
		"endpoint": endpoint,
	})
	started := time.Now()

	_, err := c.breakers[section].Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, errNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &statusError{status: resp.StatusCode}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &decodeError{err: err}
		}
		return nil, nil
	})

	if err == nil || stderrors.Is(err, errNotFound) {
		log.WithField("duration_ms", time.Since(started).Milliseconds()).Debug("Ledger request completed")
		return err
	}

	log.WithError(err).Warn("Ledger request failed")
	return classify(section, err)
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ledger returned status %d", e.status)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode ledger response: %v", e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

func classify(section string, err error) error {
	var status *statusError
	var decode *decodeError
	var netErr net.Error

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.FetchError(errors.CodeTimeout, section, err)
	case stderrors.As(err, &netErr) && netErr.Timeout():
		return errors.FetchError(errors.CodeTimeout, section, err)
	case stderrors.As(err, &decode):
		return errors.FetchError(errors.CodeBadResponse, section, err)
	case stderrors.As(err, &status) && status.status < 500:
		return errors.FetchError(errors.CodeBadResponse, section, err).WithContext("status", status.status)
	case stderrors.As(err, &status):
		return errors.FetchError(errors.CodeSourceUnavailable, section, err).WithContext("status", status.status)
	default:
		return errors.FetchError(errors.CodeSourceUnavailable, section, err)
	}
}

func windowQuery(scope models.Scope, clientID string, window filter.Window) url.Values {
	query := url.Values{}
	query.Set("scope", scope.String())
	if clientID != "" {
		query.Set("client_id", clientID)
	}
	if window.Bounded() {
		query.Set("start", window.Start.Format(models.DateLayout))
		query.Set("end", window.End.Format(models.DateLayout))
	}
	return query
}
