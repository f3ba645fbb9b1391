// Package config turns command-line, file and environment settings into the
// configurations of the ledger sources, the statement engine and the reporter.
package config

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/ledger"
	"etat-statement-service/internal/ledger/csvledger"
	"etat-statement-service/internal/ledger/httpledger"
	"etat-statement-service/internal/reporter"
	"etat-statement-service/internal/statement"
	"etat-statement-service/pkg/errors"
	"etat-statement-service/pkg/logger"
)

// Ledger source kinds
const (
	SourceCSV  = "csv"
	SourceHTTP = "http"
)

// Setting keys shared by flags, config files and ETAT_* variables
const (
	KeyTimezone       = "timezone"
	KeySource         = "source"
	KeyFeesFile       = "fees-file"
	KeyExpensesFile   = "expenses-file"
	KeyCarryOverFile  = "carryover-file"
	KeyClientsFile    = "clients-file"
	KeyLedgerURL      = "ledger-url"
	KeyHTTPTimeout    = "http-timeout"
	KeySectionTimeout = "section-timeout"
	KeyOutputFormat   = "output-format"
	KeyOutputFile     = "output-file"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyMetricsFile    = "metrics-file"
	KeyVerbose        = "verbose"
)

// EnvPrefix is the prefix of environment variables read as settings
const EnvPrefix = "ETAT"

// Settings is the resolved set of values a command runs with
type Settings struct {
	Timezone       string
	Source         string
	FeesFile       string
	ExpensesFile   string
	CarryOverFile  string
	ClientsFile    string
	LedgerURL      string
	HTTPTimeout    time.Duration
	SectionTimeout time.Duration
	OutputFormat   string
	OutputFile     string
	LogLevel       string
	LogFormat      string
	MetricsFile    string
	Verbose        bool
}

// SetDefaults registers the default value of every setting
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTimezone, filter.DefaultTimezone)
	v.SetDefault(KeySource, SourceCSV)
	v.SetDefault(KeyHTTPTimeout, 10*time.Second)
	v.SetDefault(KeySectionTimeout, 30*time.Second)
	v.SetDefault(KeyOutputFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyLogLevel, string(logger.WarnLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
}

// BindEnv makes v read ETAT_* variables, with dashes in keys read as underscores
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads KEY=value files into the process environment. Variables
// already set keep their value, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "env-file", path, err).
				WithSuggestion("Check the KEY=value syntax of the environment file")
		}
	}
	return nil
}

// Load reads and validates the settings held by v
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Timezone:       v.GetString(KeyTimezone),
		Source:         strings.ToLower(strings.TrimSpace(v.GetString(KeySource))),
		FeesFile:       v.GetString(KeyFeesFile),
		ExpensesFile:   v.GetString(KeyExpensesFile),
		CarryOverFile:  v.GetString(KeyCarryOverFile),
		ClientsFile:    v.GetString(KeyClientsFile),
		LedgerURL:      v.GetString(KeyLedgerURL),
		HTTPTimeout:    v.GetDuration(KeyHTTPTimeout),
		SectionTimeout: v.GetDuration(KeySectionTimeout),
		OutputFormat:   strings.ToLower(v.GetString(KeyOutputFormat)),
		OutputFile:     v.GetString(KeyOutputFile),
		LogLevel:       strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:      strings.ToLower(v.GetString(KeyLogFormat)),
		MetricsFile:    v.GetString(KeyMetricsFile),
		Verbose:        v.GetBool(KeyVerbose),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings without touching the file system or network
func (s *Settings) Validate() error {
	switch s.Source {
	case SourceCSV:
		if strings.TrimSpace(s.FeesFile) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, KeyFeesFile, s.FeesFile, nil).
				WithSuggestion("Pass --fees-file or set ETAT_FEES_FILE")
		}
		if strings.TrimSpace(s.ExpensesFile) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, KeyExpensesFile, s.ExpensesFile, nil).
				WithSuggestion("Pass --expenses-file or set ETAT_EXPENSES_FILE")
		}
	case SourceHTTP:
		if strings.TrimSpace(s.LedgerURL) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, KeyLedgerURL, s.LedgerURL, nil).
				WithSuggestion("Pass --ledger-url or set ETAT_LEDGER_URL")
		}
		if s.HTTPTimeout <= 0 {
			return errors.ConfigurationError(errors.CodeInvalidConfig, KeyHTTPTimeout, s.HTTPTimeout, nil)
		}
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeySource, s.Source, nil).
			WithSuggestion("Use one of: csv, http")
	}

	if !reporter.OutputFormat(s.OutputFormat).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, s.OutputFormat, nil).
			WithSuggestion("Use one of: console, json, csv")
	}
	if s.SectionTimeout < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeySectionTimeout, s.SectionTimeout, nil)
	}

	return nil
}

// Location loads the reference zone
func (s *Settings) Location() (*time.Location, error) {
	return filter.LoadLocation(s.Timezone)
}

// CreateLoggerConfig builds the logger configuration; verbose selects the
// debug configuration, with caller info, in the configured format
func CreateLoggerConfig(s *Settings) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Level = logger.Level(s.LogLevel)
	if s.Verbose {
		config = logger.DebugConfig()
	}
	config.Format = logger.Format(s.LogFormat)

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyLogLevel, s.LogLevel, err).
			WithSuggestion("Use log levels debug, info, warn, error and formats text, json")
	}
	return config, nil
}

// CreateEngineConfig builds the statement engine configuration
func CreateEngineConfig(s *Settings, loc *time.Location) *statement.Config {
	config := statement.DefaultConfig()
	config.Location = loc
	config.SectionTimeout = s.SectionTimeout
	return config
}

// CreateSources builds the ledger sources selected by the settings.
// A nil httpClient selects a client with the configured timeout.
func CreateSources(s *Settings, loc *time.Location, httpClient *http.Client) (ledger.Sources, error) {
	switch s.Source {
	case SourceCSV:
		l, err := csvledger.New(&csvledger.Config{
			FeesFile:      s.FeesFile,
			ExpensesFile:  s.ExpensesFile,
			CarryOverFile: s.CarryOverFile,
			ClientsFile:   s.ClientsFile,
			Location:      loc,
			Read:          csvledger.DefaultReadConfig(),
		})
		if err != nil {
			return ledger.Sources{}, err
		}
		return l.Sources(), nil

	case SourceHTTP:
		config := httpledger.DefaultConfig(s.LedgerURL)
		config.Timeout = s.HTTPTimeout
		config.Location = loc
		if httpClient == nil {
			httpClient = &http.Client{Timeout: s.HTTPTimeout}
		}
		client, err := httpledger.New(config, httpClient)
		if err != nil {
			return ledger.Sources{}, err
		}
		return client.Sources(), nil

	default:
		return ledger.Sources{}, errors.ConfigurationError(errors.CodeInvalidConfig, KeySource, s.Source, nil)
	}
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch reporter.OutputFormat(format) {
	case reporter.FormatJSON:
		config.Format = reporter.FormatJSON
	case reporter.FormatCSV:
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	default:
		config.Format = reporter.FormatConsole
	}

	return config
}
