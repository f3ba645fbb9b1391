package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"etat-statement-service/cmd/etat/config"
)

var (
	cfgFile  string
	envFiles []string
	version  = "dev"
	commit   = "unknown"
	date     = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "etat",
	Short: "Fee and expense statement tool",
	Long: `Etat computes the fee/expense statement ("état") of the office or of a
single client over a day, a date range, a month, a year or all dates, and the
statement of a named beneficiary.

Records are read from CSV ledger exports or from the office's REST ledger on
every run; nothing is cached between runs.

Examples:
  etat statement --fees-file fees.csv --expenses-file expenses.csv --month 3 --year 2025
  etat statement --scope client --client C42 --from 2025-01-01 --to 2025-03-31
  etat statement --source http --ledger-url https://ledger.local --year 2024 --output-format json
  etat beneficiary --name Smith`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "environment files loaded before reading ETAT_* variables")
	flags.BoolP(config.KeyVerbose, "v", false, "verbose output")

	// Ledger sources
	flags.String(config.KeySource, config.SourceCSV, "ledger source: csv, http")
	flags.String(config.KeyFeesFile, "", "fee ledger CSV file")
	flags.String(config.KeyExpensesFile, "", "expense ledger CSV file")
	flags.String(config.KeyCarryOverFile, "", "carry-over CSV file (optional)")
	flags.String(config.KeyClientsFile, "", "client directory CSV file (optional)")
	flags.String(config.KeyLedgerURL, "", "base URL of the REST ledger")
	flags.Duration(config.KeyHTTPTimeout, 0, "REST ledger request timeout (default 10s)")
	flags.Duration(config.KeySectionTimeout, 0, "timeout of each statement section fetch (default 30s)")

	// Engine and output
	flags.String(config.KeyTimezone, "", "reference time zone of calendar days (default Europe/Paris)")
	flags.StringP(config.KeyOutputFormat, "f", "", "output format: console, json, csv (default console)")
	flags.StringP(config.KeyOutputFile, "o", "", "output file path (default: stdout)")
	flags.String(config.KeyLogLevel, "", "log level: debug, info, warn, error (default warn)")
	flags.String(config.KeyLogFormat, "", "log format: text, json (default text)")
	flags.String(config.KeyMetricsFile, "", "write statement metrics to this file in Prometheus text format")

	for _, key := range []string{
		config.KeyVerbose,
		config.KeySource,
		config.KeyFeesFile,
		config.KeyExpensesFile,
		config.KeyCarryOverFile,
		config.KeyClientsFile,
		config.KeyLedgerURL,
		config.KeyHTTPTimeout,
		config.KeySectionTimeout,
		config.KeyTimezone,
		config.KeyOutputFormat,
		config.KeyOutputFile,
		config.KeyLogLevel,
		config.KeyLogFormat,
		config.KeyMetricsFile,
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}

	config.SetDefaults(viper.GetViper())
}

// initConfig reads in the environment files, the config file and ETAT_* variables
func initConfig() {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading environment file: %s\n", err)
		os.Exit(4)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}

		if viper.GetBool(config.KeyVerbose) {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	config.BindEnv(viper.GetViper())
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
