package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/models"
	"etat-statement-service/internal/statement"
	"etat-statement-service/pkg/errors"
)

// selection holds the filter flags of the statement command
type selection struct {
	day   string
	from  string
	to    string
	month int
	year  int
	all   bool
}

// Flags for the statement command
var (
	stmtScope  string
	stmtClient string
	stmtSel    selection
	stmtStrict bool
)

// statementCmd represents the statement command
var statementCmd = &cobra.Command{
	Use:   "statement",
	Short: "Compute the office or client statement over a time window",
	Long: `Statement computes received fees, expenses and the balance of the office
or of one client. Client statements also show the carry-over of the reference
year and the final balance.

Exactly one window may be selected; without one, all dates are used.

Examples:
  # One day, office scope
  etat statement --day 2025-03-05

  # A client over a date range (both days included)
  etat statement --scope client --client C42 --from 2025-01-01 --to 2025-03-31

  # A month and a year
  etat statement --month 3 --year 2025
  etat statement --year 2024 --output-format json --output-file etat-2024.json`,
	RunE: runStatement,
}

func init() {
	rootCmd.AddCommand(statementCmd)

	statementCmd.Flags().StringVar(&stmtScope, "scope", string(models.ScopeOffice), "statement scope: office, client")
	statementCmd.Flags().StringVar(&stmtClient, "client", "", "client id (required with --scope client)")
	statementCmd.Flags().StringVar(&stmtSel.day, "day", "", "single day (YYYY-MM-DD)")
	statementCmd.Flags().StringVar(&stmtSel.from, "from", "", "range start day, included (YYYY-MM-DD)")
	statementCmd.Flags().StringVar(&stmtSel.to, "to", "", "range end day, included (YYYY-MM-DD)")
	statementCmd.Flags().IntVar(&stmtSel.month, "month", 0, "month 1-12 (requires --year)")
	statementCmd.Flags().IntVar(&stmtSel.year, "year", 0, "calendar year")
	statementCmd.Flags().BoolVar(&stmtSel.all, "all", false, "all dates")
	statementCmd.Flags().BoolVar(&stmtStrict, "strict", false, "fail when a statement section is unavailable")
}

func runStatement(cmd *cobra.Command, args []string) error {
	spec, err := stmtSel.filterSpec()
	if err != nil {
		return err
	}

	scope, err := models.ParseScope(stmtScope)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidScope, "scope", stmtScope)
	}

	req := statement.Request{
		Filter:  spec,
		Context: statement.Context{Scope: scope, ClientID: strings.TrimSpace(stmtClient)},
	}
	// rejected requests never reach the ledgers
	if _, err := filter.NewResolver(nil).Resolve(spec); err != nil {
		return err
	}
	if err := req.Context.Validate(); err != nil {
		return err
	}

	a, err := newApp(viper.GetViper())
	if err != nil {
		return err
	}
	return a.run(commandContext(cmd), req, cmd.OutOrStdout(), stmtStrict)
}

// filterSpec turns the window flags into a filter selection
func (s selection) filterSpec() (filter.FilterSpec, error) {
	var chosen []string
	if s.day != "" {
		chosen = append(chosen, "--day")
	}
	if s.from != "" || s.to != "" {
		chosen = append(chosen, "--from/--to")
	}
	if s.month != 0 {
		chosen = append(chosen, "--month")
	} else if s.year != 0 {
		chosen = append(chosen, "--year")
	}
	if s.all {
		chosen = append(chosen, "--all")
	}

	if len(chosen) > 1 {
		return filter.FilterSpec{}, errors.ValidationError(errors.CodeUnknownMode, "window", strings.Join(chosen, " and ")).
			WithSuggestion("Select a single window: --day, --from/--to, --month with --year, --year or --all")
	}

	switch {
	case s.day != "":
		return filter.Day(s.day), nil
	case s.from != "" || s.to != "":
		return filter.Range(s.from, s.to), nil
	case s.month != 0:
		return filter.Month(s.month, s.year), nil
	case s.year != 0:
		return filter.Year(s.year), nil
	default:
		return filter.All(), nil
	}
}
