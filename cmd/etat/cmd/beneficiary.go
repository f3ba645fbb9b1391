package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"etat-statement-service/internal/filter"
	"etat-statement-service/internal/statement"
)

var (
	beneficiaryName   string
	beneficiaryStrict bool
)

// beneficiaryCmd represents the beneficiary command
var beneficiaryCmd = &cobra.Command{
	Use:   "beneficiary",
	Short: "Show the statement of a named beneficiary",
	Long: `Beneficiary shows the totals of a named beneficiary as aggregated by the
ledger: fees whose label names the beneficiary, expenses paid to it, and the
balance. No time window or scope applies.

Examples:
  etat beneficiary --name Smith
  etat beneficiary --name "Cabinet Martin" --output-format json`,
	RunE: runBeneficiary,
}

func init() {
	rootCmd.AddCommand(beneficiaryCmd)

	beneficiaryCmd.Flags().StringVar(&beneficiaryName, "name", "", "beneficiary name (required)")
	beneficiaryCmd.Flags().BoolVar(&beneficiaryStrict, "strict", false, "fail when the beneficiary statistics are unavailable")
	beneficiaryCmd.MarkFlagRequired("name")
}

func runBeneficiary(cmd *cobra.Command, args []string) error {
	spec := filter.Beneficiary(beneficiaryName)
	if _, err := filter.NewResolver(nil).Resolve(spec); err != nil {
		return err
	}

	a, err := newApp(viper.GetViper())
	if err != nil {
		return err
	}
	return a.run(commandContext(cmd), statement.Request{Filter: spec}, cmd.OutOrStdout(), beneficiaryStrict)
}
