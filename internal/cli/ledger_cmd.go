package cli

import (
	"fmt"

	"github.com/avandenberg/chargeclaim/internal/cli/formatter"
	"github.com/spf13/cobra"
)

func newLedgerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the local submission ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all recorded submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := app.Ledger.List(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatLedger(records))
			return nil
		},
	})

	return cmd
}
