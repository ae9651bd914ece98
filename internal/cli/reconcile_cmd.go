package cli

import (
	"fmt"

	"github.com/avandenberg/chargeclaim/internal/engine"
	"github.com/spf13/cobra"
)

func newReconcileCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Backfill the local ledger from the portal's transaction history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Config.Validate(); err != nil {
				return err
			}
			if err := app.Portal.Login(ctx); err != nil {
				return fmt.Errorf("logging in to reimbursement portal: %w", err)
			}

			eng := engine.New(engine.Options{
				Ledger: app.Ledger,
				Portal: app.Portal,
				Logger: app.Logger,
			})
			added, err := eng.Reconcile(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d claim(s) into the ledger.\n", added)
			return nil
		},
	}
}
