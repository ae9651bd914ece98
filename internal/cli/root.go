package cli

import (
	"github.com/avandenberg/chargeclaim/internal/config"
	"github.com/avandenberg/chargeclaim/internal/engine"
	"github.com/avandenberg/chargeclaim/internal/invoice"
	"github.com/avandenberg/chargeclaim/internal/ledger"
	"github.com/avandenberg/chargeclaim/internal/portal"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// App holds the wired dependencies CLI commands run against.
type App struct {
	Source    engine.SessionSource
	Documents engine.InvoiceFetcher
	Extractor *invoice.Extractor
	Portal    *portal.Client
	Ledger    ledger.Ledger
	Config    config.Config
	Logger    *log.Logger
}

// NewRootCmd creates the top-level "chargeclaim" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "chargeclaim",
		Short:         "Submit EV charging sessions as reimbursement claims",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(app),
		newReconcileCmd(app),
		newLedgerCmd(app),
	)

	return root
}
