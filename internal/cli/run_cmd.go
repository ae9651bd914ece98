package cli

import (
	"fmt"
	"os"

	"github.com/avandenberg/chargeclaim/internal/cli/formatter"
	"github.com/avandenberg/chargeclaim/internal/config"
	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/avandenberg/chargeclaim/internal/engine"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runOptions holds the flag values for the run command.
type runOptions struct {
	dryRun       bool
	yes          bool
	maxSessions  int
	fromInvoices string
}

// registerRunFlags binds the run command's flags to opts.
func registerRunFlags(fs *pflag.FlagSet, opts *runOptions) {
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Record what would be submitted without calling the portal")
	fs.BoolVarP(&opts.yes, "yes", "y", false, "Approve every submission without prompting")
	fs.IntVar(&opts.maxSessions, "max", 0, "Maximum number of sessions to fetch (default from MAX_SESSIONS)")
	fs.StringVar(&opts.fromInvoices, "from-invoices", "", "Build candidates from an invoice file or zip archive instead of the telematics API")
}

func newRunCmd(app *App) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch recent charging sessions and submit new claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := app.Config

			dryRun := opts.dryRun || cfg.Mode == config.ModeDry
			if !dryRun || opts.fromInvoices == "" {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			maxSessions := cfg.MaxSessions
			if opts.maxSessions > 0 {
				maxSessions = opts.maxSessions
			}

			var candidates []domain.ChargingSession
			var err error
			if opts.fromInvoices != "" {
				candidates, err = app.Extractor.ExtractSessions(opts.fromInvoices)
			} else {
				candidates, err = app.Source.FetchRecentSessions(ctx, cfg.VIN, maxSessions)
			}
			if err != nil {
				return fmt.Errorf("gathering candidate sessions: %w", err)
			}
			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No charging sessions found.")
				return nil
			}

			var confirmer engine.Confirmer
			if !opts.yes && isatty.IsTerminal(os.Stdin.Fd()) {
				confirmer = promptConfirmer{}
			}

			if !dryRun {
				if err := app.Portal.Login(ctx); err != nil {
					return fmt.Errorf("logging in to reimbursement portal: %w", err)
				}
			}

			eng := engine.New(engine.Options{
				Ledger:         app.Ledger,
				Portal:         app.Portal,
				Invoices:       app.Documents,
				Confirmer:      confirmer,
				Claimant:       cfg.Claimant(),
				DryRun:         dryRun,
				SubmitAttempts: cfg.SubmitAttempts,
				Logger:         app.Logger,
			})

			summary, err := eng.Run(ctx, candidates)
			if summary != nil && len(summary.Results) > 0 {
				fmt.Fprint(cmd.OutOrStdout(), formatter.FormatSummary(summary))
			}
			return err
		},
	}

	registerRunFlags(cmd.Flags(), &opts)
	return cmd
}
