package cli

import (
	"context"
	"fmt"

	"github.com/avandenberg/chargeclaim/internal/claim"
	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/charmbracelet/huh"
)

// promptConfirmer asks the operator to approve each claim in the terminal.
// Declining skips the session; aborting the form (ctrl-c) aborts the run.
type promptConfirmer struct{}

func (promptConfirmer) Confirm(ctx context.Context, s domain.ChargingSession, p claim.Payload) (bool, error) {
	approve := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Submit claim for %s?", s.LocationLabel)).
				Description(fmt.Sprintf("%s %s for %s kWh on %s",
					p.Amount, s.Currency, p.Quantity, p.DateTransaction)).
				Affirmative("Submit").
				Negative("Skip").
				Value(&approve),
		),
	).WithShowHelp(false)

	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return approve, nil
}
