package cli

import (
	"context"
	"errors"
	"time"

	"github.com/AlecAivazis/survey/v2/terminal"
)

// runInteractiveMode loops over the main menu until the user exits or
// interrupts.
func runInteractiveMode(ctx context.Context, s *session) error {
	DisplayWelcomeBanner(s.out)

	for {
		action, err := PromptForAction()
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		switch action {
		case menuExit:
			DisplayInfo(s.out, "Bye.")
			return nil
		case menuNegotiate:
			err = interactiveNegotiation(ctx, s)
		case menuSimulate:
			simCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			err = runSimulation(simCtx, s, negotiateOptions{agent1: 1, agent2: 2, dynamic: true})
			cancel()
		case menuHistory:
			err = runHistory(ctx, s, "", 20)
		case menuConfig:
			cfg, cfgErr := s.config()
			if cfgErr == nil {
				showConfig(s.out, s.mgr.Path(), &cfg)
			}
			err = cfgErr
		}

		if errors.Is(err, terminal.InterruptErr) {
			continue
		}
		if err != nil {
			DisplayError(s.out, err)
		}
	}
}

func interactiveNegotiation(ctx context.Context, s *session) error {
	rt, err := s.runtime(ctx)
	if err != nil {
		return err
	}
	sel, err := PromptForNegotiation(rt.Services().Registry.Cards(), rt.Config().Network)
	if err != nil {
		return err
	}
	DisplayRequestSummary(s.out, sel)
	ok, err := PromptForConfirmation()
	if err != nil || !ok {
		return err
	}
	if err := runNegotiation(ctx, s, sel.Options); err != nil {
		return err
	}
	DisplaySuccess(s.out, "Negotiation finished.")
	return nil
}
