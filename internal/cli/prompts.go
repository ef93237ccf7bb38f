package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/RightOfWay/internal/registry"
	"github.com/dyike/RightOfWay/models"
	"github.com/dyike/RightOfWay/pkg/app"
)

const (
	menuNegotiate = "Run a negotiation"
	menuSimulate  = "Run the collision simulation"
	menuHistory   = "Show negotiation history"
	menuConfig    = "Show configuration"
	menuExit      = "Exit"
)

// NegotiationSelections is what the interactive prompts collect.
type NegotiationSelections struct {
	Options negotiateOptions
}

// PromptForAction asks what to do next.
func PromptForAction() (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: "What would you like to do?",
		Options: []string{menuNegotiate, menuSimulate, menuHistory, menuConfig, menuExit},
		Default: menuNegotiate,
	}
	err := survey.AskOne(prompt, &choice)
	return choice, err
}

// agentOption renders a card as a select option, e.g. "1 - delivery (high)".
func agentOption(c registry.AgentCard) string {
	label := fmt.Sprintf("%d - %s (%s)", c.ID, c.Mission.Type, c.Mission.Priority)
	if c.Name != "" {
		label = fmt.Sprintf("%d - %s, %s (%s)", c.ID, c.Name, c.Mission.Type, c.Mission.Priority)
	}
	return label
}

func parseAgentOption(opt string) (int, error) {
	id, _, _ := strings.Cut(opt, " - ")
	return strconv.Atoi(strings.TrimSpace(id))
}

// PromptForAgent asks for one agent from the registry, excluding an id
// already chosen.
func PromptForAgent(message string, cards []registry.AgentCard, exclude int) (int, error) {
	var options []string
	for _, c := range cards {
		if c.ID != exclude {
			options = append(options, agentOption(c))
		}
	}
	if len(options) == 0 {
		return 0, fmt.Errorf("no agents available")
	}
	var choice string
	if err := survey.AskOne(&survey.Select{Message: message, Options: options}, &choice); err != nil {
		return 0, err
	}
	return parseAgentOption(choice)
}

// PromptForLocation asks for a location id; predefined or LOC_<lat>_<lng>.
func PromptForLocation() (string, error) {
	var loc string
	prompt := &survey.Input{
		Message: "Contested location:",
		Help:    "A predefined id such as LOC_001, or a coordinate id like LOC_35.6787_139.7587",
		Default: models.LocationIntersection,
	}
	err := survey.AskOne(prompt, &loc, survey.WithValidator(func(val interface{}) error {
		str := strings.TrimSpace(val.(string))
		if _, ok := models.ParseLocationID(str); !ok {
			return fmt.Errorf("unknown location id %q", str)
		}
		return nil
	}))
	return strings.TrimSpace(loc), err
}

// PromptForMode asks which negotiation protocol to run.
func PromptForMode() (string, error) {
	const (
		bargain = "Offer/counter bargaining"
		dynamic = "Evaluate both agents and match roles"
	)
	var choice string
	prompt := &survey.Select{
		Message: "Negotiation mode:",
		Options: []string{bargain, dynamic},
		Default: bargain,
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	if choice == dynamic {
		return app.ModeDynamic, nil
	}
	return app.ModeAIToAI, nil
}

// PromptForNetwork asks for the settlement network, defaulting to the
// configured one.
func PromptForNetwork(current string) (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: "Settlement network:",
		Options: []string{string(models.NetworkFuji), string(models.NetworkSepolia)},
		Default: current,
	}
	err := survey.AskOne(prompt, &choice)
	return choice, err
}

// PromptForNegotiation collects a full negotiation request.
func PromptForNegotiation(cards []registry.AgentCard, network string) (NegotiationSelections, error) {
	var sel NegotiationSelections
	var err error

	if sel.Options.agent1, err = PromptForAgent("First agent:", cards, 0); err != nil {
		return sel, err
	}
	if sel.Options.agent2, err = PromptForAgent("Second agent:", cards, sel.Options.agent1); err != nil {
		return sel, err
	}
	if sel.Options.location, err = PromptForLocation(); err != nil {
		return sel, err
	}
	mode, err := PromptForMode()
	if err != nil {
		return sel, err
	}
	sel.Options.dynamic = mode == app.ModeDynamic
	if sel.Options.network, err = PromptForNetwork(network); err != nil {
		return sel, err
	}
	err = survey.AskOne(&survey.Confirm{
		Message: "Export the transcript as markdown?",
		Default: false,
	}, &sel.Options.export)
	return sel, err
}

// PromptForConfirmation asks whether to run the collected request.
func PromptForConfirmation() (bool, error) {
	var confirmed bool
	prompt := &survey.Confirm{
		Message: "Proceed with this negotiation?",
		Default: true,
	}
	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}
