package simulation

import (
	"errors"
	"fmt"
)

const (
	ActionInitialize = "initialize"
	ActionStart      = "start"
	ActionStop       = "stop"
	ActionReset      = "reset"
	ActionTrigger    = "trigger"
	ActionResolve    = "resolve"
)

var ErrUnknownAction = errors.New("unknown simulation action")

// Control applies a named control action. sellerID is only read by
// ActionResolve and defaults to SellerID.
func (m *Machine) Control(action, sellerID string) error {
	switch action {
	case ActionInitialize:
		m.Initialize()
	case ActionStart:
		m.Start()
	case ActionStop:
		m.Stop()
	case ActionReset:
		m.Reset()
	case ActionTrigger:
		m.TriggerCollision()
	case ActionResolve:
		if sellerID == "" {
			sellerID = SellerID
		}
		return m.ResolveCollision(sellerID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}
