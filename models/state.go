package models

import "github.com/shopspring/decimal"

type AgentState string

const (
	StateIdle    AgentState = "idle"
	StateMoving  AgentState = "moving"
	StateBlocked AgentState = "blocked"
	// StateNegotiating is a reporting label; the collision state machine never
	// stores it.
	StateNegotiating AgentState = "negotiating"
)

type Position struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

type SimulationAgent struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Address     string          `json:"address"`
	State       AgentState      `json:"state"`
	Position    Position        `json:"position"`
	Destination *Position       `json:"destination,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
}

// Clone returns a deep copy safe to hand out of the state machine.
func (a *SimulationAgent) Clone() SimulationAgent {
	c := *a
	if a.Destination != nil {
		d := *a.Destination
		c.Destination = &d
	}
	return c
}

type SimulationSnapshot struct {
	IsRunning         bool              `json:"isRunning"`
	CollisionDetected bool              `json:"collisionDetected"`
	CollisionLocation string            `json:"collisionLocation,omitempty"`
	Epoch             uint64            `json:"epoch"`
	Agents            []SimulationAgent `json:"agents"`
}
