package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type MissionType string

const (
	MissionDelivery  MissionType = "delivery"
	MissionPatrol    MissionType = "patrol"
	MissionLeisure   MissionType = "leisure"
	MissionEmergency MissionType = "emergency"
)

func (m MissionType) Valid() bool {
	switch m {
	case MissionDelivery, MissionPatrol, MissionLeisure, MissionEmergency:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Role is the side an agent takes in a right-of-way trade.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleFlexible Role = "flexible"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleFlexible:
		return true
	}
	return false
}

// Mission is captured once per negotiation round and not modified afterwards.
type Mission struct {
	Type                  MissionType `json:"type" yaml:"type"`
	Deadline              *time.Time  `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Priority              Priority    `json:"priority" yaml:"priority"`
	DestinationImportance int         `json:"destination_importance" yaml:"destination_importance"`
}

// MinutesRemaining reports the time left until the deadline. ok is false
// when the mission has no deadline.
func (m Mission) MinutesRemaining(now time.Time) (minutes float64, ok bool) {
	if m.Deadline == nil {
		return 0, false
	}
	return m.Deadline.Sub(now).Minutes(), true
}

type NegotiationStrategy struct {
	MaxWillingToPay    decimal.Decimal `json:"max_willing_to_pay" yaml:"max_willing_to_pay"`
	MinAcceptableOffer decimal.Decimal `json:"min_acceptable_offer" yaml:"min_acceptable_offer"`
	PatienceLevel      int             `json:"patience_level" yaml:"patience_level"`
	PreferredRole      Role            `json:"preferred_role" yaml:"preferred_role"`
}

type HistoryEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Role       Role            `json:"role"`
	Amount     decimal.Decimal `json:"amount"`
	Success    bool            `json:"success"`
	LocationID string          `json:"location_id"`
}

// AgentContext describes one agent for the duration of a single negotiation
// call. It is owned by that call and never shared.
type AgentContext struct {
	AgentID            int                 `json:"agent_id"`
	Wallet             string              `json:"wallet"`
	Mission            Mission             `json:"mission"`
	Balance            decimal.Decimal     `json:"balance"`
	AlternativeRoutes  []string            `json:"alternative_routes"`
	NegotiationHistory []HistoryEntry      `json:"negotiation_history"`
	Strategy           NegotiationStrategy `json:"strategy"`
	CurrentPosition    Position            `json:"current_position"`
	Network            Network             `json:"network,omitempty"`
}

// SimulationID maps the numeric agent id onto the simulation agent key.
func (c *AgentContext) SimulationID() string {
	return fmt.Sprintf("agent-%d", c.AgentID)
}

// Summary is what an agent is allowed to know about its counterpart.
func (c *AgentContext) Summary() OtherSummary {
	return OtherSummary{
		Priority:          c.Mission.Priority,
		HasDeadline:       c.Mission.Deadline != nil,
		AlternativeRoutes: len(c.AlternativeRoutes),
	}
}

// SuccessRate is the share of successful past negotiations, 0–100.
func (c *AgentContext) SuccessRate() int {
	if len(c.NegotiationHistory) == 0 {
		return 0
	}
	ok := 0
	for _, h := range c.NegotiationHistory {
		if h.Success {
			ok++
		}
	}
	return ok * 100 / len(c.NegotiationHistory)
}

type OtherSummary struct {
	Priority          Priority `json:"priority"`
	HasDeadline       bool     `json:"has_deadline"`
	AlternativeRoutes int      `json:"alternative_routes"`
}

// Amount returns a pointer to a copy of d, for optional money fields.
func Amount(d decimal.Decimal) *decimal.Decimal {
	return &d
}
