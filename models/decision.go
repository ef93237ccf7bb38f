package models

import "github.com/shopspring/decimal"

// Action is an agent's preferred response to a collision.
type Action string

const (
	ActionPayAndPass      Action = "pay_and_pass"
	ActionWaitForPayment  Action = "wait_for_payment"
	ActionFindAlternative Action = "find_alternative"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPayAndPass, ActionWaitForPayment, ActionFindAlternative:
		return true
	}
	return false
}

type MatchMethod string

const (
	MethodDirectMatch MatchMethod = "direct_match"
	MethodCompromise  MatchMethod = "compromise"
	MethodFailed      MatchMethod = "failed"
)

// SituationEvaluation is derived per negotiation and discarded after matching.
type SituationEvaluation struct {
	AgentID         int              `json:"agent_id"`
	WillingToPay    *decimal.Decimal `json:"willing_to_pay,omitempty"`
	WillingToAccept *decimal.Decimal `json:"willing_to_accept,omitempty"`
	PreferredAction Action           `json:"preferred_action"`
	Reasoning       string           `json:"reasoning"`
	UrgencyScore    int              `json:"urgency_score"`
	Fallback        bool             `json:"fallback"`
}

type NegotiationMatch struct {
	Success     bool             `json:"success"`
	Buyer       *AgentContext    `json:"buyer,omitempty"`
	Seller      *AgentContext    `json:"seller,omitempty"`
	AgreedPrice *decimal.Decimal `json:"agreed_price,omitempty"`
	Method      MatchMethod      `json:"method"`
	// Unresolved marks a match that could not be decided from the inputs
	// (equal urgency on both sides) and needs an outside tie-break.
	Unresolved bool   `json:"unresolved,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
