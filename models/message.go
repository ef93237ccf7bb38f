package models

import "github.com/shopspring/decimal"

type TurnAction string

const (
	TurnInitialOffer TurnAction = "initial_offer"
	TurnCounterOffer TurnAction = "counter_offer"
	TurnAccept       TurnAction = "accept"
	TurnReject       TurnAction = "reject"
)

// ConversationTurn is one entry of the append-only negotiation conversation.
type ConversationTurn struct {
	Speaker     int              `json:"speaker"`
	Message     string           `json:"message"`
	OfferAmount *decimal.Decimal `json:"offer_amount,omitempty"`
	Action      TurnAction       `json:"action"`
}
