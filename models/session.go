package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeRejected  Outcome = "rejected"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeNoMatch   Outcome = "no_match"
	// OutcomeSettlementFailed is only reported in production mode, where a
	// failed payment leaves the collision unresolved.
	OutcomeSettlementFailed Outcome = "settlement_failed"
	// OutcomeNoCollision means nothing was negotiated because no collision
	// was waiting at the requested location.
	OutcomeNoCollision Outcome = "no_collision"
)

// NegotiationResult is returned by the AI-to-AI protocol on every path.
type NegotiationResult struct {
	ID           string             `json:"id"`
	LocationID   string             `json:"location_id"`
	Success      bool               `json:"success"`
	FinalPrice   *decimal.Decimal   `json:"final_price,omitempty"`
	MarketPrice  decimal.Decimal    `json:"market_price"`
	Rounds       int                `json:"rounds"`
	Outcome      Outcome            `json:"outcome"`
	Buyer        int                `json:"buyer"`
	Seller       int                `json:"seller"`
	Conversation []ConversationTurn `json:"conversation"`
	Transcript   []string           `json:"transcript"`
	Network      Network            `json:"network"`
}

// DynamicResult is returned by the evaluate-then-match negotiation.
type DynamicResult struct {
	ID          string                `json:"id"`
	LocationID  string                `json:"location_id"`
	Success     bool                  `json:"success"`
	Buyer       *AgentContext         `json:"buyer,omitempty"`
	Seller      *AgentContext         `json:"seller,omitempty"`
	AgreedPrice *decimal.Decimal      `json:"agreed_price,omitempty"`
	Method      MatchMethod           `json:"method"`
	Outcome     Outcome               `json:"outcome"`
	Evaluations []SituationEvaluation `json:"evaluations"`
	Transcript  []string              `json:"transcript"`
	Network     Network               `json:"network"`
}

// NegotiationRecord is the archived form of either result kind.
type NegotiationRecord struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	LocationID  string             `json:"location_id"`
	Network     Network            `json:"network"`
	BuyerID     int                `json:"buyer_id"`
	SellerID    int                `json:"seller_id"`
	Success     bool               `json:"success"`
	Outcome     Outcome            `json:"outcome"`
	Price       *decimal.Decimal   `json:"price,omitempty"`
	MarketPrice *decimal.Decimal   `json:"market_price,omitempty"`
	Rounds      int                `json:"rounds"`
	Turns       []ConversationTurn `json:"turns,omitempty"`
	Transcript  []string           `json:"transcript,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

const (
	KindAIToAI  = "ai_to_ai"
	KindDynamic = "dynamic"
)

// Record converts the result into its archived form.
func (r *NegotiationResult) Record() NegotiationRecord {
	market := r.MarketPrice
	return NegotiationRecord{
		ID:          r.ID,
		Kind:        KindAIToAI,
		LocationID:  r.LocationID,
		Network:     r.Network,
		BuyerID:     r.Buyer,
		SellerID:    r.Seller,
		Success:     r.Success,
		Outcome:     r.Outcome,
		Price:       r.FinalPrice,
		MarketPrice: &market,
		Rounds:      r.Rounds,
		Turns:       r.Conversation,
		Transcript:  r.Transcript,
	}
}

func (r *DynamicResult) Record() NegotiationRecord {
	rec := NegotiationRecord{
		ID:         r.ID,
		Kind:       KindDynamic,
		LocationID: r.LocationID,
		Network:    r.Network,
		Success:    r.Success,
		Outcome:    r.Outcome,
		Price:      r.AgreedPrice,
		Transcript: r.Transcript,
	}
	if r.Buyer != nil {
		rec.BuyerID = r.Buyer.AgentID
	}
	if r.Seller != nil {
		rec.SellerID = r.Seller.AgentID
	}
	return rec
}
