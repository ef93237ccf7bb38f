package negotiation

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/consts"
	"github.com/dyike/RightOfWay/models"
)

// session is the state one negotiation carries through the graph. It is
// owned by a single Negotiate call.
type session struct {
	id         string
	buyer      *models.AgentContext
	seller     *models.AgentContext
	locationID string
	market     decimal.Decimal
	rng        *rand.Rand

	round   int
	offer   decimal.Decimal
	counter decimal.Decimal

	conversation []models.ConversationTurn
	transcript   []string

	next       string
	outcome    models.Outcome
	finalPrice *decimal.Decimal
	settleErr  error
}

func (s *session) system(format string, args ...any) {
	s.transcript = append(s.transcript, consts.SpeakerSystem+" "+fmt.Sprintf(format, args...))
}

func (s *session) say(agentID int, format string, args ...any) {
	s.transcript = append(s.transcript, fmt.Sprintf("[Agent %d] ", agentID)+fmt.Sprintf(format, args...))
}

func (s *session) turn(speaker int, action models.TurnAction, amount decimal.Decimal, format string) {
	s.conversation = append(s.conversation, models.ConversationTurn{
		Speaker:     speaker,
		Message:     fmt.Sprintf(format, money(amount)),
		OfferAmount: models.Amount(amount),
		Action:      action,
	})
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2) + " " + consts.Currency
}

func (s *session) result(network models.Network) *models.NegotiationResult {
	return &models.NegotiationResult{
		ID:           s.id,
		LocationID:   s.locationID,
		Success:      s.outcome == models.OutcomeSettled,
		FinalPrice:   s.finalPrice,
		MarketPrice:  s.market,
		Rounds:       s.round,
		Outcome:      s.outcome,
		Buyer:        s.buyer.AgentID,
		Seller:       s.seller.AgentID,
		Conversation: s.conversation,
		Transcript:   s.transcript,
		Network:      network,
	}
}
