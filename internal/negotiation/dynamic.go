package negotiation

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/dyike/RightOfWay/internal/matcher"
	"github.com/dyike/RightOfWay/models"
)

// NegotiateWithDynamicRoles lets each agent pick its own role, then matches
// the two choices. A and B are evaluated in that order.
func (e *Engine) NegotiateWithDynamicRoles(ctx context.Context, a, b *models.AgentContext, locationID string) (*models.DynamicResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &models.DynamicResult{
		ID:         uuid.NewString(),
		LocationID: locationID,
		Method:     models.MethodFailed,
		Network:    e.networkFor(a),
	}
	system := func(format string, args ...any) {
		s := session{transcript: res.Transcript}
		s.system(format, args...)
		res.Transcript = s.transcript
	}

	system("Both agents evaluating collision scenario...")
	evalA := e.evaluator.Evaluate(ctx, a, b.Summary(), locationID)
	evalB := e.evaluator.Evaluate(ctx, b, a.Summary(), locationID)
	res.Evaluations = []models.SituationEvaluation{evalA, evalB}
	res.Transcript = append(res.Transcript,
		agentLine(a.AgentID, evalA),
		agentLine(b.AgentID, evalB),
	)

	match := matcher.Match(evalA, evalB, a, b)
	res.Method = match.Method
	if !match.Success {
		res.Outcome = models.OutcomeNoMatch
		if match.Unresolved {
			system("Unresolved: %s, an outside tie-break is required", match.Reason)
		}
		system("No agreement reached")
		log.Printf("[Negotiation] %s: no match (%s)", res.ID, match.Reason)
		e.archive(ctx, res.Record())
		return res, nil
	}

	res.Buyer, res.Seller, res.AgreedPrice = match.Buyer, match.Seller, match.AgreedPrice
	system("Match found: Agent %d (Buyer) <-> Agent %d (Seller)", match.Buyer.AgentID, match.Seller.AgentID)
	system("Agreed price: %s", money(*match.AgreedPrice))
	if match.Reason != "" {
		system("Note: %s", match.Reason)
	}

	res.Success = true
	res.Outcome = models.OutcomeSettled
	var err error
	switch {
	case e.settlement == nil:
	case match.Reason == matcher.ReasonUnpaidSeller:
		err = e.settlement.Release(ctx, match.Seller, &res.Transcript)
	default:
		err = e.settlement.Settle(ctx, match.Buyer, match.Seller, *match.AgreedPrice, locationID, &res.Transcript)
	}
	if err != nil {
		res.Success = false
		res.Outcome = models.OutcomeSettlementFailed
	}
	log.Printf("[Negotiation] %s: dynamic outcome=%s method=%s", res.ID, res.Outcome, res.Method)
	e.archive(ctx, res.Record())
	return res, err
}

func agentLine(id int, eval models.SituationEvaluation) string {
	s := session{}
	s.say(id, "%s (%s, urgency %d)", eval.Reasoning, eval.PreferredAction, eval.UrgencyScore)
	return s.transcript[0]
}
