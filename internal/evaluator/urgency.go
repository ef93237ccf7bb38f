package evaluator

import (
	"time"

	"github.com/dyike/RightOfWay/models"
)

const (
	UrgentThreshold  = 60
	RelaxedThreshold = 30
)

// UrgencyScore rates how badly an agent needs to pass, 0–100.
func UrgencyScore(c *models.AgentContext, now time.Time) int {
	score := 0

	switch c.Mission.Priority {
	case models.PriorityHigh:
		score += 40
	case models.PriorityMedium:
		score += 20
	}

	if minutes, ok := c.Mission.MinutesRemaining(now); ok {
		switch {
		case minutes < 10:
			score += 30
		case minutes < 30:
			score += 20
		case minutes < 60:
			score += 10
		}
	}

	switch len(c.AlternativeRoutes) {
	case 0:
		score += 20
	case 1:
		score += 10
	}

	if p := 10 - c.Strategy.PatienceLevel; p > 0 {
		score += p
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Fallback decides from urgency alone, without consulting the proposer.
func Fallback(c *models.AgentContext, now time.Time) models.SituationEvaluation {
	urgency := UrgencyScore(c, now)
	eval := models.SituationEvaluation{
		AgentID:      c.AgentID,
		UrgencyScore: urgency,
		Fallback:     true,
	}
	switch {
	case urgency >= UrgentThreshold:
		eval.PreferredAction = models.ActionPayAndPass
		eval.WillingToPay = models.Amount(c.Strategy.MaxWillingToPay)
		eval.Reasoning = "High urgency detected (fallback)"
	case urgency <= RelaxedThreshold:
		eval.PreferredAction = models.ActionWaitForPayment
		eval.WillingToAccept = models.Amount(c.Strategy.MinAcceptableOffer)
		eval.Reasoning = "Low urgency detected (fallback)"
	default:
		eval.PreferredAction = models.ActionFindAlternative
		eval.Reasoning = "Medium urgency, seeking alternative (fallback)"
	}
	return eval
}
