package evaluator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dyike/RightOfWay/internal/llm"
	"github.com/dyike/RightOfWay/models"
)

// Evaluator asks an agent's proposer which role it wants in a collision.
type Evaluator struct {
	proposer llm.Proposer
	now      func() time.Time
}

type Option func(*Evaluator)

// WithClock overrides the time source used for deadline math.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func New(p llm.Proposer, opts ...Option) *Evaluator {
	e := &Evaluator{proposer: p, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate makes one proposer call. Errors, timeouts and empty answers all
// produce the rule-based Fallback.
func (e *Evaluator) Evaluate(ctx context.Context, my *models.AgentContext, other models.OtherSummary, locationID string) models.SituationEvaluation {
	now := e.now()
	if e.proposer == nil {
		return Fallback(my, now)
	}

	prompt, err := llm.Render(ctx, "evaluator/role_determination", promptVars(my, other, locationID, now))
	if err != nil {
		log.Printf("[Evaluator] agent %d: %v", my.AgentID, err)
		return Fallback(my, now)
	}
	system, _ := llm.Render(ctx, "evaluator/system", map[string]any{
		"AgentID": my.AgentID,
		"Wallet":  my.Wallet,
	})

	text, err := e.proposer.Propose(ctx, prompt,
		llm.WithMaxTokens(llm.EvaluationMaxTokens),
		llm.WithSystem(system),
	)
	if err != nil {
		log.Printf("[Evaluator] agent %d: proposer failed, using fallback: %v", my.AgentID, err)
		return Fallback(my, now)
	}
	if strings.TrimSpace(text) == "" {
		log.Printf("[Evaluator] agent %d: empty response, using fallback", my.AgentID)
		return Fallback(my, now)
	}
	return ParseDecision(text, my, now)
}

func promptVars(my *models.AgentContext, other models.OtherSummary, locationID string, now time.Time) map[string]any {
	deadline := "No deadline"
	if minutes, ok := my.Mission.MinutesRemaining(now); ok {
		deadline = fmt.Sprintf("Yes, %d min remaining", int(minutes))
	}
	otherDeadline := "No"
	if other.HasDeadline {
		otherDeadline = "Yes"
	}
	return map[string]any{
		"LocationID":        locationID,
		"MissionType":       string(my.Mission.Type),
		"Deadline":          deadline,
		"Priority":          string(my.Mission.Priority),
		"Balance":           my.Balance.StringFixed(2),
		"MaxWillingToPay":   my.Strategy.MaxWillingToPay.StringFixed(2),
		"MinAcceptable":     my.Strategy.MinAcceptableOffer.StringFixed(2),
		"Alternatives":      len(my.AlternativeRoutes),
		"Patience":          my.Strategy.PatienceLevel,
		"Temperament":       temperament(my.Strategy.PatienceLevel),
		"HistoryCount":      len(my.NegotiationHistory),
		"SuccessRate":       my.SuccessRate(),
		"OtherPriority":     string(other.Priority),
		"OtherHasDeadline":  otherDeadline,
		"OtherAlternatives": other.AlternativeRoutes,
	}
}

func temperament(patience int) string {
	switch {
	case patience <= 3:
		return "very impatient"
	case patience >= 8:
		return "very patient"
	default:
		return "moderate"
	}
}
