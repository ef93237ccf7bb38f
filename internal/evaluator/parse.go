package evaluator

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/models"
)

const decisionSchema = `{
  "type": "object",
  "required": ["decision"],
  "properties": {
    "decision": {"enum": ["pay_to_pass", "pay_and_pass", "wait_for_payment", "find_alternative"]},
    "amount": {"type": ["number", "null"], "minimum": 0},
    "reasoning": {"type": "string"}
  }
}`

var (
	decisionValidator = jsonschema.MustCompileString("decision.json", decisionSchema)

	jsonBlock     = regexp.MustCompile(`(?s)\{.*\}`)
	amountPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*jpyc`)
)

type decision struct {
	Decision  string   `json:"decision"`
	Amount    *float64 `json:"amount"`
	Reasoning string   `json:"reasoning"`
}

// ParseDecision turns a free-form role decision into an evaluation. A JSON
// object is preferred; anything else is read by keyword.
func ParseDecision(text string, c *models.AgentContext, now time.Time) models.SituationEvaluation {
	eval := models.SituationEvaluation{
		AgentID:      c.AgentID,
		UrgencyScore: UrgencyScore(c, now),
	}

	if d, ok := decodeDecision(text); ok {
		var amount decimal.Decimal
		if d.Amount != nil {
			amount = decimal.NewFromFloat(*d.Amount).Round(2)
		}
		eval.Reasoning = d.Reasoning
		if eval.Reasoning == "" {
			eval.Reasoning = text
		}
		applyAction(&eval, actionFor(d.Decision), amount, c)
		return eval
	}

	lower := strings.ToLower(text)
	var action models.Action
	switch {
	case strings.Contains(lower, "pay") && strings.Contains(lower, "pass"):
		action = models.ActionPayAndPass
	case strings.Contains(lower, "wait") || strings.Contains(lower, "accept"):
		action = models.ActionWaitForPayment
	default:
		action = models.ActionFindAlternative
	}
	var amount decimal.Decimal
	if m := amountPattern.FindStringSubmatch(text); m != nil {
		amount, _ = decimal.NewFromString(m[1])
	}
	eval.Reasoning = text
	applyAction(&eval, action, amount.Round(2), c)
	return eval
}

func decodeDecision(text string) (decision, bool) {
	block := jsonBlock.FindString(text)
	if block == "" {
		return decision{}, false
	}
	var raw any
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		log.Printf("[Evaluator] decision is not valid JSON, falling back to keywords: %v", err)
		return decision{}, false
	}
	if err := decisionValidator.Validate(raw); err != nil {
		log.Printf("[Evaluator] decision rejected by schema: %v", err)
		return decision{}, false
	}
	var d decision
	if err := json.Unmarshal([]byte(block), &d); err != nil {
		return decision{}, false
	}
	return d, true
}

func actionFor(s string) models.Action {
	switch s {
	case "pay_to_pass", "pay_and_pass":
		return models.ActionPayAndPass
	case "wait_for_payment":
		return models.ActionWaitForPayment
	default:
		return models.ActionFindAlternative
	}
}

// applyAction fills the price side of the evaluation. A missing or zero
// amount defaults to the agent's own limit.
func applyAction(eval *models.SituationEvaluation, action models.Action, amount decimal.Decimal, c *models.AgentContext) {
	eval.PreferredAction = action
	switch action {
	case models.ActionPayAndPass:
		if !amount.IsPositive() {
			amount = c.Strategy.MaxWillingToPay
		}
		eval.WillingToPay = models.Amount(amount)
	case models.ActionWaitForPayment:
		if !amount.IsPositive() {
			amount = c.Strategy.MinAcceptableOffer
		}
		eval.WillingToAccept = models.Amount(amount)
	}
}
