// Package matcher pairs two situation evaluations into a buyer and a seller.
package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/models"
)

const (
	// Competitive bidding: the losing bidder gives way and is not paid. The
	// agreed price records the winning bid only.
	ReasonUnpaidSeller = "competitive bidding: seller did not ask for payment"
	ReasonUrgencyTie   = "urgency tie"
	ReasonNoMatch      = "no compatible offers"
)

var two = decimal.NewFromInt(2)

// Match is pure: the same inputs always give the same result. The first
// applicable case wins.
func Match(evalA, evalB models.SituationEvaluation, ctxA, ctxB *models.AgentContext) models.NegotiationMatch {
	payA, payB := evalA.WillingToPay, evalB.WillingToPay
	askA, askB := evalA.WillingToAccept, evalB.WillingToAccept

	if payA != nil && askB != nil && payA.GreaterThanOrEqual(*askB) {
		return direct(ctxA, ctxB, *payA, *askB)
	}
	if payB != nil && askA != nil && payB.GreaterThanOrEqual(*askA) {
		return direct(ctxB, ctxA, *payB, *askA)
	}

	if payA != nil && payB != nil {
		// Equal bids go to B.
		if payA.GreaterThan(*payB) {
			return compromise(ctxA, ctxB, *payA, ReasonUnpaidSeller)
		}
		return compromise(ctxB, ctxA, *payB, ReasonUnpaidSeller)
	}

	if askA != nil && askB != nil {
		switch {
		case evalA.UrgencyScore > evalB.UrgencyScore:
			return compromise(ctxA, ctxB, *askB, "")
		case evalB.UrgencyScore > evalA.UrgencyScore:
			return compromise(ctxB, ctxA, *askA, "")
		default:
			return models.NegotiationMatch{
				Method:     models.MethodFailed,
				Unresolved: true,
				Reason:     ReasonUrgencyTie,
			}
		}
	}

	return models.NegotiationMatch{Method: models.MethodFailed, Reason: ReasonNoMatch}
}

func direct(buyer, seller *models.AgentContext, pay, ask decimal.Decimal) models.NegotiationMatch {
	price := pay.Add(ask).Div(two).Floor()
	return models.NegotiationMatch{
		Success:     true,
		Buyer:       buyer,
		Seller:      seller,
		AgreedPrice: models.Amount(price),
		Method:      models.MethodDirectMatch,
	}
}

func compromise(buyer, seller *models.AgentContext, price decimal.Decimal, reason string) models.NegotiationMatch {
	return models.NegotiationMatch{
		Success:     true,
		Buyer:       buyer,
		Seller:      seller,
		AgreedPrice: models.Amount(price),
		Method:      models.MethodCompromise,
		Reason:      reason,
	}
}
