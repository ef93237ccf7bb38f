package negotiation

import (
	"log"
	"math/rand"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	numberPattern  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	counterPattern = regexp.MustCompile(`(?i)COUNTER\s*[:=]?\s*(\d+(?:\.\d+)?)`)

	half       = decimal.NewFromFloat(0.5)
	oneAndHalf = decimal.NewFromFloat(1.5)
)

// ExtractOffer reads the first number in text and keeps it inside
// [0.5·market, 1.5·market]. Missing, zero and out-of-band values are
// replaced with a jittered figure near the market price.
func ExtractOffer(text string, market decimal.Decimal, rng *rand.Rand) decimal.Decimal {
	lo, hi := market.Mul(half), market.Mul(oneAndHalf)

	var raw decimal.Decimal
	if m := numberPattern.FindString(text); m != "" {
		raw, _ = decimal.NewFromString(m)
	}

	var offer decimal.Decimal
	switch {
	case raw.IsZero():
		offer = between(market, 0.75, 0.80, rng)
		log.Printf("[Negotiation] no usable offer in %q, using %s", text, offer.StringFixed(2))
	case raw.GreaterThan(hi):
		offer = between(market, 1.0, 1.2, rng)
		log.Printf("[Negotiation] offer %s above band, clamped to %s", raw, offer.StringFixed(2))
	case raw.LessThan(lo):
		offer = between(market, 0.7, 0.8, rng)
		log.Printf("[Negotiation] offer %s below band, clamped to %s", raw, offer.StringFixed(2))
	default:
		offer = raw.Round(2)
	}

	if offer.GreaterThan(hi) {
		offer = hi.Truncate(2)
	}
	if offer.LessThan(lo) {
		offer = lo.RoundCeil(2)
	}
	return offer
}

type ResponseKind string

const (
	ResponseAccept  ResponseKind = "ACCEPT"
	ResponseCounter ResponseKind = "COUNTER"
	ResponseReject  ResponseKind = "REJECT"
)

type Response struct {
	Kind   ResponseKind
	Amount *decimal.Decimal
	// Valid is false for a COUNTER without a readable amount.
	Valid bool
}

// ParseResponse matches keywords anywhere in text, case-insensitively.
// ACCEPT wins over COUNTER, COUNTER over REJECT, and anything else is a
// REJECT.
func ParseResponse(text string) Response {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, string(ResponseAccept)):
		return Response{Kind: ResponseAccept, Valid: true}
	case strings.Contains(upper, string(ResponseCounter)):
		r := Response{Kind: ResponseCounter}
		if m := counterPattern.FindStringSubmatch(text); m != nil {
			if d, err := decimal.NewFromString(m[1]); err == nil {
				r.Amount = &d
				r.Valid = true
			}
		}
		return r
	default:
		return Response{Kind: ResponseReject, Valid: true}
	}
}

// CounterAmount returns the counter to use: the parsed figure when it lies
// in [min, max], otherwise market×(1.05…1.15).
func CounterAmount(r Response, p Params, market decimal.Decimal, rng *rand.Rand) (decimal.Decimal, bool) {
	if r.Valid && r.Amount != nil && !r.Amount.LessThan(p.CounterMin) && !r.Amount.GreaterThan(p.CounterMax) {
		return r.Amount.Round(2), true
	}
	return between(market, 1.05, 1.15, rng), false
}
