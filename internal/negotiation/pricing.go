package negotiation

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/config"
)

var two = decimal.NewFromInt(2)

// Params bound the protocol and its price anchors.
type Params struct {
	MaxRounds            int
	MarketPriceMin       decimal.Decimal
	MarketPriceMax       decimal.Decimal
	CongestionMultiplier decimal.Decimal
	CounterMin           decimal.Decimal
	CounterMax           decimal.Decimal
}

func DefaultParams() Params {
	return ParamsFromConfig(config.DefaultConfigWithRoot(""))
}

func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		MaxRounds:            cfg.MaxRounds,
		MarketPriceMin:       decimal.NewFromFloat(cfg.MarketPriceMin),
		MarketPriceMax:       decimal.NewFromFloat(cfg.MarketPriceMax),
		CongestionMultiplier: decimal.NewFromFloat(cfg.CongestionMultiplier),
		CounterMin:           decimal.NewFromFloat(cfg.CounterMin),
		CounterMax:           decimal.NewFromFloat(cfg.CounterMax),
	}
}

// MarketPrice draws the shared anchor once per negotiation: uniform in the
// configured band, scaled up when the location is congested.
func MarketPrice(p Params, congested bool, rng *rand.Rand) decimal.Decimal {
	spread := p.MarketPriceMax.Sub(p.MarketPriceMin)
	price := p.MarketPriceMin.Add(spread.Mul(decimal.NewFromFloat(rng.Float64())))
	if congested && p.CongestionMultiplier.GreaterThan(decimal.Zero) {
		price = price.Mul(p.CongestionMultiplier)
	}
	return price.Round(2)
}

// between returns market scaled by a factor drawn from [lo, hi].
func between(market decimal.Decimal, lo, hi float64, rng *rand.Rand) decimal.Decimal {
	f := lo + (hi-lo)*rng.Float64()
	return market.Mul(decimal.NewFromFloat(f)).Round(2)
}

// OfferAnchor is the 70–85% window the opening prompt suggests.
func OfferAnchor(market decimal.Decimal) (low, high decimal.Decimal) {
	return market.Mul(decimal.NewFromFloat(0.70)).Round(2), market.Mul(decimal.NewFromFloat(0.85)).Round(2)
}
