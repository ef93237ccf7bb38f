package negotiation

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func TestExtractOfferStaysInBand(t *testing.T) {
	market := decimal.NewFromInt(200)
	lo, hi := decimal.NewFromInt(100), decimal.NewFromInt(300)
	rng := rand.New(rand.NewSource(1))

	inputs := []string{"", "0", "abc", "I offer 1", "99", "100", "190", "190.456 JPYC", "300", "301", "5000", "-20"}
	for _, in := range inputs {
		for i := 0; i < 20; i++ {
			got := ExtractOffer(in, market, rng)
			if got.LessThan(lo) || got.GreaterThan(hi) || got.IsZero() {
				t.Fatalf("ExtractOffer(%q) = %s, outside [%s, %s]", in, got, lo, hi)
			}
		}
	}
}

func TestExtractOfferReplacements(t *testing.T) {
	market := decimal.NewFromInt(200)
	rng := rand.New(rand.NewSource(2))

	tests := []struct {
		in     string
		lo, hi float64
	}{
		{"", 150, 160},
		{"no idea", 150, 160},
		{"9999", 200, 240},
		{"10", 140, 160},
		{"I can pay 175 JPYC", 175, 175},
		{"190.456", 190.46, 190.46},
	}
	for _, tt := range tests {
		got := ExtractOffer(tt.in, market, rng)
		if got.LessThan(decimal.NewFromFloat(tt.lo)) || got.GreaterThan(decimal.NewFromFloat(tt.hi)) {
			t.Errorf("ExtractOffer(%q) = %s, want within [%v, %v]", tt.in, got, tt.lo, tt.hi)
		}
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		in     string
		kind   ResponseKind
		amount string
		valid  bool
	}{
		{"ACCEPT", ResponseAccept, "", true},
		{"i accept this", ResponseAccept, "", true},
		{"COUNTER: 240", ResponseCounter, "240", true},
		{"counter=255.5", ResponseCounter, "255.5", true},
		{"COUNTER but no figure", ResponseCounter, "", false},
		{"I will ACCEPT, no COUNTER", ResponseAccept, "", true},
		{"REJECT", ResponseReject, "", true},
		{"maybe later", ResponseReject, "", true},
	}
	for _, tt := range tests {
		r := ParseResponse(tt.in)
		if r.Kind != tt.kind || r.Valid != tt.valid {
			t.Errorf("ParseResponse(%q) = %+v, want kind %s valid %v", tt.in, r, tt.kind, tt.valid)
			continue
		}
		if tt.amount != "" && (r.Amount == nil || !r.Amount.Equal(decimal.RequireFromString(tt.amount))) {
			t.Errorf("ParseResponse(%q) amount = %v, want %s", tt.in, r.Amount, tt.amount)
		}
	}
}

func TestCounterAmount(t *testing.T) {
	p := DefaultParams()
	market := decimal.NewFromInt(200)
	rng := rand.New(rand.NewSource(3))
	amt := func(s string) *decimal.Decimal { d := decimal.RequireFromString(s); return &d }

	tests := []struct {
		name string
		resp Response
		ok   bool
	}{
		{"in range", Response{Kind: ResponseCounter, Amount: amt("250"), Valid: true}, true},
		{"at minimum", Response{Kind: ResponseCounter, Amount: amt("100"), Valid: true}, true},
		{"below minimum", Response{Kind: ResponseCounter, Amount: amt("50"), Valid: true}, false},
		{"above maximum", Response{Kind: ResponseCounter, Amount: amt("1500"), Valid: true}, false},
		{"no amount", Response{Kind: ResponseCounter}, false},
	}
	for _, tt := range tests {
		got, ok := CounterAmount(tt.resp, p, market, rng)
		if ok != tt.ok {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.ok)
		}
		if ok && !got.Equal(*tt.resp.Amount) {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.resp.Amount)
		}
		if !ok && (got.LessThan(decimal.NewFromInt(210)) || got.GreaterThan(decimal.NewFromInt(230))) {
			t.Errorf("%s: fallback %s outside [210, 230]", tt.name, got)
		}
	}
}

func TestMarketPriceBand(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		m := MarketPrice(p, false, rng)
		if m.LessThan(p.MarketPriceMin) || m.GreaterThan(p.MarketPriceMax) {
			t.Fatalf("market price %s outside band", m)
		}
	}
}
