// Package negotiation runs right-of-way bargaining between two agents,
// either as a multi-round offer/counter protocol or as an
// evaluate-then-match exchange.
package negotiation

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/internal/evaluator"
	"github.com/dyike/RightOfWay/internal/llm"
	"github.com/dyike/RightOfWay/models"
)

// Settlement pays the seller and releases the collision. Release frees the
// collision without a payment.
type Settlement interface {
	Settle(ctx context.Context, buyer, seller *models.AgentContext, price decimal.Decimal, locationID string, transcript *[]string) error
	Release(ctx context.Context, seller *models.AgentContext, transcript *[]string) error
}

// CongestionChecker reports whether a location is currently blocked.
type CongestionChecker interface {
	IsCongested(locationID string) bool
}

// Recorder archives finished negotiations.
type Recorder interface {
	SaveNegotiation(ctx context.Context, rec models.NegotiationRecord) error
}

// Engine runs one negotiation at a time.
type Engine struct {
	mu sync.Mutex

	proposer   llm.Proposer
	evaluator  *evaluator.Evaluator
	settlement Settlement
	congestion CongestionChecker
	recorder   Recorder
	handler    callbacks.Handler
	network    models.Network
	params     Params
	now        func() time.Time

	marketPrice *decimal.Decimal
	seed        *int64

	graph compose.Runnable[*session, *session]
}

type Option func(*Engine)

func WithSettlement(s Settlement) Option { return func(e *Engine) { e.settlement = s } }

func WithCongestion(c CongestionChecker) Option { return func(e *Engine) { e.congestion = c } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithCallbacks(h callbacks.Handler) Option { return func(e *Engine) { e.handler = h } }

func WithNetwork(n models.Network) Option { return func(e *Engine) { e.network = n } }

func WithParams(p Params) Option { return func(e *Engine) { e.params = p } }

func WithEvaluator(ev *evaluator.Evaluator) Option { return func(e *Engine) { e.evaluator = ev } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithMarketPrice pins the market price instead of drawing it.
func WithMarketPrice(d decimal.Decimal) Option {
	return func(e *Engine) { e.marketPrice = &d }
}

// WithSeed makes the jitter sequence reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = &seed }
}

func NewEngine(ctx context.Context, proposer llm.Proposer, opts ...Option) (*Engine, error) {
	if proposer == nil {
		proposer = llm.Offline()
	}
	e := &Engine{
		proposer: proposer,
		network:  models.NetworkFuji,
		params:   DefaultParams(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.params.MaxRounds < 1 {
		return nil, fmt.Errorf("max rounds must be at least 1")
	}
	if e.evaluator == nil {
		e.evaluator = evaluator.New(proposer, evaluator.WithClock(e.now))
	}

	g, err := e.buildGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile negotiation graph: %w", err)
	}
	e.graph = g
	return e, nil
}

func (e *Engine) Params() Params { return e.params }

func (e *Engine) newRand() *rand.Rand {
	seed := time.Now().UnixNano()
	if e.seed != nil {
		seed = *e.seed
	}
	return rand.New(rand.NewSource(seed))
}

func (e *Engine) market(locationID string, rng *rand.Rand) decimal.Decimal {
	if e.marketPrice != nil {
		return e.marketPrice.Round(2)
	}
	congested := e.congestion != nil && e.congestion.IsCongested(locationID)
	return MarketPrice(e.params, congested, rng)
}

// Negotiate runs the offer/counter protocol with a as buyer and b as seller.
// A result is always returned. The error is non-nil only when settlement
// failed in production mode.
func (e *Engine) Negotiate(ctx context.Context, a, b *models.AgentContext, locationID string) (*models.NegotiationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rng := e.newRand()
	s := &session{
		id:         uuid.NewString(),
		buyer:      a,
		seller:     b,
		locationID: locationID,
		rng:        rng,
	}
	s.market = e.market(locationID, rng)
	s.system("Market price at %s: %s", locationID, money(s.market))
	log.Printf("[Negotiation] %s: agent %d vs agent %d at %s, market %s", s.id, a.AgentID, b.AgentID, locationID, s.market.StringFixed(2))

	var invokeOpts []compose.Option
	if e.handler != nil {
		invokeOpts = append(invokeOpts, compose.WithCallbacks(e.handler))
	}
	out, err := e.graph.Invoke(ctx, s, invokeOpts...)
	if err != nil {
		log.Printf("[Negotiation] %s: graph failed: %v", s.id, err)
		s.transcript = append(s.transcript, fmt.Sprintf("[Error] %v", err))
		if s.outcome == "" || s.outcome == models.OutcomeSettled {
			s.outcome = models.OutcomeExhausted
		}
		out = s
	}

	res := out.result(e.networkFor(a))
	log.Printf("[Negotiation] %s: outcome=%s rounds=%d", res.ID, res.Outcome, res.Rounds)
	e.archive(ctx, res.Record())
	return res, out.settleErr
}

// networkFor prefers the buyer's own network over the engine default.
func (e *Engine) networkFor(a *models.AgentContext) models.Network {
	if a != nil && a.Network != "" {
		return a.Network
	}
	return e.network
}

func (e *Engine) archive(ctx context.Context, rec models.NegotiationRecord) {
	if e.recorder == nil {
		return
	}
	rec.CreatedAt = e.now()
	if err := e.recorder.SaveNegotiation(ctx, rec); err != nil {
		log.Printf("[Negotiation] archive %s: %v", rec.ID, err)
	}
}
