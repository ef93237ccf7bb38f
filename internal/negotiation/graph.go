package negotiation

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/consts"
	"github.com/dyike/RightOfWay/internal/llm"
	"github.com/dyike/RightOfWay/models"
)

func handOff(_ context.Context, s *session) (string, error) {
	return s.next, nil
}

// buildGraph wires the bargaining loop: the seller evaluates each offer, the
// buyer answers each counter, and either side can end it.
func (e *Engine) buildGraph(ctx context.Context) (compose.Runnable[*session, *session], error) {
	g := compose.NewGraph[*session, *session]()

	nodes := []struct {
		key string
		fn  func(context.Context, *session) (*session, error)
	}{
		{consts.NodeInitialOffer, e.initialOffer},
		{consts.NodeEvaluateOffer, e.evaluateOffer},
		{consts.NodeRespondCounter, e.respondCounter},
		{consts.NodeSettle, e.settle},
		{consts.NodeClose, e.close},
	}
	for _, n := range nodes {
		if err := g.AddLambdaNode(n.key, compose.InvokableLambda(n.fn), compose.WithNodeName(n.key)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", n.key, err)
		}
	}

	edges := [][2]string{
		{compose.START, consts.NodeInitialOffer},
		{consts.NodeInitialOffer, consts.NodeEvaluateOffer},
		{consts.NodeSettle, compose.END},
		{consts.NodeClose, compose.END},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}

	branches := map[string]map[string]bool{
		consts.NodeEvaluateOffer: {
			consts.NodeSettle:         true,
			consts.NodeRespondCounter: true,
			consts.NodeClose:          true,
		},
		consts.NodeRespondCounter: {
			consts.NodeSettle:        true,
			consts.NodeEvaluateOffer: true,
			consts.NodeClose:         true,
		},
	}
	for from, targets := range branches {
		if err := g.AddBranch(from, compose.NewGraphBranch(handOff, targets)); err != nil {
			return nil, fmt.Errorf("add branch from %s: %w", from, err)
		}
	}

	return g.Compile(ctx,
		compose.WithGraphName(consts.GraphNegotiation),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(2*e.params.MaxRounds+8),
	)
}

// propose never fails: errors and render problems come back as empty text.
func (e *Engine) propose(ctx context.Context, name string, vars map[string]any) string {
	prompt, err := llm.Render(ctx, name, vars)
	if err != nil {
		log.Printf("[Negotiation] %v", err)
		return ""
	}
	text, err := e.proposer.Propose(ctx, prompt, llm.WithMaxTokens(llm.ProtocolMaxTokens))
	if err != nil {
		log.Printf("[Negotiation] proposer failed, using fallback: %v", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func (e *Engine) initialOffer(ctx context.Context, s *session) (*session, error) {
	b, o := s.buyer, s.seller
	s.system("Agent %d making initial offer...", b.AgentID)

	low, high := OfferAnchor(s.market)
	deadline := "None"
	if minutes, ok := b.Mission.MinutesRemaining(e.now()); ok {
		deadline = fmt.Sprintf("%d min", int(math.Floor(minutes)))
	}
	text := e.propose(ctx, "negotiation/initial_offer", map[string]any{
		"AgentID":           b.AgentID,
		"MissionType":       string(b.Mission.Type),
		"Priority":          string(b.Mission.Priority),
		"Deadline":          deadline,
		"Balance":           b.Balance.StringFixed(2),
		"MaxWillingToPay":   b.Strategy.MaxWillingToPay.StringFixed(2),
		"OtherID":           o.AgentID,
		"LocationID":        s.locationID,
		"OtherPriority":     string(o.Mission.Priority),
		"OtherAlternatives": len(o.AlternativeRoutes),
		"MarketPrice":       s.market.StringFixed(2),
		"AnchorLow":         low.StringFixed(2),
		"AnchorHigh":        high.StringFixed(2),
		"Example":           low.Add(high).Div(two).Round(0).String(),
	})

	s.offer = ExtractOffer(text, s.market, s.rng)
	s.round = 1
	s.turn(b.AgentID, models.TurnInitialOffer, s.offer, "I offer %s to pass")
	s.say(b.AgentID, "Initial offer: %s", money(s.offer))
	return s, nil
}

func (e *Engine) evaluateOffer(ctx context.Context, s *session) (*session, error) {
	b, o := s.buyer, s.seller
	s.system("Negotiation round %d...", s.round)

	text := e.propose(ctx, "negotiation/offer_evaluation", map[string]any{
		"AgentID":       o.AgentID,
		"MissionType":   string(o.Mission.Type),
		"Priority":      string(o.Mission.Priority),
		"Alternatives":  len(o.AlternativeRoutes),
		"MinAcceptable": o.Strategy.MinAcceptableOffer.StringFixed(2),
		"MarketPrice":   s.market.StringFixed(2),
		"OtherID":       b.AgentID,
		"Offer":         s.offer.StringFixed(2),
		"Example":       s.market.Mul(decimal.NewFromFloat(1.1)).Round(0).String(),
	})

	resp := e.readResponse(text)
	switch resp.Kind {
	case ResponseAccept:
		s.turn(o.AgentID, models.TurnAccept, s.offer, "I accept %s")
		s.say(o.AgentID, "Accepted at %s", money(s.offer))
		s.finalPrice = models.Amount(s.offer)
		s.next = consts.NodeSettle
	case ResponseCounter:
		s.counter = e.counterFrom(resp, s)
		s.turn(o.AgentID, models.TurnCounterOffer, s.counter, "Counter-offer: %s")
		s.say(o.AgentID, "Counter-offer: %s", money(s.counter))
		s.next = consts.NodeRespondCounter
	default:
		s.turn(o.AgentID, models.TurnReject, s.offer, "I reject %s")
		s.say(o.AgentID, "Rejected offer")
		s.outcome = models.OutcomeRejected
		s.next = consts.NodeClose
	}
	return s, nil
}

func (e *Engine) respondCounter(ctx context.Context, s *session) (*session, error) {
	b, o := s.buyer, s.seller

	text := e.propose(ctx, "negotiation/counter_response", map[string]any{
		"AgentID":     b.AgentID,
		"LastOffer":   s.offer.StringFixed(2),
		"OtherID":     o.AgentID,
		"Counter":     s.counter.StringFixed(2),
		"Budget":      b.Strategy.MaxWillingToPay.StringFixed(2),
		"MarketPrice": s.market.StringFixed(2),
		"Round":       s.round,
		"MaxRounds":   e.params.MaxRounds,
	})

	resp := e.readResponse(text)
	switch resp.Kind {
	case ResponseAccept:
		s.turn(b.AgentID, models.TurnAccept, s.counter, "I accept %s")
		s.say(b.AgentID, "Accepted at %s", money(s.counter))
		s.finalPrice = models.Amount(s.counter)
		s.next = consts.NodeSettle
	case ResponseCounter:
		s.offer = e.counterFrom(resp, s)
		s.turn(b.AgentID, models.TurnCounterOffer, s.offer, "Counter-offer: %s")
		s.say(b.AgentID, "Counter-offer: %s", money(s.offer))
		s.round++
		if s.round > e.params.MaxRounds {
			s.outcome = models.OutcomeExhausted
			s.round = e.params.MaxRounds
			s.next = consts.NodeClose
		} else {
			s.next = consts.NodeEvaluateOffer
		}
	default:
		s.turn(b.AgentID, models.TurnReject, s.counter, "I reject %s")
		s.say(b.AgentID, "Rejected")
		s.outcome = models.OutcomeRejected
		s.next = consts.NodeClose
	}
	return s, nil
}

// readResponse treats an empty answer as a counter with no amount, so the
// loop keeps moving and ends by the round limit.
func (e *Engine) readResponse(text string) Response {
	if text == "" {
		return Response{Kind: ResponseCounter}
	}
	return ParseResponse(text)
}

func (e *Engine) counterFrom(resp Response, s *session) decimal.Decimal {
	amount, ok := CounterAmount(resp, e.params, s.market, s.rng)
	if !ok {
		log.Printf("[Negotiation] unusable counter, substituting %s", amount.StringFixed(2))
	}
	return amount
}

func (e *Engine) settle(ctx context.Context, s *session) (*session, error) {
	s.outcome = models.OutcomeSettled
	if e.settlement == nil {
		return s, nil
	}
	if err := e.settlement.Settle(ctx, s.buyer, s.seller, *s.finalPrice, s.locationID, &s.transcript); err != nil {
		s.outcome = models.OutcomeSettlementFailed
		s.settleErr = err
	}
	return s, nil
}

func (e *Engine) close(_ context.Context, s *session) (*session, error) {
	if s.outcome == "" {
		s.outcome = models.OutcomeExhausted
	}
	if s.outcome == models.OutcomeExhausted {
		s.system("No agreement reached after %d rounds", s.round)
	} else {
		s.system("Negotiation ended without agreement")
	}
	return s, nil
}
