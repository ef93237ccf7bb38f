package negotiation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/internal/llm"
	"github.com/dyike/RightOfWay/internal/settlement"
	"github.com/dyike/RightOfWay/models"
)

// scripted answers each Propose call with the next reply; once the script
// runs out it keeps returning the last one.
type scripted struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (s *scripted) Propose(_ context.Context, _ string, _ ...llm.CallOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.replies) == 0 {
		return "", nil
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r, nil
}

type stubSettlement struct {
	err      error
	price    decimal.Decimal
	calls    int
	released []int
}

func (s *stubSettlement) Release(_ context.Context, seller *models.AgentContext, transcript *[]string) error {
	s.released = append(s.released, seller.AgentID)
	*transcript = append(*transcript, "[System] released")
	return nil
}

func (s *stubSettlement) Settle(_ context.Context, _, _ *models.AgentContext, price decimal.Decimal, _ string, transcript *[]string) error {
	s.calls++
	s.price = price
	*transcript = append(*transcript, "[System] settled")
	return s.err
}

type memRecorder struct {
	records []models.NegotiationRecord
}

func (m *memRecorder) SaveNegotiation(_ context.Context, rec models.NegotiationRecord) error {
	m.records = append(m.records, rec)
	return nil
}

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func demoPair() (*models.AgentContext, *models.AgentContext) {
	deadline := testNow.Add(30 * time.Minute)
	a := &models.AgentContext{
		AgentID: 1,
		Wallet:  "0x1234567890123456789012345678901234567890",
		Mission: models.Mission{Type: models.MissionDelivery, Deadline: &deadline, Priority: models.PriorityHigh, DestinationImportance: 9},
		Balance: decimal.NewFromInt(5000),
		Strategy: models.NegotiationStrategy{
			MaxWillingToPay:    decimal.NewFromInt(500),
			MinAcceptableOffer: decimal.NewFromInt(300),
			PatienceLevel:      2,
			PreferredRole:      models.RoleBuyer,
		},
	}
	b := &models.AgentContext{
		AgentID:           2,
		Wallet:            "0x0987654321098765432109876543210987654321",
		Mission:           models.Mission{Type: models.MissionPatrol, Priority: models.PriorityLow, DestinationImportance: 3},
		Balance:           decimal.NewFromInt(3000),
		AlternativeRoutes: []string{"route-north", "route-south"},
		Strategy: models.NegotiationStrategy{
			MaxWillingToPay:    decimal.NewFromInt(150),
			MinAcceptableOffer: decimal.NewFromInt(400),
			PatienceLevel:      8,
			PreferredRole:      models.RoleSeller,
		},
	}
	return a, b
}

func newTestEngine(t *testing.T, p llm.Proposer, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithMarketPrice(decimal.NewFromInt(200)),
		WithSeed(7),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	e, err := NewEngine(context.Background(), p, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNegotiateAcceptsFirstOffer(t *testing.T) {
	settle := &stubSettlement{}
	rec := &memRecorder{}
	e := newTestEngine(t, &scripted{replies: []string{"190", "ACCEPT"}}, WithSettlement(settle), WithRecorder(rec))
	a, b := demoPair()

	res, err := e.Negotiate(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if !res.Success || res.Outcome != models.OutcomeSettled {
		t.Fatalf("expected settled, got %+v", res)
	}
	if res.FinalPrice == nil || !res.FinalPrice.Equal(decimal.NewFromInt(190)) {
		t.Fatalf("expected final price 190, got %v", res.FinalPrice)
	}
	if len(res.Conversation) != 2 || res.Rounds != 1 {
		t.Fatalf("expected 2 turns in 1 round, got %d turns, %d rounds", len(res.Conversation), res.Rounds)
	}
	if res.Conversation[0].Action != models.TurnInitialOffer || res.Conversation[1].Action != models.TurnAccept {
		t.Fatalf("unexpected turn actions: %+v", res.Conversation)
	}
	if settle.calls != 1 || !settle.price.Equal(decimal.NewFromInt(190)) {
		t.Fatalf("settlement not invoked with agreed price: %+v", settle)
	}
	if len(rec.records) != 1 || rec.records[0].Kind != models.KindAIToAI {
		t.Fatalf("expected one archived record, got %+v", rec.records)
	}
	if !strings.Contains(strings.Join(res.Transcript, "\n"), "Market price") {
		t.Fatalf("transcript missing market price line: %v", res.Transcript)
	}
}

func TestNegotiateRejectEndsInOneRound(t *testing.T) {
	settle := &stubSettlement{}
	e := newTestEngine(t, &scripted{replies: []string{"180", "REJECT"}}, WithSettlement(settle))
	a, b := demoPair()

	res, err := e.Negotiate(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if res.Success || res.Outcome != models.OutcomeRejected || res.Rounds != 1 {
		t.Fatalf("expected rejection in round 1, got %+v", res)
	}
	if res.FinalPrice != nil {
		t.Fatalf("rejected negotiation must not carry a price")
	}
	if settle.calls != 0 {
		t.Fatalf("settlement must not run on rejection")
	}
}

func TestNegotiateEmptyRepliesExhaustRounds(t *testing.T) {
	p := &scripted{}
	e := newTestEngine(t, p)
	a, b := demoPair()

	res, err := e.Negotiate(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	first := res.Conversation[0].OfferAmount
	if first == nil || first.LessThan(decimal.NewFromInt(150)) || first.GreaterThan(decimal.NewFromInt(160)) {
		t.Fatalf("fallback offer outside [150,160]: %v", first)
	}
	if res.Success || res.Outcome != models.OutcomeExhausted {
		t.Fatalf("expected exhausted, got %s", res.Outcome)
	}
	if res.Rounds != e.Params().MaxRounds {
		t.Fatalf("expected %d rounds, got %d", e.Params().MaxRounds, res.Rounds)
	}
	// one opening offer plus a seller and buyer counter per round
	if want := 1 + 2*e.Params().MaxRounds; len(res.Conversation) != want {
		t.Fatalf("expected %d turns, got %d", want, len(res.Conversation))
	}
	for _, turn := range res.Conversation[1:] {
		if turn.Action != models.TurnCounterOffer {
			t.Fatalf("expected counter offers, got %s", turn.Action)
		}
		if turn.OfferAmount.LessThan(decimal.NewFromInt(210)) || turn.OfferAmount.GreaterThan(decimal.NewFromInt(230)) {
			t.Fatalf("computed counter outside market×(1.05…1.15): %s", turn.OfferAmount)
		}
	}
}

func TestNegotiateCounterThenAccept(t *testing.T) {
	e := newTestEngine(t, &scripted{replies: []string{"160", "COUNTER: 240", "ACCEPT"}})
	a, b := demoPair()

	res, err := e.Negotiate(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if !res.Success || !res.FinalPrice.Equal(decimal.NewFromInt(240)) {
		t.Fatalf("expected settlement at the counter, got %+v", res)
	}
	if len(res.Conversation) != 3 || res.Conversation[2].Speaker != a.AgentID {
		t.Fatalf("expected buyer to accept on the third turn: %+v", res.Conversation)
	}
}

func TestNegotiateProposerErrorsUseFallbacks(t *testing.T) {
	failing := llm.ProposerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	})
	e := newTestEngine(t, failing)
	a, b := demoPair()

	res, err := e.Negotiate(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if res.Outcome != models.OutcomeExhausted || len(res.Conversation) == 0 {
		t.Fatalf("expected fallbacks to drive the loop to exhaustion, got %+v", res)
	}
}

func TestNegotiateSettlementFailure(t *testing.T) {
	boom := errors.New("relayer down")
	e := newTestEngine(t, &scripted{replies: []string{"190", "ACCEPT"}}, WithSettlement(&stubSettlement{err: boom}))
	a, b := demoPair()

	res, err := e.Negotiate(context.Background(), a, b, models.LocationIntersection)
	if !errors.Is(err, boom) {
		t.Fatalf("expected settlement error, got %v", err)
	}
	if res == nil || res.Success || res.Outcome != models.OutcomeSettlementFailed {
		t.Fatalf("expected settlement_failed result, got %+v", res)
	}
}

type fixedCongestion bool

func (f fixedCongestion) IsCongested(string) bool { return bool(f) }

func TestMarketPriceFollowsCongestion(t *testing.T) {
	e, err := NewEngine(context.Background(), &scripted{replies: []string{"ACCEPT"}}, WithSeed(3), WithCongestion(fixedCongestion(true)))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	a, b := demoPair()
	res, _ := e.Negotiate(context.Background(), a, b, models.LocationIntersection)

	p := e.Params()
	lo := p.MarketPriceMin.Mul(p.CongestionMultiplier)
	hi := p.MarketPriceMax.Mul(p.CongestionMultiplier)
	if res.MarketPrice.LessThan(lo.Sub(decimal.NewFromFloat(0.01))) || res.MarketPrice.GreaterThan(hi.Add(decimal.NewFromFloat(0.01))) {
		t.Fatalf("congested market price %s outside [%s, %s]", res.MarketPrice, lo, hi)
	}
}

func TestNewEngineRejectsZeroRounds(t *testing.T) {
	p := DefaultParams()
	p.MaxRounds = 0
	if _, err := NewEngine(context.Background(), nil, WithParams(p)); err == nil {
		t.Fatalf("expected error for zero max rounds")
	}
}

func TestBuildGraphWiresEveryNode(t *testing.T) {
	e := newTestEngine(t, nil)
	if e.graph == nil {
		t.Fatalf("graph not compiled")
	}
	g, err := e.buildGraph(context.Background())
	if err != nil || g == nil {
		t.Fatalf("buildGraph: %v", err)
	}
}

func TestDynamicRolesFallbackMatch(t *testing.T) {
	failing := llm.ProposerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("offline")
	})
	settle := &stubSettlement{}
	rec := &memRecorder{}
	e := newTestEngine(t, failing, WithSettlement(settle), WithRecorder(rec))
	a, b := demoPair()

	res, err := e.NegotiateWithDynamicRoles(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("NegotiateWithDynamicRoles: %v", err)
	}
	if !res.Success || res.Method != models.MethodDirectMatch {
		t.Fatalf("expected direct match, got %+v", res)
	}
	if res.Buyer.AgentID != 1 || res.Seller.AgentID != 2 {
		t.Fatalf("expected agent 1 to buy from agent 2")
	}
	if !res.AgreedPrice.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("expected midpoint 450, got %s", res.AgreedPrice)
	}
	for _, ev := range res.Evaluations {
		if !ev.Fallback {
			t.Fatalf("expected fallback evaluations, got %+v", ev)
		}
	}
	if settle.calls != 1 || len(rec.records) != 1 || rec.records[0].Kind != models.KindDynamic {
		t.Fatalf("expected settlement and archive, got %d calls, %+v", settle.calls, rec.records)
	}
}

func TestDynamicRolesNoMatch(t *testing.T) {
	reply := llm.ProposerFunc(func(context.Context, string) (string, error) {
		return `{"decision":"find_alternative","reasoning":"taking the side street"}`, nil
	})
	settle := &stubSettlement{}
	e := newTestEngine(t, reply, WithSettlement(settle))
	a, b := demoPair()

	res, err := e.NegotiateWithDynamicRoles(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("NegotiateWithDynamicRoles: %v", err)
	}
	if res.Success || res.Method != models.MethodFailed || res.Outcome != models.OutcomeNoMatch {
		t.Fatalf("expected failed match, got %+v", res)
	}
	if settle.calls != 0 {
		t.Fatalf("settlement must not run without a match")
	}
}

type paymentLog struct {
	requests []settlement.SettleRequest
}

func (p *paymentLog) Settle(_ context.Context, req settlement.SettleRequest) (settlement.Receipt, error) {
	p.requests = append(p.requests, req)
	return settlement.Receipt{TxHash: "0xfeed"}, nil
}

type releaseLog struct {
	ids []string
}

func (r *releaseLog) ResolveCollision(sellerID string) error {
	r.ids = append(r.ids, sellerID)
	return nil
}

func TestDynamicRolesCompetitiveBidPaysNobody(t *testing.T) {
	reply := llm.ProposerFunc(func(context.Context, string) (string, error) {
		return `{"decision":"pay_and_pass","amount":300,"reasoning":"must get through"}`, nil
	})
	payments := &paymentLog{}
	releases := &releaseLog{}
	orch := settlement.NewOrchestrator(settlement.Options{
		Settler:  payments,
		Keys:     settlement.StaticKeys{1: "key-a", 2: "key-b"},
		Releaser: releases,
		Contract: "0xC196330F11B18973274419E7Fa2cf954Aff98BE8",
	})
	e := newTestEngine(t, reply, WithSettlement(orch))
	a, b := demoPair()

	res, err := e.NegotiateWithDynamicRoles(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("NegotiateWithDynamicRoles: %v", err)
	}
	if !res.Success || res.Method != models.MethodCompromise {
		t.Fatalf("expected compromise, got %+v", res)
	}
	// Equal bids go to B, so agent 1 gives way.
	if res.Buyer.AgentID != 2 || res.Seller.AgentID != 1 {
		t.Fatalf("expected agent 2 to pass, got buyer=%d seller=%d", res.Buyer.AgentID, res.Seller.AgentID)
	}
	if len(payments.requests) != 0 {
		t.Fatalf("losing bidder was paid: %+v", payments.requests)
	}
	if len(releases.ids) != 1 || releases.ids[0] != "agent-1" {
		t.Fatalf("expected agent-1 released, got %v", releases.ids)
	}
	if !strings.Contains(strings.Join(res.Transcript, "\n"), "No payment made") {
		t.Fatalf("transcript does not record the unpaid release: %v", res.Transcript)
	}
}

func TestDynamicRolesDirectMatchStillPays(t *testing.T) {
	replies := &scripted{replies: []string{
		`{"decision":"pay_and_pass","amount":400}`,
		`{"decision":"wait_for_payment","amount":300}`,
	}}
	settle := &stubSettlement{}
	e := newTestEngine(t, replies, WithSettlement(settle))
	a, b := demoPair()

	res, err := e.NegotiateWithDynamicRoles(context.Background(), a, b, models.LocationIntersection)
	if err != nil {
		t.Fatalf("NegotiateWithDynamicRoles: %v", err)
	}
	if res.Method != models.MethodDirectMatch || settle.calls != 1 || len(settle.released) != 0 {
		t.Fatalf("expected a paid direct match, got method=%s calls=%d released=%v", res.Method, settle.calls, settle.released)
	}
	if !settle.price.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("expected midpoint 350, got %s", settle.price)
	}
}
