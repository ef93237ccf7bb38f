package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/models"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "row.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, buyer, seller int, success bool, price int64, at time.Time) models.NegotiationRecord {
	p := decimal.NewFromInt(price)
	market := decimal.NewFromInt(200)
	return models.NegotiationRecord{
		ID:          id,
		Kind:        models.KindAIToAI,
		LocationID:  models.LocationIntersection,
		Network:     models.NetworkFuji,
		BuyerID:     buyer,
		SellerID:    seller,
		Success:     success,
		Outcome:     models.OutcomeSettled,
		Price:       &p,
		MarketPrice: &market,
		Rounds:      1,
		Turns: []models.ConversationTurn{
			{Speaker: buyer, Action: models.TurnInitialOffer, Message: "I offer 190.00 JPYC to pass", OfferAmount: &p},
			{Speaker: seller, Action: models.TurnAccept, Message: "I accept 190.00 JPYC"},
		},
		Transcript: []string{"[System] Market price at LOC_001: 200.00 JPYC", "[Agent 1] Initial offer: 190.00 JPYC"},
		CreatedAt:  at,
	}
}

func TestSaveAndGetNegotiation(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	if err := s.SaveNegotiation(ctx, record("n-1", 1, 2, true, 190, at)); err != nil {
		t.Fatalf("SaveNegotiation: %v", err)
	}
	got, err := s.GetNegotiation(ctx, "n-1")
	if err != nil || got == nil {
		t.Fatalf("GetNegotiation: %v, %v", got, err)
	}
	if !got.Price.Equal(decimal.NewFromInt(190)) || !got.MarketPrice.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("amounts not preserved: %+v", got.NegotiationRecord)
	}
	if len(got.Turns) != 2 || got.Turns[0].OfferAmount == nil || got.Turns[1].OfferAmount != nil {
		t.Fatalf("turns not preserved: %+v", got.Turns)
	}
	if len(got.Transcript) != 2 || got.Transcript[1] != "[Agent 1] Initial offer: 190.00 JPYC" {
		t.Fatalf("transcript not preserved: %v", got.Transcript)
	}
	if !got.Success || got.Outcome != models.OutcomeSettled || got.Network != models.NetworkFuji {
		t.Fatalf("fields not preserved: %+v", got.NegotiationRecord)
	}

	missing, err := s.GetNegotiation(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %v, %v", missing, err)
	}
}

func TestSaveNegotiationReplacesTurns(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	rec := record("n-1", 1, 2, true, 190, time.Now())
	if err := s.SaveNegotiation(ctx, rec); err != nil {
		t.Fatalf("SaveNegotiation: %v", err)
	}
	rec.Turns = rec.Turns[:1]
	if err := s.SaveNegotiation(ctx, rec); err != nil {
		t.Fatalf("SaveNegotiation again: %v", err)
	}
	got, _ := s.GetNegotiation(ctx, "n-1")
	if len(got.Turns) != 1 {
		t.Fatalf("expected 1 turn after replace, got %d", len(got.Turns))
	}
}

func TestListNegotiationsPages(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		if err := s.SaveNegotiation(ctx, record(id, 1, 2, true, 190, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveNegotiation %s: %v", id, err)
		}
	}

	page, err := s.ListNegotiations(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListNegotiations: %v", err)
	}
	if len(page) != 2 || page[0].ID != "e" || page[1].ID != "d" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	next, err := s.ListNegotiations(ctx, page[1].RowID, 10)
	if err != nil {
		t.Fatalf("ListNegotiations: %v", err)
	}
	if len(next) != 3 || next[0].ID != "c" || next[2].ID != "a" {
		t.Fatalf("unexpected second page: %+v", next)
	}
}

func TestAgentHistory(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	_ = s.SaveNegotiation(ctx, record("a", 1, 2, true, 190, base))
	_ = s.SaveNegotiation(ctx, record("b", 2, 1, false, 250, base.Add(time.Minute)))
	_ = s.SaveNegotiation(ctx, record("c", 2, 3, true, 300, base.Add(2*time.Minute)))

	hist, err := s.AgentHistory(ctx, 1, 10)
	if err != nil {
		t.Fatalf("AgentHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries for agent 1, got %d", len(hist))
	}
	if hist[0].Role != models.RoleSeller || hist[0].Success {
		t.Fatalf("newest entry should be a failed sale: %+v", hist[0])
	}
	if hist[1].Role != models.RoleBuyer || !hist[1].Amount.Equal(decimal.NewFromInt(190)) {
		t.Fatalf("oldest entry should be the 190 purchase: %+v", hist[1])
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
