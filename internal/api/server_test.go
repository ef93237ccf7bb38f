package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/internal/registry"
	"github.com/dyike/RightOfWay/internal/simulation"
	"github.com/dyike/RightOfWay/internal/storage/sqlite"
	"github.com/dyike/RightOfWay/internal/tools"
	"github.com/dyike/RightOfWay/models"
	"github.com/dyike/RightOfWay/pkg/app"
)

type fakeNegotiator struct {
	out *app.NegotiationOutcome
	err error
}

func (f *fakeNegotiator) Negotiate(context.Context, app.NegotiationRequest) (*app.NegotiationOutcome, error) {
	return f.out, f.err
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := NewServer(simulation.NewMachine(), &fakeNegotiator{})
	rec := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestSimulationControl(t *testing.T) {
	m := simulation.NewMachine()
	defer m.Stop()
	s := NewServer(m, &fakeNegotiator{})

	rec := do(t, s, http.MethodPost, "/api/simulation", map[string]string{"action": simulation.ActionInitialize})
	if rec.Code != http.StatusOK {
		t.Fatalf("initialize: status %d: %s", rec.Code, rec.Body)
	}
	snap := decode[models.SimulationSnapshot](t, rec)
	if len(snap.Agents) != 2 || snap.CollisionDetected {
		t.Fatalf("unexpected snapshot after initialize: %+v", snap)
	}

	rec = do(t, s, http.MethodPost, "/api/simulation", map[string]string{"action": simulation.ActionTrigger})
	snap = decode[models.SimulationSnapshot](t, rec)
	if !snap.CollisionDetected || snap.CollisionLocation != models.LocationIntersection {
		t.Fatalf("expected collision at intersection: %+v", snap)
	}

	rec = do(t, s, http.MethodGet, "/api/congestion/"+models.LocationIntersection, nil)
	report := decode[simulation.CongestionReport](t, rec)
	if !report.Blocked || report.BlockedBy != simulation.SellerID {
		t.Fatalf("expected intersection blocked by seller: %+v", report)
	}

	rec = do(t, s, http.MethodPost, "/api/simulation", map[string]string{"action": simulation.ActionResolve})
	snap = decode[models.SimulationSnapshot](t, rec)
	if snap.CollisionDetected {
		t.Fatalf("collision should be released: %+v", snap)
	}

	rec = do(t, s, http.MethodPost, "/api/simulation", map[string]string{"action": simulation.ActionReset})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status %d", rec.Code)
	}
}

func TestSimulationControlErrors(t *testing.T) {
	s := NewServer(simulation.NewMachine(), &fakeNegotiator{})

	if rec := do(t, s, http.MethodPost, "/api/simulation", map[string]string{"action": "fly"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: status %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/simulation", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/congestion/nowhere", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown location: status %d", rec.Code)
	}
}

func TestNegotiateEndpoint(t *testing.T) {
	price := decimal.NewFromInt(300)
	neg := &fakeNegotiator{out: &app.NegotiationOutcome{
		Mode: app.ModeAIToAI,
		Result: &models.NegotiationResult{
			ID:         "n-1",
			Success:    true,
			Outcome:    models.OutcomeSettled,
			FinalPrice: &price,
			Buyer:      1,
			Seller:     2,
		},
	}}
	s := NewServer(simulation.NewMachine(), neg)

	rec := do(t, s, http.MethodPost, "/api/negotiate", app.NegotiationRequest{Agent1ID: 1, Agent2ID: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	sum := decode[tools.NegotiationSummary](t, rec)
	if !sum.Success || sum.Price == nil || !sum.Price.Equal(price) {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestNegotiateEndpointErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: agents must differ", app.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: 9", registry.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s := NewServer(simulation.NewMachine(), &fakeNegotiator{err: tc.err})
		rec := do(t, s, http.MethodPost, "/api/negotiate", app.NegotiationRequest{Agent1ID: 1, Agent2ID: 9})
		if rec.Code != tc.want {
			t.Errorf("%v: status %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestNegotiationHistory(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "row.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		rec := models.NegotiationRecord{
			ID:         fmt.Sprintf("n-%d", i),
			Kind:       models.KindAIToAI,
			LocationID: models.LocationIntersection,
			Network:    models.NetworkFuji,
			BuyerID:    1,
			SellerID:   2,
			Outcome:    models.OutcomeExhausted,
			Transcript: []string{"line"},
			CreatedAt:  time.Now(),
		}
		if err := store.SaveNegotiation(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	s := NewServer(simulation.NewMachine(), &fakeNegotiator{}, WithHistory(store))

	rec := do(t, s, http.MethodGet, "/api/negotiations?limit=2", nil)
	page := decode[struct {
		Negotiations []sqlite.NegotiationWithMeta `json:"negotiations"`
		NextCursor   int64                        `json:"nextCursor"`
	}](t, rec)
	if len(page.Negotiations) != 2 || page.Negotiations[0].ID != "n-3" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/api/negotiations?limit=2&cursor=%d", page.NextCursor), nil)
	page = decode[struct {
		Negotiations []sqlite.NegotiationWithMeta `json:"negotiations"`
		NextCursor   int64                        `json:"nextCursor"`
	}](t, rec)
	if len(page.Negotiations) != 1 || page.Negotiations[0].ID != "n-1" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	rec = do(t, s, http.MethodGet, "/api/negotiations/n-2", nil)
	got := decode[sqlite.NegotiationWithMeta](t, rec)
	if got.ID != "n-2" || len(got.Transcript) != 1 {
		t.Fatalf("unexpected record %+v", got)
	}
	if rec := do(t, s, http.MethodGet, "/api/negotiations/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: status %d", rec.Code)
	}
}

func TestHistoryUnavailable(t *testing.T) {
	s := NewServer(simulation.NewMachine(), &fakeNegotiator{})
	if rec := do(t, s, http.MethodGet, "/api/negotiations", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAgents(t *testing.T) {
	reg, err := registry.New(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	s := NewServer(simulation.NewMachine(), &fakeNegotiator{}, WithAgents(reg))

	rec := do(t, s, http.MethodGet, "/api/agents/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	card := decode[registry.AgentCard](t, rec)
	if card.ID != 1 || card.Strategy.PreferredRole != models.RoleBuyer {
		t.Fatalf("unexpected card %+v", card)
	}
	if rec := do(t, s, http.MethodGet, "/api/agents/42", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown agent: status %d", rec.Code)
	}
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	m := simulation.NewMachine()
	defer m.Stop()
	ts := httptest.NewServer(NewServer(m, &fakeNegotiator{}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first models.SimulationSnapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.CollisionDetected {
		t.Fatalf("initial snapshot should have no collision")
	}

	m.TriggerCollision()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var snap models.SimulationSnapshot
		_ = conn.SetReadDeadline(deadline)
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("waiting for collision snapshot: %v", err)
		}
		if snap.CollisionDetected {
			return
		}
	}
}
