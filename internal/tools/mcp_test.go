package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/internal/simulation"
	"github.com/dyike/RightOfWay/models"
	"github.com/dyike/RightOfWay/pkg/app"
)

type fakeNegotiator struct {
	got app.NegotiationRequest
	out *app.NegotiationOutcome
	err error
}

func (f *fakeNegotiator) Negotiate(_ context.Context, req app.NegotiationRequest) (*app.NegotiationOutcome, error) {
	f.got = req
	return f.out, f.err
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	respBytes, err := json.Marshal(s.HandleMessage(context.Background(), reqJSON))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return &result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatalf("no text content in result: %+v", result)
	return ""
}

func TestEvaluateCongestion(t *testing.T) {
	m := simulation.NewMachine()
	s := NewMCPServer("test", m, &fakeNegotiator{})

	var clear simulation.CongestionReport
	res := callTool(t, s, ToolEvaluateCongestion, map[string]any{"locationId": models.LocationIntersection})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, res))
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &clear); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if clear.Blocked || clear.Level != simulation.LevelLow {
		t.Fatalf("expected clear path, got %+v", clear)
	}

	m.Board().Set(models.LocationIntersection, "agent-2")
	var blocked simulation.CongestionReport
	res = callTool(t, s, ToolEvaluateCongestion, map[string]any{"locationId": models.LocationIntersection})
	if err := json.Unmarshal([]byte(resultText(t, res)), &blocked); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !blocked.NeedsNegotiation || blocked.BlockedBy != "agent-2" {
		t.Fatalf("expected blocked by agent-2, got %+v", blocked)
	}
}

func TestEvaluateCongestionUnknownLocation(t *testing.T) {
	s := NewMCPServer("test", simulation.NewMachine(), &fakeNegotiator{})
	res := callTool(t, s, ToolEvaluateCongestion, map[string]any{"locationId": "nowhere"})
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, res), "unknown location") {
		t.Fatalf("unexpected message %q", resultText(t, res))
	}
}

func TestSimulationState(t *testing.T) {
	m := simulation.NewMachine()
	m.Initialize()
	s := NewMCPServer("test", m, &fakeNegotiator{})

	var snap models.SimulationSnapshot
	res := callTool(t, s, ToolSimulationState, nil)
	if err := json.Unmarshal([]byte(resultText(t, res)), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(snap.Agents))
	}
	if snap.IsRunning || snap.CollisionDetected {
		t.Fatalf("fresh simulation should be idle: %+v", snap)
	}
}

func TestNegotiateTool(t *testing.T) {
	price := decimal.NewFromInt(450)
	neg := &fakeNegotiator{out: &app.NegotiationOutcome{
		Mode: app.ModeAIToAI,
		Result: &models.NegotiationResult{
			ID:          "n-1",
			Success:     true,
			Outcome:     models.OutcomeSettled,
			FinalPrice:  &price,
			MarketPrice: decimal.NewFromInt(200),
			Rounds:      1,
			Buyer:       1,
			Seller:      2,
			Transcript:  []string{"[Agent 1] offer", "[Agent 2] ACCEPT"},
		},
	}}
	s := NewMCPServer("test", simulation.NewMachine(), neg)

	res := callTool(t, s, ToolNegotiate, map[string]any{
		"agent1Id":   1,
		"agent2Id":   2,
		"locationId": models.LocationIntersection,
		"network":    "sepolia",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, res))
	}
	if neg.got.Agent1ID != 1 || neg.got.Agent2ID != 2 || neg.got.Network != "sepolia" {
		t.Fatalf("request not forwarded: %+v", neg.got)
	}

	var sum NegotiationSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sum.Success || sum.Price == nil || !sum.Price.Equal(price) {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.BuyerID != 1 || sum.SellerID != 2 || len(sum.Transcript) != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestNegotiateToolInvalidRequest(t *testing.T) {
	neg := &fakeNegotiator{err: fmt.Errorf("%w: agents must differ", app.ErrInvalidRequest)}
	s := NewMCPServer("test", simulation.NewMachine(), neg)

	res := callTool(t, s, ToolNegotiate, map[string]any{"agent1Id": 1, "agent2Id": 1})
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(resultText(t, res), "agents must differ") {
		t.Fatalf("unexpected message %q", resultText(t, res))
	}
}

func TestNegotiateToolKeepsPartialOutcome(t *testing.T) {
	neg := &fakeNegotiator{
		out: &app.NegotiationOutcome{Mode: app.ModeDynamic, Dynamic: &models.DynamicResult{
			ID:      "d-1",
			Outcome: models.OutcomeSettlementFailed,
			Method:  models.MethodDirectMatch,
		}},
		err: errors.New("insufficient balance"),
	}
	s := NewMCPServer("test", simulation.NewMachine(), neg)

	res := callTool(t, s, ToolNegotiate, map[string]any{"agent1Id": 1, "agent2Id": 2, "mode": "dynamic"})
	if res.IsError {
		t.Fatalf("partial outcome should be a normal result: %s", resultText(t, res))
	}
	var sum NegotiationSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Outcome != models.OutcomeSettlementFailed || sum.Error != "insufficient balance" {
		t.Fatalf("unexpected summary %+v", sum)
	}
}
