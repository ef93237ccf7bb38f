package tools

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/internal/simulation"
	"github.com/dyike/RightOfWay/models"
	"github.com/dyike/RightOfWay/pkg/app"
)

const (
	ToolEvaluateCongestion = "evaluate_congestion"
	ToolSimulationState    = "get_simulation_state"
	ToolNegotiate          = "negotiate_right_of_way"
)

// StateSource exposes the live simulation.
type StateSource interface {
	State() models.SimulationSnapshot
	Board() *simulation.CongestionBoard
}

type Negotiator interface {
	Negotiate(ctx context.Context, req app.NegotiationRequest) (*app.NegotiationOutcome, error)
}

type CongestionInput struct {
	LocationID string `json:"locationId"`
}

type SimulationStateInput struct{}

// NegotiationSummary is the tool-facing view of either negotiation kind.
type NegotiationSummary struct {
	ID          string           `json:"id"`
	Mode        string           `json:"mode"`
	Success     bool             `json:"success"`
	Outcome     models.Outcome   `json:"outcome"`
	BuyerID     int              `json:"buyerId,omitempty"`
	SellerID    int              `json:"sellerId,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	MarketPrice *decimal.Decimal `json:"marketPrice,omitempty"`
	Rounds      int              `json:"rounds,omitempty"`
	Method      string           `json:"method,omitempty"`
	Transcript  []string         `json:"transcript"`
	Error       string           `json:"error,omitempty"`
}

func NewCongestionTool(sim StateSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: ToolEvaluateCongestion,
			Desc: "Report whether a location is blocked and whether passing requires a right-of-way negotiation",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"locationId": {
					Type:     "string",
					Desc:     "Location id, e.g. LOC_001 or LOC_35.6787_139.7587",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input CongestionInput) (*simulation.CongestionReport, error) {
			id := strings.TrimSpace(input.LocationID)
			if id == "" {
				return nil, fmt.Errorf("locationId parameter is required")
			}
			if _, ok := models.ParseLocationID(id); !ok {
				return nil, fmt.Errorf("unknown location %q", id)
			}
			report := sim.Board().Level(id)
			return &report, nil
		},
	)
}

func NewSimulationStateTool(sim StateSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolSimulationState,
			Desc:        "Get the current simulation state: agents, positions and any active collision",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, _ SimulationStateInput) (*models.SimulationSnapshot, error) {
			s := sim.State()
			return &s, nil
		},
	)
}

func NewNegotiateTool(neg Negotiator) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: ToolNegotiate,
			Desc: "Run a right-of-way negotiation between two agents and settle the agreed price",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"agent1Id": {
					Type:     "integer",
					Desc:     "Id of the first agent",
					Required: true,
				},
				"agent2Id": {
					Type:     "integer",
					Desc:     "Id of the second agent",
					Required: true,
				},
				"locationId": {
					Type: "string",
					Desc: "Contested location (default: LOC_001)",
				},
				"network": {
					Type: "string",
					Desc: "Settlement network: fuji or sepolia",
					Enum: []string{string(models.NetworkFuji), string(models.NetworkSepolia)},
				},
				"mode": {
					Type: "string",
					Desc: "ai_to_ai for offer/counter bargaining, dynamic for evaluate-then-match",
					Enum: []string{app.ModeAIToAI, app.ModeDynamic},
				},
			}),
		},
		func(ctx context.Context, req app.NegotiationRequest) (*NegotiationSummary, error) {
			out, err := neg.Negotiate(ctx, req)
			if out == nil {
				return nil, err
			}
			summary := Summarize(out)
			if err != nil {
				log.Printf("[Tools] negotiation finished with error: %v", err)
				summary.Error = err.Error()
			}
			return summary, nil
		},
	)
}

func Summarize(out *app.NegotiationOutcome) *NegotiationSummary {
	s := &NegotiationSummary{Mode: out.Mode, Success: out.Success(), Transcript: out.Transcript()}
	if r := out.Result; r != nil {
		s.ID, s.Outcome, s.Rounds = r.ID, r.Outcome, r.Rounds
		s.BuyerID, s.SellerID = r.Buyer, r.Seller
		s.Price = r.FinalPrice
		s.MarketPrice = models.Amount(r.MarketPrice)
	}
	if r := out.Dynamic; r != nil {
		s.ID, s.Outcome, s.Method = r.ID, r.Outcome, string(r.Method)
		s.Price = r.AgreedPrice
		if r.Buyer != nil {
			s.BuyerID = r.Buyer.AgentID
		}
		if r.Seller != nil {
			s.SellerID = r.Seller.AgentID
		}
	}
	return s
}

// All returns every right-of-way tool.
func All(sim StateSource, neg Negotiator) []tool.InvokableTool {
	return []tool.InvokableTool{
		NewCongestionTool(sim),
		NewSimulationStateTool(sim),
		NewNegotiateTool(neg),
	}
}
