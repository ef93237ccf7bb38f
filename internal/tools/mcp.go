package tools

import (
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/cloudwego/eino/components/tool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "rightofway"

// NewMCPServer publishes the right-of-way tools over MCP.
func NewMCPServer(version string, sim StateSource, neg Negotiator) *server.MCPServer {
	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))

	s.AddTool(
		mcp.NewTool(ToolEvaluateCongestion,
			mcp.WithDescription("Report whether a location is blocked and whether passing requires a right-of-way negotiation."),
			mcp.WithString("locationId", mcp.Required(), mcp.Description("Location id, e.g. LOC_001 or LOC_35.6787_139.7587")),
		),
		bridge(NewCongestionTool(sim)),
	)
	s.AddTool(
		mcp.NewTool(ToolSimulationState,
			mcp.WithDescription("Get the current simulation state: agents, positions and any active collision."),
		),
		bridge(NewSimulationStateTool(sim)),
	)
	s.AddTool(
		mcp.NewTool(ToolNegotiate,
			mcp.WithDescription("Run a right-of-way negotiation between two agents and settle the agreed price."),
			mcp.WithNumber("agent1Id", mcp.Required(), mcp.Description("Id of the first agent")),
			mcp.WithNumber("agent2Id", mcp.Required(), mcp.Description("Id of the second agent")),
			mcp.WithString("locationId", mcp.Description("Contested location (default: LOC_001)")),
			mcp.WithString("network", mcp.Description("Settlement network: fuji or sepolia")),
			mcp.WithString("mode", mcp.Description("ai_to_ai (default) or dynamic")),
		),
		bridge(NewNegotiateTool(neg)),
	)
	return s
}

// bridge runs an eino tool for an MCP call. Tool errors become error
// results so the client sees the message.
func bridge(t tool.InvokableTool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}
		out, err := t.InvokableRun(ctx, string(raw))
		if err != nil {
			log.Printf("[MCP] %s: %v", req.Params.Name, err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// ServeStdio serves s on the given streams until ctx is done.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
