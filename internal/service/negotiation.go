package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/dyike/RightOfWay/internal/tools"
	"github.com/dyike/RightOfWay/pkg/app"
	"github.com/dyike/RightOfWay/pkg/bridge"
)

func parseRequest(paramsJson string) (app.NegotiationRequest, error) {
	var req app.NegotiationRequest
	if err := json.Unmarshal([]byte(paramsJson), &req); err != nil {
		return req, fmt.Errorf("invalid params: %w", err)
	}
	return req, nil
}

// Negotiate runs a negotiation and returns its summary.
func Negotiate(paramsJson string) (any, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	req, err := parseRequest(paramsJson)
	if err != nil {
		return nil, err
	}
	out, err := r.Negotiate(context.Background(), req)
	if out == nil {
		return nil, err
	}
	summary := tools.Summarize(out)
	if err != nil {
		summary.Error = err.Error()
	}
	return summary, nil
}

// StartNegotiation runs a negotiation in the background, streaming each
// transcript line as "negotiation.line" and ending with
// "negotiation.finished" or "negotiation.error".
func StartNegotiation(paramsJson string) (any, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	req, err := parseRequest(paramsJson)
	if err != nil {
		return nil, err
	}
	ticket := uuid.NewString()

	go func() {
		out, err := r.Negotiate(context.Background(), req)
		if out == nil {
			log.Printf("[Service] negotiation %s failed: %v", ticket, err)
			notifyJSON("negotiation.error", map[string]string{"ticket": ticket, "error": err.Error()})
			return
		}
		summary := tools.Summarize(out)
		for _, line := range summary.Transcript {
			notifyJSON("negotiation.line", map[string]string{"ticket": ticket, "line": line})
		}
		if err != nil {
			summary.Error = err.Error()
		}
		notifyJSON("negotiation.finished", map[string]any{"ticket": ticket, "result": summary})
	}()

	return map[string]string{"status": "started", "ticket": ticket}, nil
}

func notifyJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Service] marshal %s: %v", topic, err)
		return
	}
	bridge.Notify(topic, string(payload))
}

type controlParams struct {
	Action   string `json:"action"`
	SellerID string `json:"sellerId,omitempty"`
}

func SimulationState() (any, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	return r.Services().Machine.State(), nil
}

func ControlSimulation(paramsJson string) (any, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	var p controlParams
	if err := json.Unmarshal([]byte(paramsJson), &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	m := r.Services().Machine
	if err := m.Control(strings.TrimSpace(p.Action), p.SellerID); err != nil {
		return nil, err
	}
	return m.State(), nil
}

func EvaluateCongestion(paramsJson string) (any, error) {
	r, err := current()
	if err != nil {
		return nil, err
	}
	out, err := tools.NewCongestionTool(r.Services().Machine).InvokableRun(context.Background(), paramsJson)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}
