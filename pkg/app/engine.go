package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/internal/llm"
	"github.com/dyike/RightOfWay/internal/negotiation"
	"github.com/dyike/RightOfWay/internal/settlement"
	"github.com/dyike/RightOfWay/models"
)

// Engine is one immutable build of the negotiation stack for a config
// version. A reload swaps in a new Engine; running negotiations keep theirs.
type Engine struct {
	Config     config.Config
	BuiltAt    time.Time
	Version    uint64
	Negotiator *negotiation.Engine
	// Collisions gates negotiation on an active collision. Nil disables the
	// check.
	Collisions CollisionSource
}

// CollisionSource reports the collision waiting to be resolved, if any.
type CollisionSource interface {
	CollisionActive() (bool, string)
}

var engineSeq atomic.Uint64

// BuildEngine wires proposer, settlement and the negotiation graph from cfg
// onto the shared services.
func BuildEngine(ctx context.Context, cfg config.Config, svc *Services) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	network, err := models.ParseNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}

	proposer := llm.NewProposer(ctx, &cfg)
	opts := []negotiation.Option{
		negotiation.WithParams(negotiation.ParamsFromConfig(&cfg)),
		negotiation.WithNetwork(network),
	}
	if svc != nil {
		if svc.Machine != nil {
			opts = append(opts,
				negotiation.WithSettlement(settlement.FromConfig(&cfg, svc.Machine)),
				negotiation.WithCongestion(svc.Machine.Board()),
			)
		}
		if svc.Recorder != nil {
			opts = append(opts, negotiation.WithRecorder(svc.Recorder))
		}
		if svc.Handler != nil {
			opts = append(opts, negotiation.WithCallbacks(svc.Handler))
		}
	}

	neg, err := negotiation.NewEngine(ctx, proposer, opts...)
	if err != nil {
		return nil, fmt.Errorf("build negotiation engine: %w", err)
	}
	engine := &Engine{
		Config:     cfg,
		BuiltAt:    time.Now(),
		Version:    engineSeq.Add(1),
		Negotiator: neg,
	}
	if svc != nil && svc.Machine != nil {
		engine.Collisions = svc.Machine
	}
	return engine, nil
}
