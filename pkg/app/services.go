package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/google/uuid"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/consts"
	"github.com/dyike/RightOfWay/internal/registry"
	"github.com/dyike/RightOfWay/internal/simulation"
	"github.com/dyike/RightOfWay/internal/storage"
	"github.com/dyike/RightOfWay/internal/storage/sqlite"
	"github.com/dyike/RightOfWay/models"
)

const (
	ModeAIToAI  = "ai_to_ai"
	ModeDynamic = "dynamic"
)

var ErrInvalidRequest = errors.New("invalid negotiation request")

// Services outlive engine reloads: the simulation, the archive and the
// agent registry.
type Services struct {
	Machine  *simulation.Machine
	Store    *sqlite.Store
	Recorder *storage.Recorder
	Registry *registry.Registry
	Handler  callbacks.Handler
}

// NewServices builds the shared services from the initial config. A missing
// archive is not fatal; negotiations then go unrecorded.
func NewServices(cfg *config.Config, handler callbacks.Handler) (*Services, error) {
	svc := &Services{
		Machine: simulation.NewMachine(simulation.WithTimeline(cfg.Timeline)),
		Handler: handler,
	}

	store, err := storage.GetSQLiteStore(cfg)
	if err != nil {
		log.Printf("[App] archive unavailable, negotiations will not be recorded: %v", err)
	} else {
		svc.Store = store
		if svc.Recorder, err = storage.NewRecorder(store, 64); err != nil {
			return nil, err
		}
	}

	var regOpts []registry.Option
	if svc.Store != nil {
		regOpts = append(regOpts, registry.WithHistory(svc.Store))
	}
	if svc.Registry, err = registry.Load(cfg.RegistryPath, regOpts...); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Services) Close() {
	if s.Machine != nil {
		s.Machine.Stop()
	}
	if s.Recorder != nil {
		s.Recorder.Close()
	}
}

type NegotiationRequest struct {
	Agent1ID   int    `json:"agent1Id"`
	Agent2ID   int    `json:"agent2Id"`
	LocationID string `json:"locationId"`
	Network    string `json:"network,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

type NegotiationOutcome struct {
	Mode    string                    `json:"mode"`
	Result  *models.NegotiationResult `json:"result,omitempty"`
	Dynamic *models.DynamicResult     `json:"dynamic,omitempty"`
}

// Success reports whether the negotiation reached an agreement.
func (o *NegotiationOutcome) Success() bool {
	switch {
	case o.Result != nil:
		return o.Result.Success
	case o.Dynamic != nil:
		return o.Dynamic.Success
	}
	return false
}

func (o *NegotiationOutcome) Transcript() []string {
	switch {
	case o.Result != nil:
		return o.Result.Transcript
	case o.Dynamic != nil:
		return o.Dynamic.Transcript
	}
	return nil
}

func (r *NegotiationRequest) normalize(defaultNetwork string) (models.Network, error) {
	if r.Agent1ID <= 0 || r.Agent2ID <= 0 {
		return "", fmt.Errorf("%w: agent ids must be positive", ErrInvalidRequest)
	}
	if r.Agent1ID == r.Agent2ID {
		return "", fmt.Errorf("%w: an agent cannot negotiate with itself", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.LocationID) == "" {
		r.LocationID = models.LocationIntersection
	}
	if _, ok := models.ParseLocationID(r.LocationID); !ok {
		return "", fmt.Errorf("%w: unknown location %q", ErrInvalidRequest, r.LocationID)
	}
	switch r.Mode {
	case "":
		r.Mode = ModeAIToAI
	case ModeAIToAI, ModeDynamic:
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if r.Network == "" {
		r.Network = defaultNetwork
	}
	network, err := models.ParseNetwork(r.Network)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return network, nil
}

// Negotiate resolves both agents and runs the requested protocol. A
// production settlement failure comes back as an error next to the outcome.
func (e *Engine) Negotiate(ctx context.Context, reg *registry.Registry, req NegotiationRequest) (*NegotiationOutcome, error) {
	explicit := req.Network != ""
	anyLocation := strings.TrimSpace(req.LocationID) == ""
	network, err := req.normalize(e.Config.Network)
	if err != nil {
		return nil, err
	}
	a, err := reg.Context(ctx, req.Agent1ID, network)
	if err != nil {
		return nil, err
	}
	b, err := reg.Context(ctx, req.Agent2ID, network)
	if err != nil {
		return nil, err
	}
	if explicit {
		a.Network, b.Network = network, network
	}

	if e.Collisions != nil {
		active, at := e.Collisions.CollisionActive()
		switch {
		case !active:
			return blocked(req, network, "No active collision, nothing to negotiate"), nil
		case anyLocation:
			req.LocationID = at
		case at != req.LocationID:
			return blocked(req, network, fmt.Sprintf("Active collision is at %s, not %s", at, req.LocationID)), nil
		}
	}

	out := &NegotiationOutcome{Mode: req.Mode}
	if req.Mode == ModeDynamic {
		out.Dynamic, err = e.Negotiator.NegotiateWithDynamicRoles(ctx, a, b, req.LocationID)
	} else {
		out.Result, err = e.Negotiator.Negotiate(ctx, a, b, req.LocationID)
	}
	return out, err
}

// blocked is the outcome of a request that arrives without a matching
// collision. Nothing is negotiated, settled or archived.
func blocked(req NegotiationRequest, network models.Network, reason string) *NegotiationOutcome {
	log.Printf("[App] negotiation %d vs %d refused: %s", req.Agent1ID, req.Agent2ID, reason)
	transcript := []string{consts.SpeakerSystem + " " + reason}
	out := &NegotiationOutcome{Mode: req.Mode}
	if req.Mode == ModeDynamic {
		out.Dynamic = &models.DynamicResult{
			ID:         uuid.NewString(),
			LocationID: req.LocationID,
			Method:     models.MethodFailed,
			Outcome:    models.OutcomeNoCollision,
			Transcript: transcript,
			Network:    network,
		}
		return out
	}
	out.Result = &models.NegotiationResult{
		ID:         uuid.NewString(),
		LocationID: req.LocationID,
		Outcome:    models.OutcomeNoCollision,
		Buyer:      req.Agent1ID,
		Seller:     req.Agent2ID,
		Transcript: transcript,
		Network:    network,
	}
	return out
}
