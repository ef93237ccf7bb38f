package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dyike/RightOfWay/config"
)

type EngineBuilder func(context.Context, config.Config, *Services) (*Engine, error)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

// WithServices supplies prebuilt shared services instead of building them
// from the config.
func WithServices(svc *Services) Option {
	return func(r *Runtime) {
		r.services = svc
	}
}

// Runtime keeps the current Engine in step with the config file.
type Runtime struct {
	cfgMgr   *config.Manager
	engine   atomic.Pointer[Engine]
	services *Services

	builder EngineBuilder
	notify  func(string, string)
	cancel  context.CancelFunc
}

func NewRuntime(cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr:  cfgMgr,
		builder: BuildEngine,
	}

	for _, opt := range opts {
		opt(rt)
	}

	cfg := cfgMgr.Get()
	if rt.services == nil {
		svc, err := NewServices(&cfg, nil)
		if err != nil {
			return nil, err
		}
		rt.services = svc
	}

	if err := rt.reload(cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx, func(cfg config.Config) {
		if err := rt.reload(cfg); err != nil && rt.notify == nil {
			log.Printf("[Runtime] engine reload failed: %v", err)
		}
	}); err != nil {
		cancel()
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

func (r *Runtime) Services() *Services {
	return r.services
}

func (r *Runtime) Config() config.Config {
	return r.cfgMgr.Get()
}

// Negotiate runs on whichever engine is current when it starts.
func (r *Runtime) Negotiate(ctx context.Context, req NegotiationRequest) (*NegotiationOutcome, error) {
	return r.Engine().Negotiate(ctx, r.services.Registry, req)
}

func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.services != nil {
		r.services.Close()
	}
}

func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.cfgMgr.UpdateFromJSON(jsonStr)
}

func (r *Runtime) reload(cfg config.Config) error {
	engine, err := r.builder(context.Background(), cfg, r.services)
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	prev := r.engine.Swap(engine)
	if prev != nil {
		log.Printf("[Runtime] engine v%d replaces v%d (changed: %s)", engine.Version, prev.Version, strings.Join(config.Changes(prev.Config, cfg), ", "))
	}
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
		"network":  engine.Config.Network,
		"mode":     engine.Config.Mode,
	})
	r.notify("engine.reloaded", string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify("engine.reload_failed", string(payload))
}
