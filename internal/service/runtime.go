package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/internal/llm"
	"github.com/dyike/RightOfWay/pkg/app"
	"github.com/dyike/RightOfWay/pkg/bridge"
)

var ErrNotInitialized = errors.New("runtime not initialized, call InitSDK first")

var (
	rtMu       sync.RWMutex
	rt         *app.Runtime
	stopStream func()
)

// Init builds the shared runtime. The config file lives in workDir;
// configJSON, when present, is applied on top of it.
func Init(workDir, configJSON string) error {
	mgr, err := config.NewManager(config.WithConfigDir(workDir))
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}
	if strings.TrimSpace(configJSON) != "" {
		if err := mgr.UpdateFromJSON(configJSON); err != nil {
			return fmt.Errorf("apply config: %w", err)
		}
	}
	config.SetDefaultManager(mgr)

	cfg := mgr.Get()
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	svc, err := app.NewServices(&cfg, llm.NewLogHandler(cfg.Debug))
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	next, err := app.NewRuntime(mgr, app.WithServices(svc), app.WithNotifier(bridge.Notify))
	if err != nil {
		svc.Close()
		return fmt.Errorf("init runtime: %w", err)
	}

	rtMu.Lock()
	prev, prevStop := rt, stopStream
	rt = next
	stopStream = streamSimulation(next)
	rtMu.Unlock()

	if prevStop != nil {
		prevStop()
	}
	if prev != nil {
		prev.Close()
	}
	log.Printf("[Service] runtime ready (network=%s, mode=%s)", cfg.Network, cfg.Mode)
	return nil
}

// streamSimulation forwards every simulation snapshot as a
// "simulation.state" event.
func streamSimulation(r *app.Runtime) func() {
	snapshots, unsubscribe := r.Services().Machine.Subscribe()
	go func() {
		for snap := range snapshots {
			payload, err := json.Marshal(snap)
			if err != nil {
				log.Printf("[Service] marshal snapshot: %v", err)
				continue
			}
			bridge.Notify("simulation.state", string(payload))
		}
	}()
	return unsubscribe
}

func current() (*app.Runtime, error) {
	rtMu.RLock()
	defer rtMu.RUnlock()
	if rt == nil {
		return nil, ErrNotInitialized
	}
	return rt, nil
}

// UpdateConfig merges a JSON fragment into the config; the runtime reloads
// its engine from the change.
func UpdateConfig(jsonStr string) error {
	r, err := current()
	if err != nil {
		return err
	}
	return r.UpdateConfigJSON(jsonStr)
}

func Shutdown() {
	rtMu.Lock()
	prev, prevStop := rt, stopStream
	rt, stopStream = nil, nil
	rtMu.Unlock()

	if prevStop != nil {
		prevStop()
	}
	if prev != nil {
		prev.Close()
	}
}

func GetSystemInfo() any {
	info := map[string]any{
		"version":     app.Version,
		"initialized": false,
	}
	if r, err := current(); err == nil {
		cfg := r.Config()
		info["initialized"] = true
		info["network"] = cfg.Network
		info["mode"] = cfg.Mode
		info["llm_provider"] = cfg.LLMProvider
	}
	return info
}
