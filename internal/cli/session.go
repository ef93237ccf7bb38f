package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dyike/RightOfWay/config"
	"github.com/dyike/RightOfWay/internal/debug"
	"github.com/dyike/RightOfWay/internal/display"
	"github.com/dyike/RightOfWay/internal/llm"
	"github.com/dyike/RightOfWay/internal/storage"
	"github.com/dyike/RightOfWay/internal/storage/sqlite"
	"github.com/dyike/RightOfWay/pkg/app"
)

// session carries what one CLI invocation needs. The runtime is only built
// by commands that negotiate or simulate.
type session struct {
	configPath string
	debug      bool
	einoDebug  bool

	out     io.Writer
	display *display.ResultsDisplay

	mgr *config.Manager
	rt  *app.Runtime
}

func newSession(out io.Writer) *session {
	return &session{out: out, display: display.NewResultsDisplay(out)}
}

func (s *session) setOutput(out io.Writer) {
	s.out = out
	s.display = display.NewResultsDisplay(out)
}

func (s *session) manager() (*config.Manager, error) {
	if s.mgr != nil {
		return s.mgr, nil
	}
	mgr, err := config.NewManager(config.WithConfigPath(s.configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.SetDefaultManager(mgr)
	s.mgr = mgr
	return mgr, nil
}

// config returns the current config with the command-line overrides applied.
func (s *session) config() (config.Config, error) {
	mgr, err := s.manager()
	if err != nil {
		return config.Config{}, err
	}
	cfg := mgr.Get()
	if s.debug {
		cfg.Debug = true
	}
	if s.einoDebug {
		cfg.EinoDebugEnabled = true
	}
	return cfg, nil
}

func (s *session) runtime(ctx context.Context) (*app.Runtime, error) {
	if s.rt != nil {
		return s.rt, nil
	}
	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	// the debugger only sees graphs compiled after it starts
	dbg := debug.NewEinoDebugger(&cfg)
	if err := dbg.Initialize(ctx); err != nil {
		return nil, err
	}

	svc, err := app.NewServices(&cfg, llm.NewLogHandler(cfg.Debug))
	if err != nil {
		return nil, err
	}
	rt, err := app.NewRuntime(s.mgr, app.WithServices(svc))
	if err != nil {
		svc.Close()
		return nil, err
	}
	s.rt = rt
	return rt, nil
}

// store opens the archive without building a runtime.
func (s *session) store() (*sqlite.Store, error) {
	if s.rt != nil && s.rt.Services().Store != nil {
		return s.rt.Services().Store, nil
	}
	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	return storage.GetSQLiteStore(&cfg)
}

func (s *session) close() {
	if s.rt != nil {
		s.rt.Close()
		s.rt = nil
	}
}
