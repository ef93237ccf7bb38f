package debug

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino-ext/devops"

	"github.com/dyike/RightOfWay/config"
)

// EinoDebugger exposes the negotiation graph to the Eino visual debugger.
type EinoDebugger struct {
	config *config.Config
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{config: cfg}
}

// Initialize must run before any graph is compiled, or the graph will not
// show up in the debugger.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}

	if d.config.Debug {
		log.Printf("[EinoDebug] Initializing Eino visual debug plugin on port %d", d.config.EinoDebugPort)
	}

	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}

	log.Printf("[EinoDebug] Debug server at %s", d.GetDebugURL())
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) GetDebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.config.EinoDebugPort)
}
