package tools

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/resilient-engine/api/types"
	"github.com/masa-finance/resilient-engine/internal/config"
	"github.com/masa-finance/resilient-engine/internal/engine"
)

// Registry maps tool names to their ordered handler chains and hands
// executions to the engine. Chain order encodes preference: the primary
// strategy first, fallbacks after.
type Registry struct {
	engine *engine.Engine
	chains map[string][]engine.Handler
}

func NewRegistry(e *engine.Engine, ec config.EngineConfiguration) *Registry {
	r := &Registry{
		engine: e,
		chains: map[string][]engine.Handler{},
	}

	r.Register(FetchToolType, NewFetchTool(ec).Handlers())
	r.Register(SearchToolType, NewSearchTool(ec).Handlers())

	return r
}

// Register installs a handler chain for a tool, replacing any existing one.
func (r *Registry) Register(tool string, handlers []engine.Handler) {
	r.chains[tool] = handlers
	names := make([]string, 0, len(handlers))
	for _, h := range handlers {
		names = append(names, h.Name)
	}
	logrus.Infof("Registered tool %s with handler chain %v", tool, names)
}

// Execute runs the named tool through the engine. An unknown tool is the one
// request error the registry surfaces as an error rather than an envelope:
// there is no chain to fall back through.
func (r *Registry) Execute(tool string, args types.Arguments) (types.ExecutionResult, error) {
	handlers, ok := r.chains[tool]
	if !ok {
		return types.ExecutionResult{}, fmt.Errorf("unknown tool: %s", tool)
	}
	return r.engine.ExecuteWithResilience(tool, handlers, args), nil
}

// Reset clears the health record of one handler of a registered tool.
func (r *Registry) Reset(tool, handler string) error {
	handlers, ok := r.chains[tool]
	if !ok {
		return fmt.Errorf("unknown tool: %s", tool)
	}
	known := false
	for _, h := range handlers {
		if h.Name == handler {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown handler %q for tool %s", handler, tool)
	}
	return r.engine.ResetHandler(tool, handler)
}

// Tools returns the registered tool names, sorted for stable output.
func (r *Registry) Tools() []string {
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health returns the persisted health state for all handlers.
func (r *Registry) Health() types.HealthState {
	return r.engine.HealthSnapshot()
}
