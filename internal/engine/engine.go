package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/resilient-engine/api/types"
	"github.com/masa-finance/resilient-engine/internal/alert"
	"github.com/masa-finance/resilient-engine/internal/engine/stats"
)

// Engine executes a tool's ordered handler chain with automatic fallback,
// tracks per-handler failure history through the HealthStore, and fires a
// one-shot alert when a handler crosses the degradation threshold.
type Engine struct {
	store     *HealthStore
	notifier  alert.Notifier
	stats     *stats.Collector
	threshold int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store *HealthStore, notifier alert.Notifier, statsCollector *stats.Collector, threshold int) *Engine {
	if threshold <= 0 {
		logrus.Infof("Invalid failure threshold (%d), defaulting to 3.", threshold)
		threshold = 3
	}
	return &Engine{
		store:     store,
		notifier:  notifier,
		stats:     statsCollector,
		threshold: threshold,
		locks:     map[string]*sync.Mutex{},
	}
}

// toolLock serializes executions for the same tool within this process, so
// load/mutate/save cycles for one chain never interleave. Different tools
// may execute concurrently.
func (e *Engine) toolLock(tool string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[tool]
	if !ok {
		l = &sync.Mutex{}
		e.locks[tool] = l
	}
	return l
}

// ExecuteWithResilience runs the handlers in preference order until one
// succeeds. It never returns an error: expected failure modes are rendered
// into the envelope's Output with the [DISABLED] / [ERROR] markers.
//
// Degraded handlers are skipped only while a later handler remains in the
// chain; the final handler is always attempted, even when degraded, so a
// chain can self-heal through a spontaneous success. When every handler is
// degraded the call is rejected up front without touching any counter.
func (e *Engine) ExecuteWithResilience(tool string, handlers []Handler, args types.Arguments) types.ExecutionResult {
	if len(handlers) == 0 {
		return types.ExecutionResult{
			Tool:   tool,
			Output: fmt.Sprintf("%s no handlers registered for tool %q", types.ErrorMarker, tool),
		}
	}

	l := e.toolLock(tool)
	l.Lock()
	defer l.Unlock()

	state := e.store.Load()

	// Snapshot the degraded flags once. All skip decisions for this
	// execution use this consistent view, even though mutations are written
	// back as they happen.
	degraded := make([]bool, len(handlers))
	allDegraded := true
	for i, h := range handlers {
		degraded[i] = state.Get(types.HandlerKey(tool, h.Name)).Degraded
		if !degraded[i] {
			allDegraded = false
		}
	}

	if allDegraded {
		logrus.Warnf("All %d handlers for tool %s are degraded, refusing execution", len(handlers), tool)
		e.stats.Add(tool, stats.ExecutionsDisabled, 1)
		return types.ExecutionResult{
			Tool: tool,
			Output: fmt.Sprintf("%s all handlers for tool %q are degraded; a manual reset is required to re-enable them",
				types.DisabledMarker, tool),
		}
	}

	var lastErr error
	for i, h := range handlers {
		key := types.HandlerKey(tool, h.Name)

		if degraded[i] && i < len(handlers)-1 {
			logrus.Debugf("Skipping degraded handler %s, falling back", key)
			e.stats.Add(tool, stats.HandlerSkips, 1)
			continue
		}

		output, err := h.Run(args)
		if err == nil {
			// A single success fully rehabilitates the handler.
			state[key] = types.HandlerHealth{}
			e.persist(state)
			e.stats.Add(tool, stats.HandlerSuccesses, 1)
			return types.ExecutionResult{Tool: tool, Handler: h.Name, Output: output}
		}

		lastErr = err
		logrus.Warnf("Handler %s failed: %v", key, err)
		e.stats.Add(tool, stats.HandlerFailures, 1)

		record := state.Get(key)
		record.FailureCount++
		record.LastError = err.Error()
		record.LastFailureAt = time.Now().UTC()
		if record.FailureCount >= e.threshold && !record.Degraded {
			record.Degraded = true
			logrus.Errorf("Handler %s degraded after %d consecutive failures", key, record.FailureCount)
			e.stats.Add(tool, stats.HandlerDegradations, 1)
			e.dispatchAlert(tool, key, err.Error(), record.FailureCount)
		}
		state[key] = record
		e.persist(state)
	}

	e.stats.Add(tool, stats.ExecutionsFailed, 1)
	return types.ExecutionResult{
		Tool:   tool,
		Output: fmt.Sprintf("%s %s", types.ErrorMarker, lastErr.Error()),
	}
}

// ResetHandler restores a handler to the default healthy state. Resetting a
// handler that is already healthy is a no-op in effect.
func (e *Engine) ResetHandler(tool, handler string) error {
	l := e.toolLock(tool)
	l.Lock()
	defer l.Unlock()

	key := types.HandlerKey(tool, handler)
	state := e.store.Load()
	if _, ok := state[key]; ok {
		delete(state, key)
		logrus.Infof("Reset health record for handler %s", key)
	}
	if err := e.store.Save(state); err != nil {
		return fmt.Errorf("error persisting reset for %s: %w", key, err)
	}
	return nil
}

// HealthSnapshot returns the currently persisted health state.
func (e *Engine) HealthSnapshot() types.HealthState {
	return e.store.Load()
}

// persist writes the state back best-effort. A failed write is logged and
// otherwise ignored: the fallback decisions for this execution already used
// the in-memory mutation and must not change based on storage trouble.
func (e *Engine) persist(state types.HealthState) {
	if err := e.store.Save(state); err != nil {
		logrus.Errorf("Failed to persist handler health state: %v", err)
	}
}

// dispatchAlert fires the degradation alert without blocking the execution
// path. The notifier contains its own error handling.
func (e *Engine) dispatchAlert(tool, key, errMsg string, failureCount int) {
	e.stats.Add(tool, stats.AlertsSent, 1)
	go e.notifier.Notify(key, errMsg, failureCount)
}
