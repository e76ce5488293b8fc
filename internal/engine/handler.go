package engine

import "github.com/masa-finance/resilient-engine/api/types"

// HandlerFunc is one concrete implementation strategy for a tool. It receives
// the tool's arguments and returns a renderable text result, or an error with
// a human-readable message.
type HandlerFunc func(args types.Arguments) (string, error)

// Handler pairs an implementation strategy with its name. The name must be
// unique within a tool's chain and is stable across restarts, since it is
// part of the persisted health key.
type Handler struct {
	Name string
	Run  HandlerFunc
}
