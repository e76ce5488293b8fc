package types

import "time"

// HandlerHealth is the persisted failure record for one (tool, handler) pair.
// The zero value is the healthy state; a record is only written once a
// handler has failed at least once.
type HandlerHealth struct {
	FailureCount  int       `json:"failure_count"`
	Degraded      bool      `json:"degraded"`
	LastError     string    `json:"last_error,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitzero"`
}

// HealthState is the full persisted mapping from handler key to its record.
// A missing key means the handler has never failed.
type HealthState map[string]HandlerHealth

// Get returns the stored record for key, or the default healthy record.
func (s HealthState) Get(key string) HandlerHealth {
	return s[key]
}

// HandlerKey builds the composite lookup key for a handler within a tool.
// The same string is used in the persisted state file and in alert payloads.
func HandlerKey(tool, handler string) string {
	return tool + ":" + handler
}
