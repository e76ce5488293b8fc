package types

import "encoding/json"

// Arguments is the free-form argument bag passed to a tool's handlers.
type Arguments map[string]interface{}

// Unmarshal decodes the arguments into a handler-specific struct.
func (a Arguments) Unmarshal(i interface{}) error {
	dat, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return json.Unmarshal(dat, i)
}

// ExecutionRequest is the body of POST /execute.
type ExecutionRequest struct {
	Tool      string    `json:"tool"`
	Arguments Arguments `json:"arguments"`
}

// ExecutionResult is the uniform envelope returned by the engine. It is
// always a well-formed response: expected failure modes are rendered into
// Output with the [DISABLED] / [ERROR] text markers instead of being raised.
type ExecutionResult struct {
	UUID    string `json:"uuid,omitempty"`
	Tool    string `json:"tool"`
	Handler string `json:"handler,omitempty"`
	Output  string `json:"output"`
}

const (
	// DisabledMarker prefixes the output when every handler of a tool is
	// degraded and the call was rejected without any attempt.
	DisabledMarker = "[DISABLED]"
	// ErrorMarker prefixes the output when every attempted handler failed.
	ErrorMarker = "[ERROR]"
)

// Disabled reports whether the result is the all-handlers-degraded rejection.
func (r ExecutionResult) Disabled() bool {
	return len(r.Output) >= len(DisabledMarker) && r.Output[:len(DisabledMarker)] == DisabledMarker
}

// Failed reports whether the result is the all-handlers-exhausted outcome.
func (r ExecutionResult) Failed() bool {
	return len(r.Output) >= len(ErrorMarker) && r.Output[:len(ErrorMarker)] == ErrorMarker
}

// Success reports whether a handler produced the output.
func (r ExecutionResult) Success() bool {
	return !r.Disabled() && !r.Failed()
}

// ResetRequest is the body of POST /reset.
type ResetRequest struct {
	Tool    string `json:"tool"`
	Handler string `json:"handler"`
}

// ErrorResponse is the generic error body returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
