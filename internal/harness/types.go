package harness

// TraceEvent is one journaled invocation or completion, in plain Go values
// (string, int64, bool, []any, map[string]any) so scenarios can match it
// against decoded YAML.
type TraceEvent struct {
	Type       string `json:"type"` // "invocation" or "completion"
	Action     string `json:"action"`
	Args       any    `json:"args,omitempty"`
	OutputCase string `json:"output_case,omitempty"`
	Result     any    `json:"result,omitempty"`
	Seq        int64  `json:"seq"`
}

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause, the replay check, and every
	// assertion held.
	Pass bool `json:"pass"`

	// SessionID is the fixed session token the scenario ran under.
	SessionID string `json:"session_id"`

	// Trace contains all invocations and completions in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final state tables, one row slice per table.
	State map[string][]map[string]any `json:"state,omitempty"`

	// StateHash fingerprints the final assignment and metadata.
	StateHash string `json:"state_hash"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
