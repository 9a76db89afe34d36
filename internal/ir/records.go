package ir

// Session is the journal header of one operator session: the initial
// assignment and the declared metadata fields every command replays against.
type Session struct {
	ID         string      `json:"id"`
	Assignment []ClusterID `json:"assignment"`
	Fields     []FieldSpec `json:"fields"`
	Propagate  bool        `json:"propagate"`
}

// ActionRef names an engine command, e.g. "cluster.merge" or "meta.set".
type ActionRef string

// Command names understood by the session engine.
const (
	ActionMerge    ActionRef = "cluster.merge"
	ActionSplit    ActionRef = "cluster.split"
	ActionAssign   ActionRef = "cluster.assign"
	ActionUndo     ActionRef = "cluster.undo"
	ActionRedo     ActionRef = "cluster.redo"
	ActionAddField ActionRef = "meta.add_field"
	ActionSet      ActionRef = "meta.set"
	ActionMetaUndo ActionRef = "meta.undo"
	ActionMetaRedo ActionRef = "meta.redo"
	ActionImport   ActionRef = "meta.import"
)

// OutputSuccess is the output case of a command that changed state.
const OutputSuccess = "Success"

// Invocation represents one operator command.
type Invocation struct {
	ID            string    `json:"id"` // Content-addressed hash
	SessionID     string    `json:"session_id"`
	Action        ActionRef `json:"action"`
	Args          IRObject  `json:"args"`
	Seq           int64     `json:"seq"` // Logical clock
	EngineVersion string    `json:"engine_version"`
	IRVersion     string    `json:"ir_version"`
}

// Completion represents the outcome of one command.
//
// OutputCase is OutputSuccess or the ErrorCode of the rejection. StateHash
// fingerprints the assignment and metadata after the command so replay can
// verify determinism step by step.
type Completion struct {
	ID           string   `json:"id"` // Content-addressed hash
	InvocationID string   `json:"invocation_id"`
	OutputCase   string   `json:"output_case"`
	Result       IRObject `json:"result"`
	Seq          int64    `json:"seq"` // Logical clock
	StateHash    string   `json:"state_hash"`
}
