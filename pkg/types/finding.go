package types

// FindingKind classifies a loop finding.
type FindingKind string

const (
	FindingReadLoop       FindingKind = "read_loop"
	FindingSyntaxLoop     FindingKind = "syntax_loop"
	FindingToolRepetition FindingKind = "tool_repetition"
)

// Read-loop intervention levels, ordered by escalation.
const (
	ReadLevelWarning    = "warning"
	ReadLevelRestrict   = "restriction"
	ReadLevelForcedEdit = "forced_edit"
	ReadLevelReset      = "reset"
)

// LoopFinding is a signal that the agent is repeating unproductive actions.
// Computed on demand; never persisted.
type LoopFinding struct {
	Kind       FindingKind `json:"kind"`
	Level      string      `json:"level,omitempty"`
	Severity   int         `json:"severity"` // 1-10
	Evidence   []string    `json:"evidence"`
	Suggestion string      `json:"suggestion"`
	ShouldHalt bool        `json:"shouldHalt"`
}

// CompressionOutcome reports what a compaction pass did.
type CompressionOutcome struct {
	Compressed     bool    `json:"compressed"`
	TokensBefore   int     `json:"tokensBefore"`
	TokensAfter    int     `json:"tokensAfter"`
	MessagesBefore int     `json:"messagesBefore"`
	MessagesAfter  int     `json:"messagesAfter"`
	MessagesFolded int     `json:"messagesFolded"`
	Ratio          float64 `json:"ratio"`
}

// ExecutionBatch is the parallel executor's classification of a turn's tool
// calls. Derived once per turn and consumed immediately.
type ExecutionBatch struct {
	ParallelGroups [][]ToolInvocation `json:"parallelGroups"`
	Sequential     []ToolInvocation   `json:"sequential"`
}
