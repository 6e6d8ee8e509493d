package event

import "github.com/tandemcode/tandem/pkg/types"

// Type identifies the kind of an event.
type Type string

const (
	TurnToken          Type = "turn.token"
	TurnThinking       Type = "turn.thinking"
	TurnThinkingDone   Type = "turn.thinking.done"
	ToolCall           Type = "tool.call"
	ToolExecuted       Type = "tool.executed"
	PermissionRequired Type = "permission.required"
	ContextCompacted   Type = "context.compacted"
	TurnError          Type = "turn.error"
	TurnDone           Type = "turn.done"
)

// Event is a single engine event.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// TokenData carries an increment of ordinary assistant content.
type TokenData struct {
	Token string `json:"token"`
}

// ThinkingData carries an increment of the model's reasoning sub-stream.
type ThinkingData struct {
	ThinkingChunk string `json:"thinkingChunk"`
}

// ThinkingDoneData closes the reasoning sub-stream for a turn.
type ThinkingDoneData struct {
	Summary     string `json:"summary"`
	FullContent string `json:"fullContent"`
}

// ToolCallData announces a tool invocation about to be dispatched.
type ToolCallData struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolExecutedData carries a tool outcome. Fields of the ResultMap pass
// through unchanged.
type ToolExecutedData struct {
	Tool   string          `json:"tool"`
	Result types.ResultMap `json:"result"`
}

// PermissionData describes an execution paused pending explicit approval.
type PermissionData struct {
	ID      string         `json:"id"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Command string         `json:"command,omitempty"`
	Title   string         `json:"title"`
}

// ContextData reports a compaction pass.
type ContextData struct {
	Info types.CompressionOutcome `json:"contextInfo"`
}

// ErrorData terminates a turn sequence with an error.
type ErrorData struct {
	Error string `json:"error"`
}

// DoneData is the completion sentinel for a turn sequence.
type DoneData struct {
	Iterations int    `json:"iterations"`
	Reason     string `json:"reason"`
}
