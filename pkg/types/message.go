// Package types defines the shared data model for the tandem engine.
package types

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation history. History is append-only,
// except compaction, which replaces a middle slice with summaries.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolInvocation is a structured tool call recovered from model text.
// Start and End delimit the source span [Start, End) in the original text.
// Invocations are ephemeral: discarded once executed.
type ToolInvocation struct {
	Tool  string         `json:"tool"`
	Args  map[string]any `json:"parameters"`
	Start int            `json:"-"`
	End   int            `json:"-"`
}

// ActionRecord is one entry in the self-corrector's append-only action log.
type ActionRecord struct {
	Iteration int            `json:"iteration"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	ExecTime  float64        `json:"execTimeSec,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewID returns a fresh ULID string. Used for call and request identifiers.
func NewID() string {
	return ulid.Make().String()
}

// PathArg extracts the target file path from tool arguments, trying the
// argument names used across the built-in tool schemas.
func PathArg(args map[string]any) string {
	for _, key := range []string{"path", "file", "filePath"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
