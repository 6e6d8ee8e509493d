// Package tool provides the built-in tool set and the registry the engine
// dispatches through.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/workspace"
	"github.com/tandemcode/tandem/pkg/types"
)

// Tool is one executable capability. Execute returns the text fed back to
// the model; errors become failed results at the registry boundary.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the active tool set. It satisfies both the dispatcher's
// runner interface and the extractor's catalog interface.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   zerolog.Logger
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
		log:   logging.For("tool"),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Default builds the standard tool set rooted at workDir.
func Default(workDir string, locks *workspace.Locks) *Registry {
	if locks == nil {
		locks = workspace.NewLocks()
	}
	return NewRegistry(
		NewReadTool(workDir),
		NewWriteTool(workDir, locks),
		NewEditTool(workDir, locks),
		NewBashTool(workDir),
		NewGlobTool(workDir),
		NewGrepTool(workDir),
		NewListTool(workDir),
		NewFetchTool(),
	)
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ToolNames returns the registered tool names, sorted.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one tool call. Unknown tools and tool errors come back as
// failed results rather than Go errors.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) types.ResultMap {
	t, ok := r.Get(name)
	if !ok {
		return types.ErrResult(fmt.Sprintf("unknown tool: %s", name))
	}

	output, err := t.Execute(ctx, args)
	if err != nil {
		r.log.Debug().Str("tool", name).Err(err).Msg("tool failed")
		return types.ErrResult(err.Error())
	}
	return types.OkResult(map[string]any{"output": output})
}

// decodeArgs maps loosely-typed extracted arguments onto a typed input
// struct via a JSON round trip.
func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
