// Package parallel batches independent tool calls for concurrent execution.
//
// Reads commute, so read-only tools batch freely. Writes to the same path
// must serialize to avoid lost updates, so the first call naming a path
// claims it for the batch being assembled and every later call naming that
// path runs sequentially. Tools with side effects beyond a single path
// (shell, subprocesses) always run sequentially. The batch cap bounds
// fan-out.
package parallel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

// Config holds classification rules.
type Config struct {
	// MaxBatch caps the size of one parallel group.
	MaxBatch int `json:"maxBatch,omitempty" yaml:"maxBatch,omitempty"`
	// ReadTools are tool names with no side effects.
	ReadTools []string `json:"readTools,omitempty" yaml:"readTools,omitempty"`
	// WriteTools are tool names whose side effects are confined to the
	// path named in their arguments.
	WriteTools []string `json:"writeTools,omitempty" yaml:"writeTools,omitempty"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatch:   5,
		ReadTools:  []string{"read", "list", "grep", "glob", "fetch"},
		WriteTools: []string{"write", "edit", "patch"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBatch <= 0 {
		c.MaxBatch = d.MaxBatch
	}
	if len(c.ReadTools) == 0 {
		c.ReadTools = d.ReadTools
	}
	if len(c.WriteTools) == 0 {
		c.WriteTools = d.WriteTools
	}
	return c
}

// ExecuteFunc runs one tool invocation. Failures come back as ResultMap
// values, never as panics.
type ExecuteFunc func(ctx context.Context, inv types.ToolInvocation) types.ResultMap

// Executor classifies and runs a turn's tool calls.
type Executor struct {
	cfg    Config
	reads  map[string]bool
	writes map[string]bool
	log    zerolog.Logger
}

// New creates an executor.
func New(cfg Config) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		cfg:    cfg,
		reads:  make(map[string]bool, len(cfg.ReadTools)),
		writes: make(map[string]bool, len(cfg.WriteTools)),
		log:    logging.For("parallel"),
	}
	for _, t := range cfg.ReadTools {
		e.reads[t] = true
	}
	for _, t := range cfg.WriteTools {
		e.writes[t] = true
	}
	return e
}

// Classify partitions calls, in input order, into parallel groups and a
// sequential remainder. First claim to a path within the batch being
// assembled wins; any later call naming a claimed path is sequential.
// Claimed paths reset when a batch closes at the cap.
func (e *Executor) Classify(calls []types.ToolInvocation) types.ExecutionBatch {
	var batch types.ExecutionBatch
	var current []types.ToolInvocation
	claimed := make(map[string]bool)

	closeBatch := func() {
		if len(current) > 0 {
			batch.ParallelGroups = append(batch.ParallelGroups, current)
			current = nil
			claimed = make(map[string]bool)
		}
	}

	for _, call := range calls {
		isRead := e.reads[call.Tool]
		isWrite := e.writes[call.Tool]

		if !isRead && !isWrite {
			batch.Sequential = append(batch.Sequential, call)
			continue
		}

		path := types.PathArg(call.Args)
		if path != "" && claimed[path] {
			batch.Sequential = append(batch.Sequential, call)
			continue
		}
		if isWrite && path == "" {
			// A write with no identifiable target cannot be proven
			// independent of anything.
			batch.Sequential = append(batch.Sequential, call)
			continue
		}

		current = append(current, call)
		if path != "" {
			claimed[path] = true
		}
		if len(current) >= e.cfg.MaxBatch {
			closeBatch()
		}
	}
	closeBatch()

	return batch
}

// ExecuteAll classifies calls and runs them: each parallel group as a
// fan-out/fan-in awaited in full before the next, then the sequential
// remainder one at a time. Results come back in dispatch order regardless
// of completion order: parallel-group results in group order, each group
// internally in call order, then sequential results.
func (e *Executor) ExecuteAll(ctx context.Context, calls []types.ToolInvocation, run ExecuteFunc) []types.ResultMap {
	return e.ExecuteBatch(ctx, e.Classify(calls), run)
}

// ExecuteBatch runs an already-classified batch. Results align one to one
// with Flatten(batch).
func (e *Executor) ExecuteBatch(ctx context.Context, batch types.ExecutionBatch, run ExecuteFunc) []types.ResultMap {
	var out []types.ResultMap
	for _, group := range batch.ParallelGroups {
		out = append(out, e.runGroup(ctx, group, run)...)
	}

	for _, call := range batch.Sequential {
		if err := ctx.Err(); err != nil {
			out = append(out, types.ErrResult("canceled: "+err.Error()))
			continue
		}
		out = append(out, run(ctx, call))
	}
	return out
}

// Flatten returns the batch's invocations in dispatch order.
func Flatten(batch types.ExecutionBatch) []types.ToolInvocation {
	var out []types.ToolInvocation
	for _, group := range batch.ParallelGroups {
		out = append(out, group...)
	}
	return append(out, batch.Sequential...)
}

// runGroup fans a group out and reassembles results in call order. A group
// already dispatched runs to completion even if the context is canceled
// mid-flight; cancellation is honored between groups.
func (e *Executor) runGroup(ctx context.Context, group []types.ToolInvocation, run ExecuteFunc) []types.ResultMap {
	results := make([]types.ResultMap, len(group))

	if err := ctx.Err(); err != nil {
		for i := range results {
			results[i] = types.ErrResult("canceled: " + err.Error())
		}
		return results
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	for i, call := range group {
		i, call := i, call
		g.Go(func() error {
			res := run(ctx, call)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil // partial failures must not cancel siblings
		})
	}
	_ = g.Wait()

	for i := range results {
		if results[i] == nil {
			results[i] = types.ErrResult("tool returned no result")
		}
	}
	return results
}
