package turn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tandemcode/tandem/internal/event"
	"github.com/tandemcode/tandem/internal/parallel"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/pkg/types"
)

// outcomePair ties an invocation to its result, in dispatch order.
type outcomePair struct {
	inv    types.ToolInvocation
	result types.ResultMap
}

type dispatchOutcome struct {
	pairs []outcomePair
	// permission is non-nil when the turn must pause for sign-off.
	permission *event.PermissionData
}

// dispatch classifies and executes a turn's invocations, records outcomes
// in the self-corrector, and publishes execution events. The first
// invocation requiring sign-off sets the permission descriptor; calls not
// yet started at that point are skipped, while the in-flight batch runs to
// completion.
func (l *Loop) dispatch(ctx context.Context, iteration int, invocations []types.ToolInvocation) dispatchOutcome {
	for _, inv := range invocations {
		l.bus.Publish(event.Event{Type: event.ToolCall, Data: event.ToolCallData{
			Tool: inv.Tool, Args: inv.Args,
		}})
	}

	batch := l.executor.Classify(invocations)
	ordered := parallel.Flatten(batch)

	var mu sync.Mutex
	var halted bool
	var perm *event.PermissionData

	run := func(ctx context.Context, inv types.ToolInvocation) types.ResultMap {
		mu.Lock()
		skip := halted
		mu.Unlock()
		if skip {
			// Never ran; marked so the recording loop below ignores it.
			return types.ResultMap{
				"success":            false,
				"permissionRequired": true,
				"error":              "skipped: turn awaiting permission",
			}
		}

		decision := l.gate.Evaluate(inv)
		switch decision.Action {
		case permission.ActionDeny:
			return types.ErrResult("permission denied by policy")
		case permission.ActionAsk:
			res := types.ResultMap{
				"success":            false,
				"permissionRequired": true,
				"error":              "awaiting permission",
			}
			if decision.Command != "" {
				res["command"] = decision.Command
			}
			mu.Lock()
			halted = true
			if perm == nil {
				perm = &event.PermissionData{
					ID:      types.NewID(),
					Tool:    inv.Tool,
					Args:    inv.Args,
					Command: decision.Command,
					Title:   decision.Title,
				}
			}
			mu.Unlock()
			return res
		}

		start := time.Now()
		res := l.safeExecute(ctx, inv)
		if _, ok := res["execTimeSec"]; !ok {
			res["execTimeSec"] = time.Since(start).Seconds()
		}

		// Tools may themselves flag for sign-off mid-batch.
		if res.PermissionRequired() {
			mu.Lock()
			halted = true
			if perm == nil {
				perm = &event.PermissionData{
					ID:      types.NewID(),
					Tool:    inv.Tool,
					Args:    inv.Args,
					Command: res.Command(),
					Title:   fmt.Sprintf("Allow %s?", inv.Tool),
				}
			}
			mu.Unlock()
		}
		return res
	}

	results := l.executor.ExecuteBatch(ctx, batch, run)

	out := dispatchOutcome{permission: perm}
	for i, inv := range ordered {
		if i >= len(results) {
			break
		}
		res := results[i]
		out.pairs = append(out.pairs, outcomePair{inv: inv, result: res})

		l.bus.Publish(event.Event{Type: event.ToolExecuted, Data: event.ToolExecutedData{
			Tool: inv.Tool, Result: res,
		}})

		// Calls that never ran carry nothing worth learning from.
		if res.PermissionRequired() {
			continue
		}

		execTime, _ := res["execTimeSec"].(float64)
		l.corrector.RecordAction(types.ActionRecord{
			Iteration: iteration,
			Tool:      inv.Tool,
			Args:      inv.Args,
			Success:   res.Success(),
			Error:     res.Error(),
			ExecTime:  execTime,
		})
		if !res.Success() && res.Error() != "" {
			l.corrector.LearnFromError(errorType(res.Error()), types.PathArg(inv.Args), res.Error())
		}
	}

	if perm != nil {
		l.bus.Publish(event.Event{Type: event.PermissionRequired, Data: *perm})
	}
	return out
}

// safeExecute shields the loop from a panicking tool implementation.
func (l *Loop) safeExecute(ctx context.Context, inv types.ToolInvocation) (res types.ResultMap) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("tool", inv.Tool).Interface("panic", r).Msg("tool panicked")
			res = types.ErrResult(fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	res = l.tools.Execute(ctx, inv.Tool, inv.Args)
	if res == nil {
		res = types.ErrResult("tool returned no result")
	}
	return res
}

func errorType(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "syntax"):
		return "syntax"
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no such file"):
		return "missing_target"
	case strings.Contains(lower, "permission"):
		return "permission"
	case strings.Contains(lower, "timeout"):
		return "timeout"
	default:
		return "execution"
	}
}

// foldOutcomes renders tool results, and any advisory finding, as the
// synthetic user message for the next generation.
func foldOutcomes(pairs []outcomePair, finding *types.LoopFinding) string {
	var sb strings.Builder
	sb.WriteString("Tool execution results:\n")

	for _, p := range pairs {
		target := types.PathArg(p.inv.Args)
		if target != "" {
			target = " " + target
		}
		if p.result.Success() {
			sb.WriteString(fmt.Sprintf("- %s%s: ok", p.inv.Tool, target))
			if output, ok := p.result["output"].(string); ok && output != "" {
				sb.WriteString("\n")
				sb.WriteString(indent(clipOutput(output, 500)))
			}
		} else {
			sb.WriteString(fmt.Sprintf("- %s%s: error: %s", p.inv.Tool, target, p.result.Error()))
		}
		sb.WriteString("\n")
	}

	if finding != nil {
		sb.WriteString("\n[guidance] ")
		sb.WriteString(finding.Suggestion)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func clipOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
