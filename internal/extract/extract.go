// Package extract recovers structured tool invocations from raw model text.
//
// Models are prompted to emit calls as JSON objects of the form
// {"tool": "read", "parameters": {...}} inline in ordinary prose. Extraction
// is two-pass: the first pass matches the expected lexical shape, the second
// falls back to scanning for known tool names when the shape is off. Both
// passes share a brace scanner that understands JSON string and escape
// state, so braces inside string values never unbalance the walk.
package extract

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

// Catalog supplies the registered tool names used by the fallback pass.
type Catalog interface {
	ToolNames() []string
}

// Extractor finds tool invocations in model output.
type Extractor struct {
	catalog Catalog
	log     zerolog.Logger
}

// New creates an extractor backed by a tool catalog. A nil catalog disables
// the fallback pass.
func New(catalog Catalog) *Extractor {
	return &Extractor{
		catalog: catalog,
		log:     logging.For("extract"),
	}
}

// callPattern matches the opening of a tool-call object where "tool" is the
// first key, with arbitrary spacing.
var callPattern = regexp.MustCompile(`\{\s*"tool"\s*:`)

// Extract returns all well-formed tool invocations in text, ordered by start
// offset. No two returned invocations share a start offset; the first match
// at an offset wins. Malformed candidates are skipped and logged, never
// surfaced as errors.
func (e *Extractor) Extract(text string) []types.ToolInvocation {
	seen := make(map[int]bool)

	out := e.scanPattern(text, seen)
	if len(out) == 0 {
		out = e.scanKnownNames(text, seen)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// scanPattern is pass 1: every occurrence of the expected call shape.
func (e *Extractor) scanPattern(text string, seen map[int]bool) []types.ToolInvocation {
	var out []types.ToolInvocation
	for _, loc := range callPattern.FindAllStringIndex(text, -1) {
		if inv, ok := e.candidateAt(text, loc[0], seen); ok {
			out = append(out, inv)
		}
	}
	return out
}

// scanKnownNames is pass 2, run only when pass 1 found nothing: for each
// registered tool name, locate literal `"tool": "<name>"` occurrences and
// walk backward to the nearest opening brace. This recovers calls whose key
// order or spacing does not match the expected shape.
func (e *Extractor) scanKnownNames(text string, seen map[int]bool) []types.ToolInvocation {
	if e.catalog == nil {
		return nil
	}

	var out []types.ToolInvocation
	for _, name := range e.catalog.ToolNames() {
		needle := `"tool": "` + name + `"`
		offset := 0
		for {
			i := strings.Index(text[offset:], needle)
			if i < 0 {
				break
			}
			pos := offset + i
			offset = pos + len(needle)

			open := strings.LastIndexByte(text[:pos], '{')
			if open < 0 {
				continue
			}
			if inv, ok := e.candidateAt(text, open, seen); ok {
				out = append(out, inv)
			}
		}
	}
	return out
}

// candidateAt attempts to extract a single invocation whose object opens at
// start. Records the offset in seen on success so overlapping matches
// deduplicate to the first.
func (e *Extractor) candidateAt(text string, start int, seen map[int]bool) (types.ToolInvocation, bool) {
	if seen[start] {
		return types.ToolInvocation{}, false
	}

	end, ok := balancedObject(text, start)
	if !ok {
		// Opened but never closed: no match, never a partial one.
		return types.ToolInvocation{}, false
	}

	inv, err := parseCandidate(text[start:end])
	if err != nil {
		e.log.Debug().Int("offset", start).Err(err).Msg("skipping malformed tool call candidate")
		return types.ToolInvocation{}, false
	}

	inv.Start = start
	inv.End = end
	seen[start] = true
	return inv, true
}

// Strip removes all discovered invocation spans from text and trims the
// remainder. Spans are removed in reverse offset order so earlier offsets
// stay valid while later ones are cut.
func (e *Extractor) Strip(text string, invs []types.ToolInvocation) string {
	sorted := make([]types.ToolInvocation, len(invs))
	copy(sorted, invs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	for _, inv := range sorted {
		if inv.Start < 0 || inv.End > len(text) || inv.Start >= inv.End {
			continue
		}
		text = text[:inv.Start] + text[inv.End:]
	}
	return strings.TrimSpace(text)
}

// Scanner states for the brace walk.
const (
	stateNormal = iota
	stateInString
	stateEscaped
)

// balancedObject walks forward from the opening brace at start and returns
// the exclusive end offset of the matching close. The walk tracks string and
// escape state explicitly: a backslash consumes exactly the next character
// and never toggles quoting.
func balancedObject(text string, start int) (int, bool) {
	depth := 0
	state := stateNormal

	for i := start; i < len(text); i++ {
		c := text[i]
		switch state {
		case stateNormal:
			switch c {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return i + 1, true
				}
			case '"':
				state = stateInString
			}
		case stateInString:
			switch c {
			case '\\':
				state = stateEscaped
			case '"':
				state = stateNormal
			}
		case stateEscaped:
			state = stateInString
		}
	}
	return 0, false
}

// parseCandidate parses a balanced object and validates that both required
// fields are present: a string tool name and an object parameters mapping.
// "args" and "arguments" are accepted as aliases for "parameters".
func parseCandidate(raw string) (types.ToolInvocation, error) {
	var obj struct {
		Tool      *string         `json:"tool"`
		Params    json.RawMessage `json:"parameters"`
		Args      json.RawMessage `json:"args"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return types.ToolInvocation{}, err
	}
	if obj.Tool == nil || *obj.Tool == "" {
		return types.ToolInvocation{}, errMissingTool
	}

	params := obj.Params
	if len(params) == 0 {
		params = obj.Args
	}
	if len(params) == 0 {
		params = obj.Arguments
	}
	if len(params) == 0 {
		return types.ToolInvocation{}, errMissingParams
	}

	var args map[string]any
	if err := json.Unmarshal(params, &args); err != nil {
		return types.ToolInvocation{}, err
	}

	return types.ToolInvocation{Tool: *obj.Tool, Args: args}, nil
}

var (
	errMissingTool   = jsonFieldError("missing tool name")
	errMissingParams = jsonFieldError("missing parameters object")
)

type jsonFieldError string

func (e jsonFieldError) Error() string { return string(e) }
