// Package corrector watches the engine's own tool activity for repetitive,
// unproductive behavior and intervenes progressively: advisory findings
// first, hard halts when the agent is clearly stuck.
package corrector

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

// Config holds detection thresholds. Documented defaults are the contract.
type Config struct {
	// MaxHistory bounds the action log. On prune, all derived state is
	// rebuilt from the retained window.
	MaxHistory int `json:"maxHistory,omitempty" yaml:"maxHistory,omitempty"`
	// Window is the default sliding window for DetectLoops.
	Window int `json:"window,omitempty" yaml:"window,omitempty"`

	// Read-loop thresholds on a file's total read count. Each level is an
	// exclusive band bounded by the next threshold.
	ReadWarn      int `json:"readWarn,omitempty" yaml:"readWarn,omitempty"`
	ReadRestrict  int `json:"readRestrict,omitempty" yaml:"readRestrict,omitempty"`
	ReadForceEdit int `json:"readForceEdit,omitempty" yaml:"readForceEdit,omitempty"`
	ReadReset     int `json:"readReset,omitempty" yaml:"readReset,omitempty"`

	// Syntax-loop thresholds.
	SyntaxGlobalHalt int `json:"syntaxGlobalHalt,omitempty" yaml:"syntaxGlobalHalt,omitempty"`
	SyntaxFileHalt   int `json:"syntaxFileHalt,omitempty" yaml:"syntaxFileHalt,omitempty"`
	SyntaxFileWarn   int `json:"syntaxFileWarn,omitempty" yaml:"syntaxFileWarn,omitempty"`

	// Tool-repetition: minimum consecutive same-tool run length and the
	// success rate below which it is flagged.
	RepetitionRun         int     `json:"repetitionRun,omitempty" yaml:"repetitionRun,omitempty"`
	RepetitionSuccessRate float64 `json:"repetitionSuccessRate,omitempty" yaml:"repetitionSuccessRate,omitempty"`

	// ReadTools and EditTools classify tool names for the read-loop check.
	ReadTools []string `json:"readTools,omitempty" yaml:"readTools,omitempty"`
	EditTools []string `json:"editTools,omitempty" yaml:"editTools,omitempty"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxHistory:            50,
		Window:                10,
		ReadWarn:              2,
		ReadRestrict:          3,
		ReadForceEdit:         5,
		ReadReset:             8,
		SyntaxGlobalHalt:      8,
		SyntaxFileHalt:        3,
		SyntaxFileWarn:        2,
		RepetitionRun:         4,
		RepetitionSuccessRate: 0.5,
		ReadTools:             []string{"read", "list", "grep", "glob"},
		EditTools:             []string{"edit", "write", "patch"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.ReadWarn <= 0 {
		c.ReadWarn = d.ReadWarn
	}
	if c.ReadRestrict <= 0 {
		c.ReadRestrict = d.ReadRestrict
	}
	if c.ReadForceEdit <= 0 {
		c.ReadForceEdit = d.ReadForceEdit
	}
	if c.ReadReset <= 0 {
		c.ReadReset = d.ReadReset
	}
	if c.SyntaxGlobalHalt <= 0 {
		c.SyntaxGlobalHalt = d.SyntaxGlobalHalt
	}
	if c.SyntaxFileHalt <= 0 {
		c.SyntaxFileHalt = d.SyntaxFileHalt
	}
	if c.SyntaxFileWarn <= 0 {
		c.SyntaxFileWarn = d.SyntaxFileWarn
	}
	if c.RepetitionRun <= 0 {
		c.RepetitionRun = d.RepetitionRun
	}
	if c.RepetitionSuccessRate <= 0 {
		c.RepetitionSuccessRate = d.RepetitionSuccessRate
	}
	if len(c.ReadTools) == 0 {
		c.ReadTools = d.ReadTools
	}
	if len(c.EditTools) == 0 {
		c.EditTools = d.EditTools
	}
	return c
}

// errorPattern tracks one recurring error by composite key.
type errorPattern struct {
	Type      string
	File      string
	Sample    string
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// ErrorPattern is the exported view of a tracked error.
type ErrorPattern struct {
	Type      string    `json:"type"`
	File      string    `json:"file,omitempty"`
	Sample    string    `json:"sample"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// SelfCorrector is mutated only by its owning turn loop; no locking.
type SelfCorrector struct {
	cfg Config
	log zerolog.Logger

	history []types.ActionRecord

	// Derived from history; fully rebuilt on prune, never decremented.
	readCounts   map[string]int
	editCounts   map[string]int
	syntaxErrors map[string][]string
	sequence     []string

	patterns map[string]*errorPattern
}

// New creates a self-corrector.
func New(cfg Config) *SelfCorrector {
	s := &SelfCorrector{
		cfg: cfg.withDefaults(),
		log: logging.For("corrector"),
	}
	s.Reset()
	return s
}

// Reset clears all state. Called once per top-level task, not per turn.
func (s *SelfCorrector) Reset() {
	s.history = nil
	s.readCounts = make(map[string]int)
	s.editCounts = make(map[string]int)
	s.syntaxErrors = make(map[string][]string)
	s.sequence = nil
	s.patterns = make(map[string]*errorPattern)
}

// RecordAction appends one tool outcome to the log and updates derived
// state. When the log exceeds MaxHistory the oldest entries are pruned and
// every derived map is rebuilt from the retained window, so no counter can
// go stale.
func (s *SelfCorrector) RecordAction(rec types.ActionRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.history = append(s.history, rec)

	if len(s.history) > s.cfg.MaxHistory {
		s.history = s.history[len(s.history)-s.cfg.MaxHistory:]
		s.rebuildDerived()
		return
	}
	s.applyDerived(rec)
}

// History returns the retained action log.
func (s *SelfCorrector) History() []types.ActionRecord {
	return s.history
}

func (s *SelfCorrector) rebuildDerived() {
	s.readCounts = make(map[string]int)
	s.editCounts = make(map[string]int)
	s.syntaxErrors = make(map[string][]string)
	s.sequence = nil
	for _, rec := range s.history {
		s.applyDerived(rec)
	}
}

func (s *SelfCorrector) applyDerived(rec types.ActionRecord) {
	s.sequence = append(s.sequence, rec.Tool)

	file := types.PathArg(rec.Args)
	if file != "" {
		if containsTool(s.cfg.ReadTools, rec.Tool) {
			s.readCounts[file]++
		}
		if containsTool(s.cfg.EditTools, rec.Tool) {
			s.editCounts[file]++
		}
	}

	if !rec.Success && isSyntaxError(rec.Error) {
		key := file
		if key == "" {
			key = "<unknown>"
		}
		s.syntaxErrors[key] = append(s.syntaxErrors[key], rec.Error)
	}
}

func containsTool(set []string, tool string) bool {
	for _, t := range set {
		if strings.EqualFold(t, tool) {
			return true
		}
	}
	return false
}

// syntaxMarkers are error substrings that flag a failure as a syntax error.
var syntaxMarkers = []string{
	"syntax error",
	"syntaxerror",
	"parse error",
	"indentationerror",
	"unexpected token",
	"invalid syntax",
}

func isSyntaxError(errText string) bool {
	lower := strings.ToLower(errText)
	for _, m := range syntaxMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// DetectLoops inspects recent activity and returns the first finding, in
// fixed priority order: read loop, syntax loop, tool repetition. Runs only
// once at least three actions are recorded. window <= 0 uses the default.
func (s *SelfCorrector) DetectLoops(window int) *types.LoopFinding {
	if len(s.history) < 3 {
		return nil
	}
	if window <= 0 {
		window = s.cfg.Window
	}

	if f := s.detectReadLoop(window); f != nil {
		return f
	}
	if f := s.detectSyntaxLoop(); f != nil {
		return f
	}
	return s.detectToolRepetition(window)
}

// detectReadLoop escalates on a single file's total read count. Bands are
// exclusive: warning [ReadWarn, ReadRestrict), restriction [ReadRestrict,
// ReadForceEdit), forced edit [ReadForceEdit, ReadReset), reset [ReadReset, ∞).
func (s *SelfCorrector) detectReadLoop(window int) *types.LoopFinding {
	file, count := maxEntry(s.readCounts)
	if file == "" {
		return nil
	}

	evidence := []string{fmt.Sprintf("%s read %d times without progress", file, count)}

	switch {
	case count >= s.cfg.ReadReset:
		return &types.LoopFinding{
			Kind:       types.FindingReadLoop,
			Level:      types.ReadLevelReset,
			Severity:   10,
			Evidence:   evidence,
			Suggestion: fmt.Sprintf("Reading %s again will not help. Reset the task and start over with a different approach.", file),
			ShouldHalt: true,
		}
	case count >= s.cfg.ReadForceEdit:
		return &types.LoopFinding{
			Kind:       types.FindingReadLoop,
			Level:      types.ReadLevelForcedEdit,
			Severity:   9,
			Evidence:   evidence,
			Suggestion: fmt.Sprintf("You have read %s %d times. The only acceptable next action on this file is an edit.", file, count),
		}
	case count >= s.cfg.ReadRestrict:
		return &types.LoopFinding{
			Kind:       types.FindingReadLoop,
			Level:      types.ReadLevelRestrict,
			Severity:   8,
			Evidence:   evidence,
			Suggestion: fmt.Sprintf("Further reads of %s should be refused. Act on what you already know.", file),
		}
	case count >= s.cfg.ReadWarn:
		// Warning only fires when recent activity shows almost no edits.
		if s.recentEdits(window) >= 2 {
			return nil
		}
		return &types.LoopFinding{
			Kind:       types.FindingReadLoop,
			Level:      types.ReadLevelWarning,
			Severity:   7,
			Evidence:   evidence,
			Suggestion: fmt.Sprintf("You keep re-reading %s. Make an edit or move on.", file),
		}
	}
	return nil
}

// recentEdits counts edit-tool actions in the last window actions.
func (s *SelfCorrector) recentEdits(window int) int {
	start := len(s.history) - window
	if start < 0 {
		start = 0
	}
	n := 0
	for _, rec := range s.history[start:] {
		if containsTool(s.cfg.EditTools, rec.Tool) {
			n++
		}
	}
	return n
}

func (s *SelfCorrector) detectSyntaxLoop() *types.LoopFinding {
	total := 0
	for _, errs := range s.syntaxErrors {
		total += len(errs)
	}
	worstFile := ""
	worstCount := 0
	for file, errs := range s.syntaxErrors {
		if len(errs) > worstCount {
			worstFile, worstCount = file, len(errs)
		}
	}

	switch {
	case total >= s.cfg.SyntaxGlobalHalt:
		return &types.LoopFinding{
			Kind:       types.FindingSyntaxLoop,
			Severity:   10,
			Evidence:   []string{fmt.Sprintf("%d syntax failures across the task", total)},
			Suggestion: "Repeated syntax failures everywhere. Abandon this task; the approach is not working.",
			ShouldHalt: true,
		}
	case worstCount >= s.cfg.SyntaxFileHalt:
		return &types.LoopFinding{
			Kind:       types.FindingSyntaxLoop,
			Severity:   9,
			Evidence:   append([]string{fmt.Sprintf("%s failed %d syntax checks", worstFile, worstCount)}, lastN(s.syntaxErrors[worstFile], 3)...),
			Suggestion: fmt.Sprintf("Incremental fixes to %s keep breaking. Rebuild the file from scratch.", worstFile),
			ShouldHalt: true,
		}
	case worstCount >= s.cfg.SyntaxFileWarn:
		return &types.LoopFinding{
			Kind:       types.FindingSyntaxLoop,
			Severity:   8,
			Evidence:   []string{fmt.Sprintf("%s failed %d syntax checks", worstFile, worstCount)},
			Suggestion: fmt.Sprintf("Consider rolling %s back to the last good checkpoint before editing again.", worstFile),
		}
	}
	return nil
}

// detectToolRepetition finds maximal consecutive same-tool runs within the
// window and flags the longest run at or over the threshold whose actions
// mostly failed.
func (s *SelfCorrector) detectToolRepetition(window int) *types.LoopFinding {
	start := len(s.history) - window
	if start < 0 {
		start = 0
	}
	recent := s.history[start:]
	if len(recent) == 0 {
		return nil
	}

	bestStart, bestLen := -1, 0
	runStart := 0
	for i := 1; i <= len(recent); i++ {
		if i == len(recent) || recent[i].Tool != recent[runStart].Tool {
			if runLen := i - runStart; runLen >= s.cfg.RepetitionRun && runLen > bestLen {
				bestStart, bestLen = runStart, runLen
			}
			runStart = i
		}
	}
	if bestStart < 0 {
		return nil
	}

	run := recent[bestStart : bestStart+bestLen]
	succeeded := 0
	for _, rec := range run {
		if rec.Success {
			succeeded++
		}
	}
	rate := float64(succeeded) / float64(len(run))
	if rate >= s.cfg.RepetitionSuccessRate {
		return nil
	}

	tool := run[0].Tool
	return &types.LoopFinding{
		Kind:     types.FindingToolRepetition,
		Severity: 7,
		Evidence: []string{
			fmt.Sprintf("%s called %d times in a row, %.0f%% success", tool, len(run), rate*100),
		},
		Suggestion: fmt.Sprintf("Repeated %s calls are mostly failing. Try a different tool, or break the step into smaller pieces.", tool),
	}
}

func maxEntry(m map[string]int) (string, int) {
	bestKey := ""
	bestVal := 0
	for k, v := range m {
		if v > bestVal || (v == bestVal && (bestKey == "" || k < bestKey)) {
			bestKey, bestVal = k, v
		}
	}
	return bestKey, bestVal
}

func lastN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
