package corrector

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// remediations maps known failure-text fragments to canned advice.
var remediations = []struct {
	marker string
	advice string
}{
	{"no such file", "Verify the path exists before operating on it; list the parent directory first."},
	{"not found", "Verify the target exists; a listing or glob will confirm the exact name."},
	{"permission denied", "The target is not writable from this sandbox. Work on a copy or pick a different location."},
	{"timeout", "The operation is too slow as issued. Narrow its scope or split it into smaller steps."},
	{"connection refused", "The service is not reachable. Check that it is running before retrying."},
	{"already exists", "The target already exists. Read it and modify it instead of recreating it."},
	{"invalid syntax", "Re-read the latest file contents before editing; the edit was likely applied against stale text."},
}

// SuggestAlternative inspects recent failures and proposes a different
// approach. Returns advisory text suitable for inclusion in the next prompt.
func (s *SelfCorrector) SuggestAlternative() string {
	if len(s.history) < 3 {
		return "Not enough history to suggest an alternative approach yet."
	}

	// Failures from the last 10 actions, grouped by tool.
	start := len(s.history) - 10
	if start < 0 {
		start = 0
	}
	byTool := make(map[string][]string)
	for _, rec := range s.history[start:] {
		if !rec.Success && rec.Error != "" {
			byTool[rec.Tool] = append(byTool[rec.Tool], rec.Error)
		}
	}
	if len(byTool) == 0 {
		return "Recent actions are succeeding; no alternative needed."
	}

	worstTool := ""
	var worstErrs []string
	for tool, errs := range byTool {
		if len(errs) > len(worstErrs) || (len(errs) == len(worstErrs) && tool < worstTool) {
			worstTool, worstErrs = tool, errs
		}
	}

	rep := representativeError(worstErrs)
	lower := strings.ToLower(rep)
	for _, r := range remediations {
		if strings.Contains(lower, r.marker) {
			return fmt.Sprintf("The %s tool keeps failing (%q). %s", worstTool, clip(rep, 80), r.advice)
		}
	}

	return fmt.Sprintf("The %s tool failed %d times recently. Decompose the current step into smaller actions, or approach it with a different tool.", worstTool, len(worstErrs))
}

// representativeError picks the error that is most similar to the rest of
// the group, so near-identical messages collapse to one representative
// rather than whichever happened last.
func representativeError(errs []string) string {
	if len(errs) == 1 {
		return errs[0]
	}
	bestIdx := 0
	bestTotal := -1
	for i, a := range errs {
		total := 0
		for j, b := range errs {
			if i == j {
				continue
			}
			total += levenshtein.ComputeDistance(clip(a, 200), clip(b, 200))
		}
		if bestTotal < 0 || total < bestTotal {
			bestIdx, bestTotal = i, total
		}
	}
	return errs[bestIdx]
}

// LearnFromError records one error occurrence for frequency tracking. The
// composite key is (type, file, first 100 chars of the message).
func (s *SelfCorrector) LearnFromError(errType, file, message string) {
	key := errType + "|" + file + "|" + clip(message, 100)
	now := time.Now()

	p, ok := s.patterns[key]
	if !ok {
		p = &errorPattern{
			Type:      errType,
			File:      file,
			Sample:    message,
			FirstSeen: now,
		}
		s.patterns[key] = p
	}
	p.Count++
	p.LastSeen = now
}

// ErrorHistory returns tracked error patterns, most frequent first.
func (s *SelfCorrector) ErrorHistory() []ErrorPattern {
	out := make([]ErrorPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, ErrorPattern{
			Type:      p.Type,
			File:      p.File,
			Sample:    p.Sample,
			Count:     p.Count,
			FirstSeen: p.FirstSeen,
			LastSeen:  p.LastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Sample < out[j].Sample
	})
	return out
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
