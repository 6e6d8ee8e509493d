package tool

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// changeStats diffs two file versions line-wise and returns the added and
// deleted line counts for tool result messages.
func changeStats(before, after string) (added, deleted int) {
	if before == after {
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted += countLines(d.Text)
		}
	}
	return added, deleted
}

// changeSummary renders counts as a "+N -M" suffix, empty when nothing
// changed.
func changeSummary(before, after string) string {
	added, deleted := changeStats(before, after)
	if added == 0 && deleted == 0 {
		return ""
	}
	return fmt.Sprintf(" (+%d -%d)", added, deleted)
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
