package tool

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const grepMaxMatches = 100

const grepDescription = `Searches file contents with a regular expression.

Usage:
- Pattern uses Go regexp syntax
- Optional include glob filters which files are searched (e.g. "*.go")
- Returns matching lines as path:line: text`

// GrepTool implements content search.
type GrepTool struct {
	workDir string
}

type grepInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// NewGrepTool creates a new grep tool.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params grepInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}
	if params.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	root := t.workDir
	if params.Path != "" {
		root = resolvePath(t.workDir, params.Path)
	}
	if root == "" {
		root = "."
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if len(matches) >= grepMaxMatches {
			return filepath.SkipAll
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			if isIgnoredPath(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if params.Include != "" {
			if ok, _ := doublestar.Match(params.Include, filepath.Base(path)); !ok {
				return nil
			}
		}
		if isBinaryFile(path) {
			return nil
		}

		t.scanFile(path, rel, re, &matches)
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return "", walkErr
	}

	if len(matches) == 0 {
		return "No matches found for pattern: " + params.Pattern, nil
	}

	out := strings.Join(matches, "\n")
	if len(matches) >= grepMaxMatches {
		out += fmt.Sprintf("\n... (showing first %d matches)", grepMaxMatches)
	}
	return out, nil
}

func (t *GrepTool) scanFile(path, rel string, re *regexp.Regexp, matches *[]string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if len(*matches) >= grepMaxMatches {
			return
		}
		line := scanner.Text()
		if re.MatchString(line) {
			if len(line) > 250 {
				line = line[:250] + "..."
			}
			*matches = append(*matches, fmt.Sprintf("%s:%d: %s", rel, lineNum, line))
		}
	}
}
