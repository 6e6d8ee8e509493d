package tool

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globMaxResults = 100

const globDescription = `Finds files matching a glob pattern.

Usage:
- Supports ** for recursive matching (e.g. "**/*.go", "src/**/*.ts")
- Results are relative to the working directory`

// GlobTool implements file pattern matching.
type GlobTool struct {
	workDir string
}

type globInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// NewGlobTool creates a new glob tool.
func NewGlobTool(workDir string) *GlobTool {
	return &GlobTool{workDir: workDir}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return globDescription }

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params globInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}
	if params.Pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}

	root := t.workDir
	if params.Path != "" {
		root = resolvePath(t.workDir, params.Path)
	}
	if root == "" {
		root = "."
	}

	matches, err := doublestar.Glob(os.DirFS(root), params.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	// Hidden directories and dependency trees are noise.
	filtered := matches[:0]
	for _, m := range matches {
		if isIgnoredPath(m) {
			continue
		}
		filtered = append(filtered, m)
	}
	sort.Strings(filtered)

	if len(filtered) == 0 {
		return "No files matched pattern: " + params.Pattern, nil
	}

	truncated := false
	if len(filtered) > globMaxResults {
		filtered = filtered[:globMaxResults]
		truncated = true
	}

	out := strings.Join(filtered, "\n")
	if truncated {
		out += fmt.Sprintf("\n... (showing first %d matches)", globMaxResults)
	}
	return out, nil
}

func isIgnoredPath(path string) bool {
	for _, part := range strings.Split(path, "/") {
		switch part {
		case ".git", "node_modules", "vendor", "__pycache__":
			return true
		}
	}
	return false
}
