package tool

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

const listDescription = `Lists files and directories at a path.

Usage:
- Defaults to the working directory
- Directories are suffixed with /`

// ListTool implements directory listing.
type ListTool struct {
	workDir string
}

type listInput struct {
	Path string `json:"path,omitempty"`
}

// NewListTool creates a new list tool.
func NewListTool(workDir string) *ListTool {
	return &ListTool{workDir: workDir}
}

func (t *ListTool) Name() string        { return "ls" }
func (t *ListTool) Description() string { return listDescription }

func (t *ListTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params listInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}

	root := t.workDir
	if params.Path != "" {
		root = resolvePath(t.workDir, params.Path)
	}
	if root == "" {
		root = "."
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(names, "\n"), nil
}
