package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tandemcode/tandem/internal/workspace"
)

const writeDescription = `Writes content to a file, creating it if needed.

Usage:
- Parent directories are created automatically
- Overwrites existing files completely`

// WriteTool implements file creation and overwriting.
type WriteTool struct {
	workDir string
	locks   *workspace.Locks
}

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewWriteTool creates a new write tool.
func NewWriteTool(workDir string, locks *workspace.Locks) *WriteTool {
	return &WriteTool{workDir: workDir, locks: locks}
}

func (t *WriteTool) Name() string        { return "write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params writeInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}
	if params.Path == "" {
		params.Path = pathFromArgs(args)
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}

	path := resolvePath(t.workDir, params.Path)

	release, err := t.locks.TryAcquire(path, "write")
	if err != nil {
		return "", fmt.Errorf("%s: %w", params.Path, err)
	}
	defer release()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	previous := ""
	if data, err := os.ReadFile(path); err == nil {
		previous = string(data)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return fmt.Sprintf("Wrote %d bytes to %s%s", len(params.Content), params.Path, changeSummary(previous, params.Content)), nil
}
