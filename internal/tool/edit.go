package tool

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tandemcode/tandem/internal/workspace"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The oldString must exist in the file (exact match required)
- The edit FAILS if oldString is not unique, unless replaceAll is set`

// EditTool implements in-place string replacement.
type EditTool struct {
	workDir string
	locks   *workspace.Locks
}

type editInput struct {
	Path       string `json:"path"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates a new edit tool.
func NewEditTool(workDir string, locks *workspace.Locks) *EditTool {
	return &EditTool{workDir: workDir, locks: locks}
}

func (t *EditTool) Name() string        { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params editInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}
	if params.Path == "" {
		params.Path = pathFromArgs(args)
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if params.OldString == params.NewString {
		return "", fmt.Errorf("oldString and newString must be different")
	}

	path := resolvePath(t.workDir, params.Path)

	release, err := t.locks.TryAcquire(path, "edit")
	if err != nil {
		return "", fmt.Errorf("%s: %w", params.Path, err)
	}
	defer release()

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	text := string(content)

	count := strings.Count(text, params.OldString)
	if count == 0 {
		return "", fmt.Errorf("oldString not found in %s", params.Path)
	}

	var newText string
	if params.ReplaceAll {
		newText = strings.ReplaceAll(text, params.OldString, params.NewString)
	} else {
		if count > 1 {
			return "", fmt.Errorf("oldString appears %d times in file, use replaceAll or provide more context", count)
		}
		newText = strings.Replace(text, params.OldString, params.NewString, 1)
		count = 1
	}

	if err := os.WriteFile(path, []byte(newText), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return fmt.Sprintf("Replaced %d occurrence(s) in %s%s", count, params.Path, changeSummary(text, newText)), nil
}
