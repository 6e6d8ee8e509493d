package tool

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	defaultBashTimeout = 120 * time.Second
	maxBashTimeout     = 10 * time.Minute
	maxOutputLength    = 30000
)

const bashDescription = `Executes a shell command and returns its output.

Usage:
- Command is required
- Optional timeout in milliseconds (max 600000)
- Output is captured from stdout and stderr`

// BashTool implements shell command execution.
type BashTool struct {
	workDir string
	shell   string
}

type bashInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // milliseconds
}

// NewBashTool creates a new bash tool.
func NewBashTool(workDir string) *BashTool {
	shell := "/bin/bash"
	if runtime.GOOS == "windows" {
		shell = "cmd"
	}
	return &BashTool{workDir: workDir, shell: shell}
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params bashInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}
	if params.Command == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := defaultBashTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, t.shell, "/c", params.Command)
	} else {
		cmd = exec.CommandContext(cmdCtx, t.shell, "-c", params.Command)
	}
	cmd.Dir = t.workDir

	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), "\n")
	if len(output) > maxOutputLength {
		output = output[:maxOutputLength] + "\n... (output truncated)"
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %v:\n%s", timeout, output)
	}
	if err != nil {
		if output == "" {
			return "", err
		}
		return "", fmt.Errorf("%s\n%s", err.Error(), output)
	}
	return output, nil
}
