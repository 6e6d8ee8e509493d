package tool

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	readDefaultLimit = 2000
	readMaxLineLen   = 2000
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- By default, reads up to 2000 lines from the beginning
- You can optionally specify offset and limit for pagination
- Returns file contents with line numbers`

// ReadTool implements file reading.
type ReadTool struct {
	workDir string
}

type readInput struct {
	Path   string `json:"path"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// NewReadTool creates a new read tool.
func NewReadTool(workDir string) *ReadTool {
	return &ReadTool{workDir: workDir}
}

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var params readInput
	if err := decodeArgs(args, &params); err != nil {
		return "", err
	}
	if params.Path == "" {
		params.Path = pathFromArgs(args)
	}
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if params.Limit <= 0 {
		params.Limit = readDefaultLimit
	}

	path := resolvePath(t.workDir, params.Path)

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", params.Path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", params.Path)
	}
	if isBinaryFile(path) {
		return "", fmt.Errorf("file appears to be binary: %s", params.Path)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0
	lastRead := 0

	for scanner.Scan() {
		lineNum++
		if params.Offset > 0 && lineNum < params.Offset {
			continue
		}
		if len(lines) >= params.Limit {
			break
		}

		line := scanner.Text()
		if len(line) > readMaxLineLen {
			line = line[:readMaxLineLen] + "..."
		}
		lines = append(lines, fmt.Sprintf("%05d| %s", lineNum, line))
		lastRead = lineNum
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(lines, "\n"))

	if lineNum > lastRead {
		sb.WriteString(fmt.Sprintf("\n\n(File has more lines. Use 'offset' to read beyond line %d)", lastRead))
	}
	return sb.String(), nil
}

// resolvePath makes relative tool paths workdir-relative.
func resolvePath(workDir, path string) string {
	if filepath.IsAbs(path) || workDir == "" {
		return path
	}
	return filepath.Join(workDir, path)
}

// pathFromArgs tolerates the aliases models use for the path argument.
func pathFromArgs(args map[string]any) string {
	for _, key := range []string{"file", "filePath", "file_path", "filename"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 8000)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}
