package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/pkg/types"
)

func shellInv(command string) types.ToolInvocation {
	return types.ToolInvocation{Tool: "bash", Args: map[string]any{"command": command}}
}

func editInv(tool, path string) types.ToolInvocation {
	return types.ToolInvocation{Tool: tool, Args: map[string]any{"path": path}}
}

func TestEvaluateReadToolsAlwaysAllowed(t *testing.T) {
	g := NewGate(Policy{})
	for _, tool := range []string{"read", "grep", "glob", "list", "fetch"} {
		d := g.Evaluate(types.ToolInvocation{Tool: tool, Args: map[string]any{"path": "a.go"}})
		assert.Equal(t, ActionAllow, d.Action, tool)
	}
}

func TestEvaluateShellDefaultAsk(t *testing.T) {
	g := NewGate(Policy{})
	d := g.Evaluate(shellInv("rm -rf build"))
	assert.Equal(t, ActionAsk, d.Action)
	assert.Equal(t, "rm -rf build", d.Command)
	assert.Contains(t, d.Title, "bash")
}

func TestEvaluateShellPatterns(t *testing.T) {
	g := NewGate(Policy{Shell: map[string]Action{
		"*":          ActionAllow,
		"rm *":       ActionDeny,
		"git push":   ActionAsk,
		"git status": ActionAllow,
	}})

	cases := []struct {
		command string
		want    Action
	}{
		{"ls -la", ActionAllow},
		{"rm -rf build", ActionDeny},
		{"git status", ActionAllow},
		{"git push origin main", ActionAsk},
		{"git log", ActionAllow}, // falls through to "*"
	}
	for _, tc := range cases {
		t.Run(tc.command, func(t *testing.T) {
			assert.Equal(t, tc.want, g.Evaluate(shellInv(tc.command)).Action)
		})
	}
}

func TestEvaluateShellStrictestAcrossPipeline(t *testing.T) {
	g := NewGate(Policy{Shell: map[string]Action{
		"*":    ActionAllow,
		"rm *": ActionDeny,
	}})

	assert.Equal(t, ActionDeny, g.Evaluate(shellInv("ls | rm -rf build")).Action)
	assert.Equal(t, ActionDeny, g.Evaluate(shellInv("make && rm -rf build")).Action)
	assert.Equal(t, ActionAllow, g.Evaluate(shellInv("ls | wc -l")).Action)
}

func TestEvaluateShellUnparseableAsks(t *testing.T) {
	g := NewGate(Policy{Shell: map[string]Action{"*": ActionAllow}})
	d := g.Evaluate(shellInv("if then fi ((("))
	assert.Equal(t, ActionAsk, d.Action)
}

func TestEvaluateShellEmptyCommandAsks(t *testing.T) {
	g := NewGate(Policy{Shell: map[string]Action{"*": ActionAllow}})
	d := g.Evaluate(types.ToolInvocation{Tool: "bash", Args: map[string]any{}})
	assert.Equal(t, ActionAsk, d.Action)
}

func TestEvaluateEditDefaultAsk(t *testing.T) {
	g := NewGate(Policy{})
	d := g.Evaluate(editInv("write", "a.go"))
	assert.Equal(t, ActionAsk, d.Action)
	assert.Contains(t, d.Title, "write")
	assert.Contains(t, d.Title, "a.go")
}

func TestEvaluateEditAllowedPaths(t *testing.T) {
	g := NewGate(Policy{AllowedPaths: []string{"src/**", "*.md"}})

	assert.Equal(t, ActionAllow, g.Evaluate(editInv("write", "src/app/main.go")).Action)
	assert.Equal(t, ActionAllow, g.Evaluate(editInv("edit", "README.md")).Action)
	assert.Equal(t, ActionAsk, g.Evaluate(editInv("write", "main.go")).Action)
}

func TestEvaluateEditPolicyDeny(t *testing.T) {
	g := NewGate(Policy{Edit: ActionDeny, AllowedPaths: []string{"docs/**"}})

	assert.Equal(t, ActionDeny, g.Evaluate(editInv("write", "main.go")).Action)
	// Allowed paths win over the blanket policy.
	assert.Equal(t, ActionAllow, g.Evaluate(editInv("write", "docs/guide.md")).Action)
}

func TestMatchShellLongestPatternWins(t *testing.T) {
	patterns := map[string]Action{
		"*":          ActionDeny,
		"git *":      ActionAsk,
		"git status": ActionAllow,
	}

	assert.Equal(t, ActionAllow, matchShell(ShellCommand{Name: "git", Subcommand: "status"}, patterns))
	assert.Equal(t, ActionAsk, matchShell(ShellCommand{Name: "git", Subcommand: "push"}, patterns))
	assert.Equal(t, ActionDeny, matchShell(ShellCommand{Name: "rm"}, patterns))
	assert.Equal(t, ActionAsk, matchShell(ShellCommand{Name: "rm"}, nil))
}

func TestPatternMatchesBareNameNeedsBareCommand(t *testing.T) {
	// "git" alone should not cover "git push"; that needs "git *".
	assert.True(t, patternMatches("git", ShellCommand{Name: "git"}))
	assert.False(t, patternMatches("git", ShellCommand{Name: "git", Subcommand: "push"}))
	assert.True(t, patternMatches("git *", ShellCommand{Name: "git", Subcommand: "push"}))
	assert.False(t, patternMatches("", ShellCommand{Name: "git"}))
}

func TestParseShellCommand(t *testing.T) {
	cmds, err := ParseShellCommand("git commit -m 'initial'")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "git", cmds[0].Name)
	assert.Equal(t, "commit", cmds[0].Subcommand)
	assert.Equal(t, []string{"commit", "-m", "initial"}, cmds[0].Args)
}

func TestParseShellCommandFlagsSkippedForSubcommand(t *testing.T) {
	cmds, err := ParseShellCommand("ls -la /tmp")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "ls", cmds[0].Name)
	assert.Equal(t, "/tmp", cmds[0].Subcommand)
}

func TestParseShellCommandCompound(t *testing.T) {
	cmds, err := ParseShellCommand("make build && rm -rf dist; echo done | wc -l")
	require.NoError(t, err)

	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
	}
	assert.ElementsMatch(t, []string{"make", "rm", "echo", "wc"}, names)
}

func TestParseShellCommandExpansionsBecomePlaceholders(t *testing.T) {
	cmds, err := ParseShellCommand("rm $HOME/stuff")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "rm", cmds[0].Name)
	assert.Contains(t, cmds[0].Args[0], "$HOME")
}

func TestGrantShellCommand(t *testing.T) {
	g := NewGate(Policy{})
	inv := shellInv("make test")
	require.Equal(t, ActionAsk, g.Evaluate(inv).Action)

	g.Grant(inv)
	assert.Equal(t, ActionAllow, g.Evaluate(inv).Action)
	// Other commands still ask.
	assert.Equal(t, ActionAsk, g.Evaluate(shellInv("rm -rf build")).Action)
}

func TestGrantEditPath(t *testing.T) {
	g := NewGate(Policy{})
	inv := editInv("write", "main.go")
	require.Equal(t, ActionAsk, g.Evaluate(inv).Action)

	g.Grant(inv)
	assert.Equal(t, ActionAllow, g.Evaluate(inv).Action)
	assert.Equal(t, ActionAsk, g.Evaluate(editInv("write", "other.go")).Action)
}
