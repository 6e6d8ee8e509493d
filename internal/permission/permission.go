// Package permission decides whether a tool invocation may run without
// explicit user sign-off.
package permission

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

// Action is the outcome of a permission check.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Policy configures the gate. Zero value asks for everything risky.
type Policy struct {
	// Edit governs write/edit tools. Default ask.
	Edit Action `json:"edit,omitempty" yaml:"edit,omitempty"`
	// Shell maps command patterns ("git *", "rm *", "*") to actions.
	// Patterns match the parsed command name and subcommand.
	Shell map[string]Action `json:"shell,omitempty" yaml:"shell,omitempty"`
	// AllowedPaths are doublestar patterns for which edits are allowed
	// without asking, regardless of Edit.
	AllowedPaths []string `json:"allowedPaths,omitempty" yaml:"allowedPaths,omitempty"`
	// ShellTools and EditTools classify tool names. Defaults cover the
	// built-in catalog.
	ShellTools []string `json:"shellTools,omitempty" yaml:"shellTools,omitempty"`
	EditTools  []string `json:"editTools,omitempty" yaml:"editTools,omitempty"`
}

// Decision is the gate's verdict on one invocation.
type Decision struct {
	Action Action
	// Command is the shell command under review, when applicable.
	Command string
	// Title is a short human-readable prompt for ask decisions.
	Title string
}

// Gate evaluates invocations against a policy.
type Gate struct {
	policy Policy
	log    zerolog.Logger
}

// NewGate creates a gate. Missing policy fields get safe defaults.
func NewGate(policy Policy) *Gate {
	if policy.Edit == "" {
		policy.Edit = ActionAsk
	}
	if len(policy.ShellTools) == 0 {
		policy.ShellTools = []string{"bash", "shell", "exec"}
	}
	if len(policy.EditTools) == 0 {
		policy.EditTools = []string{"write", "edit", "patch"}
	}
	return &Gate{policy: policy, log: logging.For("permission")}
}

// Evaluate returns the verdict for one invocation. Tools outside the shell
// and edit classes are always allowed; they have nothing to protect.
func (g *Gate) Evaluate(inv types.ToolInvocation) Decision {
	switch {
	case g.isTool(g.policy.ShellTools, inv.Tool):
		return g.evaluateShell(inv)
	case g.isTool(g.policy.EditTools, inv.Tool):
		return g.evaluateEdit(inv)
	default:
		return Decision{Action: ActionAllow}
	}
}

func (g *Gate) isTool(set []string, tool string) bool {
	for _, t := range set {
		if strings.EqualFold(t, tool) {
			return true
		}
	}
	return false
}

func (g *Gate) evaluateShell(inv types.ToolInvocation) Decision {
	cmdText, _ := inv.Args["command"].(string)
	decision := Decision{
		Action:  ActionAsk,
		Command: cmdText,
		Title:   fmt.Sprintf("Allow %s command?", inv.Tool),
	}
	if cmdText == "" {
		return decision
	}

	cmds, err := ParseShellCommand(cmdText)
	if err != nil {
		g.log.Debug().Err(err).Str("command", cmdText).Msg("unparseable shell command, asking")
		return decision
	}

	// The strictest verdict across all commands in the line wins.
	verdict := ActionAllow
	for _, cmd := range cmds {
		switch matchShell(cmd, g.policy.Shell) {
		case ActionDeny:
			verdict = ActionDeny
		case ActionAsk:
			if verdict != ActionDeny {
				verdict = ActionAsk
			}
		}
	}
	decision.Action = verdict
	return decision
}

func (g *Gate) evaluateEdit(inv types.ToolInvocation) Decision {
	path := types.PathArg(inv.Args)
	for _, pattern := range g.policy.AllowedPaths {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return Decision{Action: ActionAllow}
		}
	}
	return Decision{
		Action: g.policy.Edit,
		Title:  fmt.Sprintf("Allow %s to %s?", inv.Tool, path),
	}
}

// Grant records a session-scoped allowance for an invocation that was
// previously answered with ask, so a retried turn can run it.
func (g *Gate) Grant(inv types.ToolInvocation) {
	switch {
	case g.isTool(g.policy.ShellTools, inv.Tool):
		cmdText, _ := inv.Args["command"].(string)
		if g.policy.Shell == nil {
			g.policy.Shell = make(map[string]Action)
		}
		cmds, err := ParseShellCommand(cmdText)
		if err != nil || len(cmds) == 0 {
			return
		}
		for _, cmd := range cmds {
			pattern := cmd.Name
			if cmd.Subcommand != "" {
				pattern += " " + cmd.Subcommand
			}
			g.policy.Shell[pattern] = ActionAllow
		}
	case g.isTool(g.policy.EditTools, inv.Tool):
		if path := types.PathArg(inv.Args); path != "" {
			g.policy.AllowedPaths = append(g.policy.AllowedPaths, path)
		}
	}
}

// matchShell matches a parsed command against shell patterns. A pattern is
// words; "*" matches any remaining words, otherwise words must equal the
// command name and subcommand in order. The most specific (longest) pattern
// wins; absent any match the verdict is ask.
func matchShell(cmd ShellCommand, patterns map[string]Action) Action {
	best := ""
	verdict := ActionAsk
	for pattern, action := range patterns {
		if !patternMatches(pattern, cmd) {
			continue
		}
		if len(pattern) > len(best) {
			best = pattern
			verdict = action
		}
	}
	return verdict
}

func patternMatches(pattern string, cmd ShellCommand) bool {
	words := strings.Fields(pattern)
	if len(words) == 0 {
		return false
	}

	cmdWords := []string{cmd.Name}
	if cmd.Subcommand != "" {
		cmdWords = append(cmdWords, cmd.Subcommand)
	}

	for i, w := range words {
		if w == "*" {
			return true
		}
		if i >= len(cmdWords) || cmdWords[i] != w {
			return false
		}
	}
	// Every pattern word matched exactly and none was a wildcard: require
	// the command to have no extra significant words.
	return len(words) >= len(cmdWords)
}
