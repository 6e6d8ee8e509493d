package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tandemcode/tandem/internal/compact"
	"github.com/tandemcode/tandem/internal/config"
	"github.com/tandemcode/tandem/internal/corrector"
	"github.com/tandemcode/tandem/internal/event"
	"github.com/tandemcode/tandem/internal/extract"
	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/parallel"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/internal/tool"
	"github.com/tandemcode/tandem/internal/transcript"
	"github.com/tandemcode/tandem/internal/turn"
	"github.com/tandemcode/tandem/internal/workspace"
	"github.com/tandemcode/tandem/pkg/types"
)

var (
	runModel   string
	runDir     string
	runMaxIter int
	runYolo    bool
	runQuiet   bool
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run an agentic task",
	Long: `Run an agentic task: the model streams a response, embedded tool calls
are extracted and executed, and the results feed the next iteration.

Examples:
  tandem run "Fix the failing test in parser_test.go"
  tandem run --model anthropic/claude-sonnet-4 "Explain this code"
  tandem run --yolo "Refactor cmd/ without asking"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
	runCmd.Flags().IntVar(&runMaxIter, "max-iterations", 0, "Maximum loop iterations")
	runCmd.Flags().BoolVar(&runYolo, "yolo", false, "Skip all permission prompts")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress streaming output, print final state only")
}

func runTask(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	applyRunFlags(cfg)

	initLogging(cfg)

	model := cfg.Model
	if model == "" {
		return fmt.Errorf("no model configured; set --model, TANDEM_MODEL, or \"model\" in tandem.json")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := buildEngine(cfg, workDir)
	defer eng.bus.Close()

	if !runQuiet {
		renderEvents(eng.bus, os.Stdout)
	}

	messages := []types.Message{
		{Role: types.RoleSystem, Content: buildSystemPrompt(eng.registry)},
		{Role: types.RoleUser, Content: strings.Join(args, " ")},
	}

	for {
		res := eng.loop.Run(ctx, model, messages)
		messages = res.Messages

		if res.State != turn.StateAwaitingPermission {
			saveTranscript(model, res)
		}

		switch res.State {
		case turn.StateAwaitingPermission:
			approved, err := promptPermission(res.Permission)
			if err != nil {
				return err
			}
			if approved {
				eng.gate.Grant(types.ToolInvocation{
					Tool: res.Permission.Tool,
					Args: res.Permission.Args,
				})
				continue
			}
			messages = append(messages, types.Message{
				Role:    types.RoleUser,
				Content: fmt.Sprintf("Permission to run %s was denied. Do not retry it; find another way or stop.", res.Permission.Tool),
			})
			continue

		case turn.StateDone:
			printFinal(messages)
			return nil

		case turn.StateMaxIterations:
			printFinal(messages)
			fmt.Fprintf(os.Stderr, "stopped after %d iterations\n", res.Iterations)
			return nil

		case turn.StateHalted:
			printFinal(messages)
			return fmt.Errorf("halted: %s", res.Finding.Suggestion)

		default:
			return res.Err
		}
	}
}

// saveTranscript records the finished run under the data directory. A failed
// save is logged but never fails the run itself.
func saveTranscript(model string, res turn.Result) {
	store := transcript.NewStore(filepath.Join(config.GetPaths().Data, "transcripts"))
	_, err := store.Save(transcript.Record{
		Model:      model,
		State:      string(res.State),
		Iterations: res.Iterations,
		Messages:   res.Messages,
	})
	if err != nil {
		log := logging.For("transcript")
		log.Warn().Err(err).Msg("failed to save transcript")
	}
}

// engine bundles the assembled collaborators the run command needs to keep
// hold of after construction.
type engine struct {
	loop     *turn.Loop
	bus      *event.Bus
	gate     *permission.Gate
	registry *tool.Registry
}

func buildEngine(cfg *config.Config, workDir string) *engine {
	client := provider.Retrying{Inner: provider.Credentials{
		Inner:   provider.NewEinoClient(),
		APIKey:  cfg.APIKey,
		APIBase: cfg.APIBase,
	}}

	catalog := provider.NewStaticCatalog()
	registry := tool.Default(workDir, workspace.NewLocks())
	bus := event.NewBus()

	policy := cfg.Permission
	if runYolo {
		policy = permission.Policy{
			Edit:  permission.ActionAllow,
			Shell: map[string]permission.Action{"*": permission.ActionAllow},
		}
	}
	gate := permission.NewGate(policy)

	summaryModel := cfg.SummaryModel
	if summaryModel == "" {
		summaryModel = cfg.Model
	}

	loop := turn.New(cfg.Loop, turn.Deps{
		Client:    client,
		Tools:     registry,
		Catalog:   registry,
		Bus:       bus,
		Gate:      gate,
		Corrector: corrector.New(cfg.Corrector),
		Compactor: compact.NewManager(cfg.Compaction,
			provider.CatalogWindow{Catalog: catalog},
			provider.Summarizer{Client: client, Model: summaryModel}),
		Executor:  parallel.New(cfg.Parallel),
		Extractor: extract.New(registry),
	})

	return &engine{loop: loop, bus: bus, gate: gate, registry: registry}
}

func applyRunFlags(cfg *config.Config) {
	if runModel != "" {
		cfg.Model = runModel
	}
	if runMaxIter > 0 {
		cfg.Loop.MaxIterations = runMaxIter
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func initLogging(cfg *config.Config) {
	out := io.Discard
	if printLogs {
		out = os.Stderr
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: out,
		Pretty: printLogs,
	})
}

// renderEvents streams engine events to w. Delivery is synchronous, so
// writes land in token order.
func renderEvents(bus *event.Bus, w io.Writer) {
	bus.SubscribeAll(func(ev event.Event) {
		switch data := ev.Data.(type) {
		case event.TokenData:
			fmt.Fprint(w, data.Token)
		case event.ThinkingDoneData:
			if data.Summary != "" {
				fmt.Fprintf(w, "\n[thinking] %s\n", data.Summary)
			}
		case event.ToolCallData:
			fmt.Fprintf(w, "\n> %s %s\n", data.Tool, types.PathArg(data.Args))
		case event.ToolExecutedData:
			if data.Result.Success() {
				fmt.Fprintf(w, "  ok\n")
			} else {
				fmt.Fprintf(w, "  error: %s\n", data.Result.Error())
			}
		case event.ContextData:
			fmt.Fprintf(w, "\n[compacted %d -> %d tokens]\n", data.Info.TokensBefore, data.Info.TokensAfter)
		case event.ErrorData:
			fmt.Fprintf(w, "\n[error] %s\n", data.Error)
		}
	})
}

func promptPermission(perm *event.PermissionData) (bool, error) {
	title := perm.Title
	if title == "" {
		title = fmt.Sprintf("Allow %s?", perm.Tool)
	}
	fmt.Printf("\n%s", title)
	if perm.Command != "" {
		fmt.Printf("\n  $ %s", perm.Command)
	}
	fmt.Print("\n[y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// printFinal prints the last assistant message when streaming was off.
func printFinal(messages []types.Message) {
	if !runQuiet {
		fmt.Println()
		return
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant {
			fmt.Println(messages[i].Content)
			return
		}
	}
}

// buildSystemPrompt teaches the model the embedded tool-call protocol.
func buildSystemPrompt(registry *tool.Registry) string {
	var sb strings.Builder
	sb.WriteString(`You are a coding agent working in the user's repository.

To use a tool, emit a JSON object inline in your response:
{"tool": "<name>", "parameters": {...}}

You may emit several tool calls in one response; independent calls run in
parallel. Tool results arrive in the next user message.

Available tools:
`)
	for _, name := range registry.ToolNames() {
		t, ok := registry.Get(name)
		if !ok {
			continue
		}
		desc := t.Description()
		if idx := strings.Index(desc, "\n"); idx > 0 {
			desc = desc[:idx]
		}
		fmt.Fprintf(&sb, "- %s: %s\n", name, desc)
	}
	sb.WriteString("\nWhen the task is complete, reply without any tool call.")
	return sb.String()
}
