// Package turn drives the engine's agentic loop: stream a model response,
// extract tool calls from it, execute them, fold the outcomes back into the
// conversation, and repeat until the model has nothing left to do or a
// guard trips.
package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tandemcode/tandem/internal/compact"
	"github.com/tandemcode/tandem/internal/corrector"
	"github.com/tandemcode/tandem/internal/event"
	"github.com/tandemcode/tandem/internal/extract"
	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/parallel"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/pkg/types"
)

// State is the loop's position in its lifecycle.
type State string

const (
	StateStreaming          State = "streaming"
	StateExtracting         State = "extracting"
	StateDispatching        State = "dispatching"
	StateAwaitingPermission State = "awaiting_permission"
	StateDone               State = "done"
	StateMaxIterations      State = "max_iterations_reached"
	StateHalted             State = "halted"
	StateError              State = "error"
)

// Config holds the loop's knobs. Start from DefaultConfig.
type Config struct {
	// MaxIterations is the hard ceiling on generation cycles per turn
	// sequence.
	MaxIterations int `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	// ChunkTimeout is the per-chunk stall timeout. On expiry the stream
	// ends gracefully, keeping partial output.
	ChunkTimeout time.Duration `json:"chunkTimeout,omitempty" yaml:"chunkTimeout,omitempty"`
	// FirstChunkTimeout guards initial connection through first-chunk
	// arrival.
	FirstChunkTimeout time.Duration `json:"firstChunkTimeout,omitempty" yaml:"firstChunkTimeout,omitempty"`
	// DetectWindow is the sliding window handed to loop detection.
	DetectWindow int `json:"detectWindow,omitempty" yaml:"detectWindow,omitempty"`
	// AutoCompress enables the context check after each dispatch. Nil
	// means enabled; only an explicit false turns it off.
	AutoCompress *bool `json:"autoCompress,omitempty" yaml:"autoCompress,omitempty"`
	// MaxTokens is passed through to the provider.
	MaxTokens int `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	enabled := true
	return Config{
		MaxIterations:     5,
		ChunkTimeout:      60 * time.Second,
		FirstChunkTimeout: 90 * time.Second,
		DetectWindow:      10,
		AutoCompress:      &enabled,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = d.ChunkTimeout
	}
	if c.FirstChunkTimeout <= 0 {
		c.FirstChunkTimeout = d.FirstChunkTimeout
	}
	if c.DetectWindow <= 0 {
		c.DetectWindow = d.DetectWindow
	}
	if c.AutoCompress == nil {
		c.AutoCompress = d.AutoCompress
	}
	return c
}

// ToolRunner is the tool-execution collaborator. Failures come back inside
// the ResultMap; Execute never panics across this boundary.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any) types.ResultMap
}

// Deps are the loop's collaborators. Client, Tools and Bus are required;
// nil optional members are built with defaults.
type Deps struct {
	Client    provider.Client
	Tools     ToolRunner
	Catalog   extract.Catalog
	Bus       *event.Bus
	Gate      *permission.Gate
	Corrector *corrector.SelfCorrector
	Compactor *compact.Manager
	Executor  *parallel.Executor
	Extractor *extract.Extractor
}

// Loop runs turn sequences for one conversation. It is strictly sequential:
// one Run at a time, and the corrector and compactor are mutated only from
// inside Run, so no locking is needed.
type Loop struct {
	cfg       Config
	client    provider.Client
	tools     ToolRunner
	bus       *event.Bus
	gate      *permission.Gate
	corrector *corrector.SelfCorrector
	compactor *compact.Manager
	executor  *parallel.Executor
	extractor *extract.Extractor
	log       zerolog.Logger
}

// New creates a loop.
func New(cfg Config, deps Deps) *Loop {
	l := &Loop{
		cfg:       cfg.withDefaults(),
		client:    deps.Client,
		tools:     deps.Tools,
		bus:       deps.Bus,
		gate:      deps.Gate,
		corrector: deps.Corrector,
		compactor: deps.Compactor,
		executor:  deps.Executor,
		extractor: deps.Extractor,
		log:       logging.For("turn"),
	}
	if l.bus == nil {
		l.bus = event.NewBus()
	}
	if l.gate == nil {
		l.gate = permission.NewGate(permission.Policy{})
	}
	if l.corrector == nil {
		l.corrector = corrector.New(corrector.DefaultConfig())
	}
	if l.compactor == nil {
		l.compactor = compact.NewManager(compact.DefaultConfig(), nil, nil)
	}
	if l.executor == nil {
		l.executor = parallel.New(parallel.DefaultConfig())
	}
	if l.extractor == nil {
		l.extractor = extract.New(deps.Catalog)
	}
	return l
}

// Corrector exposes the loop's self-corrector, e.g. for a task-level Reset.
func (l *Loop) Corrector() *corrector.SelfCorrector { return l.corrector }

// Bus exposes the loop's event bus.
func (l *Loop) Bus() *event.Bus { return l.bus }

// Result is the outcome of one turn sequence.
type Result struct {
	State      State
	Messages   []types.Message
	Iterations int
	// Permission is set when State is StateAwaitingPermission.
	Permission *event.PermissionData
	// Finding is set when State is StateHalted.
	Finding *types.LoopFinding
	Err     error
}

// Run executes a full turn sequence over messages and returns the updated
// history. Any panic below is recovered into a terminal error event; Run
// never crashes the host.
func (l *Loop) Run(ctx context.Context, model string, messages []types.Message) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("turn loop panic: %v", r)
			l.log.Error().Err(err).Msg("recovered panic in turn loop")
			l.bus.Publish(event.Event{Type: event.TurnError, Data: event.ErrorData{Error: err.Error()}})
			res = Result{State: StateError, Messages: messages, Err: err}
		}
	}()

	res.Messages = messages

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return l.fail(res, iteration, err)
		}
		if iteration >= l.cfg.MaxIterations {
			l.bus.Publish(event.Event{Type: event.TurnDone, Data: event.DoneData{
				Iterations: iteration, Reason: "max_iterations",
			}})
			res.State = StateMaxIterations
			res.Iterations = iteration
			return res
		}

		// Streaming.
		content, err := l.streamOnce(ctx, model, res.Messages)
		if err != nil {
			return l.fail(res, iteration, err)
		}

		// Extracting. The buffered content was withheld during streaming;
		// release it only after tool-call JSON has been stripped out.
		invocations := l.extractor.Extract(content)
		visible := l.extractor.Strip(content, invocations)
		if visible != "" {
			l.bus.Publish(event.Event{Type: event.TurnToken, Data: event.TokenData{Token: visible}})
		}
		res.Messages = append(res.Messages, types.Message{Role: types.RoleAssistant, Content: content})

		if len(invocations) == 0 {
			l.bus.Publish(event.Event{Type: event.TurnDone, Data: event.DoneData{
				Iterations: iteration + 1, Reason: "complete",
			}})
			res.State = StateDone
			res.Iterations = iteration + 1
			return res
		}

		// Dispatching.
		outcome := l.dispatch(ctx, iteration, invocations)
		if outcome.permission != nil {
			res.State = StateAwaitingPermission
			res.Iterations = iteration + 1
			res.Permission = outcome.permission
			return res
		}

		finding := l.corrector.DetectLoops(l.cfg.DetectWindow)
		if finding != nil && finding.ShouldHalt {
			l.log.Warn().Str("kind", string(finding.Kind)).Int("severity", finding.Severity).
				Msg("halting loop finding, stopping dispatch")
			l.bus.Publish(event.Event{Type: event.TurnError, Data: event.ErrorData{
				Error: "unproductive loop detected: " + finding.Suggestion,
			}})
			res.State = StateHalted
			res.Iterations = iteration + 1
			res.Finding = finding
			return res
		}

		// Fold outcomes (plus any advisory finding) into a synthetic user
		// message so the next generation sees them.
		res.Messages = append(res.Messages, types.Message{
			Role:    types.RoleUser,
			Content: foldOutcomes(outcome.pairs, finding),
		})

		// Context check before looping back to streaming.
		var info types.CompressionOutcome
		res.Messages, info = l.compactor.CheckAndCompress(ctx, res.Messages, model, *l.cfg.AutoCompress)
		if info.Compressed {
			l.bus.Publish(event.Event{Type: event.ContextCompacted, Data: event.ContextData{Info: info}})
		}
	}
}

func (l *Loop) fail(res Result, iteration int, err error) Result {
	l.bus.Publish(event.Event{Type: event.TurnError, Data: event.ErrorData{Error: err.Error()}})
	res.State = StateError
	res.Iterations = iteration
	res.Err = err
	return res
}
