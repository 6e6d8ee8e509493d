// Package compact keeps conversation history within a model's context
// window by replacing older messages with synthesized summaries.
package compact

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/pkg/types"
)

// Summarizer produces a short summary for a block of conversation text.
// Backed by the provider's non-streaming completion.
type Summarizer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ModelCatalog is the live source of model metadata.
type ModelCatalog interface {
	// ContextWindow returns the context-window size for a model, if known.
	ContextWindow(model string) (int, bool)
}

// Config holds compaction thresholds. The documented defaults are the
// contract; zero values are replaced by them.
type Config struct {
	// TriggerRatio is the used/limit ratio at which compaction starts.
	TriggerRatio float64 `json:"triggerRatio,omitempty" yaml:"triggerRatio,omitempty"`
	// CriticalRatio escalates compaction: tighter target, smaller tail.
	CriticalRatio float64 `json:"criticalRatio,omitempty" yaml:"criticalRatio,omitempty"`
	// TargetRatio is the post-compaction budget as a fraction of the limit.
	TargetRatio float64 `json:"targetRatio,omitempty" yaml:"targetRatio,omitempty"`
	// CriticalTargetRatio is the escalated budget fraction.
	CriticalTargetRatio float64 `json:"criticalTargetRatio,omitempty" yaml:"criticalTargetRatio,omitempty"`
	// KeepRecent is how many trailing messages stay verbatim.
	KeepRecent int `json:"keepRecent,omitempty" yaml:"keepRecent,omitempty"`
	// CriticalKeepRecent is the escalated tail size.
	CriticalKeepRecent int `json:"criticalKeepRecent,omitempty" yaml:"criticalKeepRecent,omitempty"`
	// SummaryMaxTokens caps each synthesized summary.
	SummaryMaxTokens int `json:"summaryMaxTokens,omitempty" yaml:"summaryMaxTokens,omitempty"`
	// MinBatchTokens is the floor below which a batch is kept verbatim
	// instead of summarized.
	MinBatchTokens int `json:"minBatchTokens,omitempty" yaml:"minBatchTokens,omitempty"`
	// BatchCount is how many summary batches the middle is split into.
	BatchCount int `json:"batchCount,omitempty" yaml:"batchCount,omitempty"`
	// DefaultLimit is the conservative fallback context window.
	DefaultLimit int `json:"defaultLimit,omitempty" yaml:"defaultLimit,omitempty"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		TriggerRatio:        0.80,
		CriticalRatio:       0.95,
		TargetRatio:         0.70,
		CriticalTargetRatio: 0.60,
		KeepRecent:          3,
		CriticalKeepRecent:  2,
		SummaryMaxTokens:    150,
		MinBatchTokens:      50,
		BatchCount:          3,
		DefaultLimit:        8192,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TriggerRatio <= 0 {
		c.TriggerRatio = d.TriggerRatio
	}
	if c.CriticalRatio <= 0 {
		c.CriticalRatio = d.CriticalRatio
	}
	if c.TargetRatio <= 0 {
		c.TargetRatio = d.TargetRatio
	}
	if c.CriticalTargetRatio <= 0 {
		c.CriticalTargetRatio = d.CriticalTargetRatio
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = d.KeepRecent
	}
	if c.CriticalKeepRecent <= 0 {
		c.CriticalKeepRecent = d.CriticalKeepRecent
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = d.SummaryMaxTokens
	}
	if c.MinBatchTokens <= 0 {
		c.MinBatchTokens = d.MinBatchTokens
	}
	if c.BatchCount <= 0 {
		c.BatchCount = d.BatchCount
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = d.DefaultLimit
	}
	return c
}

// Manager is the context-window manager.
type Manager struct {
	cfg        Config
	catalog    ModelCatalog
	summarizer Summarizer
	log        zerolog.Logger
}

// NewManager creates a manager. catalog may be nil (static table only);
// summarizer may be nil (truncation fallback always used).
func NewManager(cfg Config, catalog ModelCatalog, summarizer Summarizer) *Manager {
	return &Manager{
		cfg:        cfg.withDefaults(),
		catalog:    catalog,
		summarizer: summarizer,
		log:        logging.For("compact"),
	}
}

// Options adjusts a single Compress call.
type Options struct {
	// TargetTokens overrides the computed target budget.
	TargetTokens int
	// KeepRecent overrides the verbatim tail size.
	KeepRecent int
}

// CheckAndCompress compacts messages when usage crosses the trigger ratio.
// With autoCompress false it reports usage without touching history.
func (m *Manager) CheckAndCompress(ctx context.Context, messages []types.Message, model string, autoCompress bool) ([]types.Message, types.CompressionOutcome) {
	limit := m.Limit(model)
	used := CountTokens(messages, model)

	outcome := types.CompressionOutcome{
		TokensBefore:   used,
		TokensAfter:    used,
		MessagesBefore: len(messages),
		MessagesAfter:  len(messages),
		Ratio:          1.0,
	}

	if limit <= 0 || float64(used)/float64(limit) < m.cfg.TriggerRatio || !autoCompress {
		return messages, outcome
	}

	opts := Options{
		TargetTokens: int(float64(limit) * m.cfg.TargetRatio),
		KeepRecent:   m.cfg.KeepRecent,
	}
	if float64(used)/float64(limit) >= m.cfg.CriticalRatio {
		opts.TargetTokens = int(float64(limit) * m.cfg.CriticalTargetRatio)
		opts.KeepRecent = m.cfg.CriticalKeepRecent
	}

	return m.Compress(ctx, messages, model, opts)
}

// Compress folds older messages into summaries until the running total is
// at or under the target. A leading system message and the last KeepRecent
// messages are never altered. Compress never fails: token counting falls
// back to estimation and summarization falls back to truncation.
func (m *Manager) Compress(ctx context.Context, messages []types.Message, model string, opts Options) ([]types.Message, types.CompressionOutcome) {
	keep := opts.KeepRecent
	if keep <= 0 {
		keep = m.cfg.KeepRecent
	}
	target := opts.TargetTokens
	if target <= 0 {
		target = int(float64(m.Limit(model)) * m.cfg.TargetRatio)
	}

	before := CountTokens(messages, model)
	outcome := types.CompressionOutcome{
		TokensBefore:   before,
		TokensAfter:    before,
		MessagesBefore: len(messages),
		MessagesAfter:  len(messages),
		Ratio:          1.0,
	}

	// Already fits: repeated calls must not re-summarize summaries.
	if before <= target {
		return messages, outcome
	}

	head := 0
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		head = 1
	}
	if len(messages)-keep <= head {
		return messages, outcome
	}

	middle := messages[head : len(messages)-keep]
	tail := messages[len(messages)-keep:]

	batches := splitBatches(middle, m.cfg.BatchCount)

	var processed []types.Message
	folded := 0
	doneAt := -1

	for bi, batch := range batches {
		if batchTokens(batch, model) < m.cfg.MinBatchTokens {
			// Too small to be worth a summary round-trip.
			processed = append(processed, batch...)
		} else {
			processed = append(processed, m.summarize(ctx, batch))
			folded += len(batch)
		}

		running := CountTokens(append(append(append([]types.Message{}, messages[:head]...), processed...), tail...), model)
		if running <= target {
			doneAt = bi
			break
		}
	}

	// Batches after the stop point stay verbatim: the target was already met.
	if doneAt >= 0 {
		for _, batch := range batches[doneAt+1:] {
			processed = append(processed, batch...)
		}
	}

	result := make([]types.Message, 0, head+len(processed)+keep)
	result = append(result, messages[:head]...)
	result = append(result, processed...)
	result = append(result, tail...)

	after := CountTokens(result, model)
	outcome.Compressed = folded > 0
	outcome.TokensAfter = after
	outcome.MessagesAfter = len(result)
	outcome.MessagesFolded = folded
	if before > 0 {
		outcome.Ratio = float64(after) / float64(before)
	}

	if outcome.Compressed {
		m.log.Info().
			Int("tokensBefore", before).Int("tokensAfter", after).
			Int("folded", folded).Str("model", model).
			Msg("compacted conversation history")
	}
	return result, outcome
}

// summarize produces one summary message for a batch. On any summarizer
// failure the batch text is truncated with an ellipsis instead.
func (m *Manager) summarize(ctx context.Context, batch []types.Message) types.Message {
	var sb strings.Builder
	for _, msg := range batch {
		sb.WriteString(strings.ToUpper(string(msg.Role)))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	text := sb.String()

	if m.summarizer != nil {
		prompt := summaryPrompt + "\n\n---\n\n" + text
		summary, err := m.summarizer.Complete(ctx, prompt, m.cfg.SummaryMaxTokens)
		if err == nil && strings.TrimSpace(summary) != "" {
			return types.Message{
				Role:    types.RoleAssistant,
				Content: "[Summary of earlier conversation]\n" + strings.TrimSpace(summary),
			}
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("summarization failed, truncating batch instead")
		}
	}

	return types.Message{
		Role:    types.RoleAssistant,
		Content: "[Earlier conversation, truncated]\n" + truncate(text, m.cfg.SummaryMaxTokens*4),
	}
}

const summaryPrompt = `Summarize the following conversation segment. Preserve key decisions, files that were modified, and context needed to continue the work. Be concise.`

// splitBatches splits msgs into up to n roughly equal batches, each with at
// least one message.
func splitBatches(msgs []types.Message, n int) [][]types.Message {
	if len(msgs) == 0 {
		return nil
	}
	if n > len(msgs) {
		n = len(msgs)
	}

	var out [][]types.Message
	size := len(msgs) / n
	rem := len(msgs) % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		out = append(out, msgs[start:end])
		start = end
	}
	return out
}

func batchTokens(batch []types.Message, model string) int {
	return CountTokens(batch, model)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
