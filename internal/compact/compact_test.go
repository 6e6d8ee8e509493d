package compact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/pkg/types"
)

type fakeSummarizer struct {
	calls int
	fail  bool
}

func (f *fakeSummarizer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("provider unavailable")
	}
	return "summary of earlier work", nil
}

type fakeCatalog map[string]int

func (f fakeCatalog) ContextWindow(model string) (int, bool) {
	limit, ok := f[model]
	return limit, ok
}

// history builds a system message plus n long alternating messages.
func history(n, contentLen int) []types.Message {
	msgs := []types.Message{{Role: types.RoleSystem, Content: "You are a coding agent."}}
	for i := 0; i < n; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		msgs = append(msgs, types.Message{
			Role:    role,
			Content: fmt.Sprintf("message %d: %s", i, strings.Repeat("lorem ipsum dolor sit amet ", contentLen)),
		})
	}
	return msgs
}

func TestCompressPreservesHeadAndTail(t *testing.T) {
	sum := &fakeSummarizer{}
	m := NewManager(Config{}, nil, sum)

	msgs := history(20, 20) // 21 messages total
	out, outcome := m.Compress(context.Background(), msgs, "gpt-4", Options{
		TargetTokens: 1, // unreachable: every batch gets folded
		KeepRecent:   3,
	})

	require.True(t, outcome.Compressed)
	assert.Equal(t, 17, outcome.MessagesFolded)
	assert.Equal(t, 21, outcome.MessagesBefore)

	// System head untouched.
	assert.Equal(t, msgs[0], out[0])
	// Last three messages verbatim.
	require.GreaterOrEqual(t, len(out), 4)
	assert.Equal(t, msgs[18:], out[len(out)-3:])

	// 17 middle messages folded into 3 batch summaries.
	assert.Equal(t, 7, len(out))
	assert.Equal(t, 3, sum.calls)
	for _, msg := range out[1:4] {
		assert.Contains(t, msg.Content, "summary of earlier work")
		assert.Equal(t, types.RoleAssistant, msg.Role)
	}

	assert.Less(t, outcome.TokensAfter, outcome.TokensBefore)
	assert.Less(t, outcome.Ratio, 1.0)
}

func TestCompressStopsAtTargetLeavesRestVerbatim(t *testing.T) {
	sum := &fakeSummarizer{}
	m := NewManager(Config{}, nil, sum)

	// First third of the middle is huge; folding it alone meets the target.
	msgs := []types.Message{{Role: types.RoleSystem, Content: "system"}}
	for i := 0; i < 6; i++ {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: strings.Repeat("big payload ", 400)})
	}
	for i := 0; i < 12; i++ {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: fmt.Sprintf("small message %d %s", i, strings.Repeat("x ", 150))})
	}
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: "tail a"},
		types.Message{Role: types.RoleUser, Content: "tail b"},
		types.Message{Role: types.RoleUser, Content: "tail c"})

	before := CountTokens(msgs, "gpt-4")
	firstBatchCost := CountTokens(msgs[1:7], "gpt-4")
	target := before - firstBatchCost/2

	out, outcome := m.Compress(context.Background(), msgs, "gpt-4", Options{
		TargetTokens: target,
		KeepRecent:   3,
	})

	require.True(t, outcome.Compressed)
	assert.Equal(t, 1, sum.calls, "only the first batch should be summarized")
	assert.Equal(t, 6, outcome.MessagesFolded)

	// The later small messages survive verbatim.
	joined := ""
	for _, msg := range out {
		joined += msg.Content + "\n"
	}
	assert.Contains(t, joined, "small message 11")
	assert.LessOrEqual(t, outcome.TokensAfter, target)
}

func TestCompressNothingToFold(t *testing.T) {
	m := NewManager(Config{}, nil, &fakeSummarizer{})

	msgs := history(3, 5) // head + 3, all inside the kept tail
	out, outcome := m.Compress(context.Background(), msgs, "gpt-4", Options{KeepRecent: 3})

	assert.False(t, outcome.Compressed)
	assert.Equal(t, msgs, out)
	assert.Equal(t, outcome.TokensBefore, outcome.TokensAfter)
}

func TestCompressNoopWhenUnderTarget(t *testing.T) {
	sum := &fakeSummarizer{}
	m := NewManager(Config{}, nil, sum)

	msgs := history(8, 20)
	out, outcome := m.Compress(context.Background(), msgs, "gpt-4", Options{
		TargetTokens: CountTokens(msgs, "gpt-4") * 10,
		KeepRecent:   3,
	})

	assert.False(t, outcome.Compressed)
	assert.Equal(t, msgs, out)
	assert.Equal(t, 0, sum.calls)
}

func TestCompressIdempotentOnceUnderTarget(t *testing.T) {
	sum := &fakeSummarizer{}
	m := NewManager(Config{}, nil, sum)

	msgs := history(20, 20)
	opts := Options{
		TargetTokens: CountTokens(msgs, "gpt-4") / 2,
		KeepRecent:   3,
	}

	once, first := m.Compress(context.Background(), msgs, "gpt-4", opts)
	require.True(t, first.Compressed)
	require.LessOrEqual(t, first.TokensAfter, opts.TargetTokens)

	calls := sum.calls
	twice, second := m.Compress(context.Background(), once, "gpt-4", opts)

	assert.False(t, second.Compressed)
	assert.Equal(t, once, twice)
	assert.Equal(t, calls, sum.calls, "summaries must not be re-summarized")
}

func TestCompressTinyBatchesKeptVerbatim(t *testing.T) {
	sum := &fakeSummarizer{}
	m := NewManager(Config{}, nil, sum)

	msgs := []types.Message{{Role: types.RoleSystem, Content: "s"}}
	for i := 0; i < 9; i++ {
		msgs = append(msgs, types.Message{Role: types.RoleUser, Content: "hi"})
	}

	out, outcome := m.Compress(context.Background(), msgs, "gpt-4", Options{
		TargetTokens: 1,
		KeepRecent:   3,
	})

	// Every batch is below the summary floor.
	assert.Equal(t, 0, sum.calls)
	assert.False(t, outcome.Compressed)
	assert.Equal(t, len(msgs), len(out))
}

func TestCompressSummarizerFailureFallsBackToTruncation(t *testing.T) {
	m := NewManager(Config{}, nil, &fakeSummarizer{fail: true})

	msgs := history(20, 20)
	out, outcome := m.Compress(context.Background(), msgs, "gpt-4", Options{
		TargetTokens: 1,
		KeepRecent:   3,
	})

	require.True(t, outcome.Compressed)
	found := false
	for _, msg := range out {
		if strings.Contains(msg.Content, "[Earlier conversation, truncated]") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckAndCompressBelowTrigger(t *testing.T) {
	m := NewManager(Config{}, nil, &fakeSummarizer{})

	msgs := history(4, 2)
	out, outcome := m.CheckAndCompress(context.Background(), msgs, "claude-sonnet-4", true)

	assert.False(t, outcome.Compressed)
	assert.Equal(t, msgs, out)
	assert.Equal(t, len(msgs), outcome.MessagesAfter)
}

func TestCheckAndCompressAutoCompressOff(t *testing.T) {
	m := NewManager(Config{}, fakeCatalog{"tiny": 500}, &fakeSummarizer{})

	msgs := history(20, 20) // far over a 500-token window
	out, outcome := m.CheckAndCompress(context.Background(), msgs, "tiny", false)

	assert.False(t, outcome.Compressed)
	assert.Equal(t, msgs, out)
	assert.Greater(t, outcome.TokensBefore, 500)
}

func TestCheckAndCompressTriggers(t *testing.T) {
	sum := &fakeSummarizer{}
	limit := CountTokens(history(20, 20), "x") // usage ratio 1.0
	m := NewManager(Config{}, fakeCatalog{"tiny": limit}, sum)

	msgs := history(20, 20)
	out, outcome := m.CheckAndCompress(context.Background(), msgs, "tiny", true)

	require.True(t, outcome.Compressed)
	assert.Greater(t, sum.calls, 0)
	assert.Less(t, outcome.TokensAfter, outcome.TokensBefore)
	assert.Less(t, len(out), len(msgs))
}

func TestCheckAndCompressCriticalEscalates(t *testing.T) {
	msgs := history(20, 20)
	limit := CountTokens(msgs, "x") // usage ratio 1.0, past the critical ratio
	m := NewManager(Config{}, fakeCatalog{"tiny": limit}, &fakeSummarizer{})

	out, outcome := m.CheckAndCompress(context.Background(), msgs, "tiny", true)
	require.True(t, outcome.Compressed)

	// Critical compaction targets 60% of the window, not the usual 70%.
	assert.LessOrEqual(t, outcome.TokensAfter, int(0.6*float64(limit)))
	// The escalated 2-message tail stays verbatim.
	assert.Equal(t, msgs[19:], out[len(out)-2:])
}

func TestSplitBatches(t *testing.T) {
	msgs := history(10, 1)[1:] // 10 messages, no system

	batches := splitBatches(msgs, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 4)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 3)

	// Fewer messages than batches: one message per batch.
	batches = splitBatches(msgs[:2], 3)
	require.Len(t, batches, 2)

	assert.Nil(t, splitBatches(nil, 3))
}

func TestCountTokensScalesWithContent(t *testing.T) {
	short := []types.Message{{Role: types.RoleUser, Content: "hi"}}
	long := []types.Message{{Role: types.RoleUser, Content: strings.Repeat("hello world ", 200)}}

	assert.Greater(t, CountTokens(long, "gpt-4"), CountTokens(short, "gpt-4"))
	assert.Zero(t, CountTokens(nil, "gpt-4"))
	assert.Greater(t, countText(strings.Repeat("word ", 100)), countText("word"))
}

func TestLimitResolution(t *testing.T) {
	m := NewManager(Config{}, nil, nil)

	tests := []struct {
		model string
		limit int
	}{
		{"anthropic/claude-sonnet-4-20250514", 200000},
		{"claude-3-5-sonnet-20241022", 200000},
		{"gpt-4o-mini", 128000},
		{"openai/gpt-4o", 128000},
		{"gpt-4", 8192},
		{"deepseek-coder", 65536},
		{"totally-unknown-model", 8192}, // conservative default
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.limit, m.Limit(tt.model))
		})
	}
}

func TestLimitPrefersLiveCatalog(t *testing.T) {
	m := NewManager(Config{}, fakeCatalog{"gpt-4o": 999999}, nil)
	assert.Equal(t, 999999, m.Limit("gpt-4o"))

	// Catalog miss falls through to the static table.
	assert.Equal(t, 200000, m.Limit("claude-sonnet-4"))
}
