package compact

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tandemcode/tandem/pkg/types"
)

var (
	tokenEncoder *tiktoken.Tiktoken
	encoderOnce  sync.Once
	encoderErr   error
)

// initTokenEncoder lazily loads the cl100k_base encoding. It is a close
// enough proxy for every chat model the engine talks to; per-model encodings
// are not worth the download.
func initTokenEncoder() error {
	encoderOnce.Do(func() {
		tokenEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// CountTokens counts tokens across messages, including per-message framing
// overhead. If the encoder is unavailable it falls back to the length/4
// estimate rather than failing.
func CountTokens(messages []types.Message, model string) int {
	if err := initTokenEncoder(); err != nil {
		total := 0
		for _, msg := range messages {
			total += estimateTokens(msg.Content)
		}
		return total
	}

	total := 0
	for _, msg := range messages {
		// Role marker plus message framing, per OpenAI's accounting notes.
		total += 4
		total += len(tokenEncoder.Encode(string(msg.Role), nil, nil))
		total += len(tokenEncoder.Encode(msg.Content, nil, nil))
	}
	if total > 0 {
		total += 2
	}
	return total
}

// countText counts tokens in a bare string.
func countText(text string) int {
	if err := initTokenEncoder(); err != nil {
		return estimateTokens(text)
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}

// estimateTokens is the rough ~4 characters per token fallback.
func estimateTokens(text string) int {
	return len(text) / 4
}
