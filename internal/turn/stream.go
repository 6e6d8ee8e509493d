package turn

import (
	"context"
	"io"
	"time"

	"github.com/tandemcode/tandem/internal/event"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/pkg/types"
)

// streamOnce runs one generation call and returns the accumulated content.
// Ordinary content is withheld from the bus (it may contain tool-call JSON);
// the reasoning sub-stream is forwarded incrementally as it arrives.
//
// Two timeouts guard consumption: FirstChunkTimeout until the first chunk
// arrives, ChunkTimeout between chunks after that. On expiry the stream is
// terminated gracefully and the partial output kept. A mid-stream receive
// error likewise ends the stream early with whatever arrived; only a
// failure to connect at all is returned as an error.
func (l *Loop) streamOnce(ctx context.Context, model string, messages []types.Message) (string, error) {
	stream, err := l.client.Stream(ctx, provider.Request{
		Model:     model,
		Messages:  messages,
		MaxTokens: l.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	type received struct {
		chunk provider.Chunk
		err   error
	}
	done := make(chan struct{})
	defer close(done)

	ch := make(chan received)
	go func() {
		for {
			chunk, err := stream.Recv()
			select {
			case ch <- received{chunk, err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var content, reasoning string

	timer := time.NewTimer(l.cfg.FirstChunkTimeout)
	defer timer.Stop()

	for {
		select {
		case r := <-ch:
			if r.err == io.EOF {
				l.finishReasoning(reasoning)
				return content, nil
			}
			if r.err != nil {
				l.log.Warn().Err(r.err).Msg("stream error, keeping partial output")
				l.finishReasoning(reasoning)
				return content, nil
			}

			content += r.chunk.Content
			if r.chunk.Reasoning != "" {
				reasoning += r.chunk.Reasoning
				l.bus.Publish(event.Event{Type: event.TurnThinking, Data: event.ThinkingData{
					ThinkingChunk: r.chunk.Reasoning,
				}})
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(l.cfg.ChunkTimeout)

		case <-timer.C:
			l.log.Warn().Str("model", model).Msg("stream stalled, terminating with partial output")
			l.finishReasoning(reasoning)
			return content, nil

		case <-ctx.Done():
			return content, ctx.Err()
		}
	}
}

// finishReasoning closes out the reasoning sub-stream for this generation.
func (l *Loop) finishReasoning(reasoning string) {
	if reasoning == "" {
		return
	}
	l.bus.Publish(event.Event{Type: event.TurnThinkingDone, Data: event.ThinkingDoneData{
		Summary:     summarizeReasoning(reasoning),
		FullContent: reasoning,
	}})
}

// summarizeReasoning clips reasoning to a one-line summary.
func summarizeReasoning(reasoning string) string {
	const max = 200
	for i := 0; i < len(reasoning); i++ {
		if reasoning[i] == '\n' {
			reasoning = reasoning[:i]
			break
		}
	}
	if len(reasoning) > max {
		return reasoning[:max] + "..."
	}
	return reasoning
}
