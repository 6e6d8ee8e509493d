// Package provider defines the engine's boundary to LLM providers. The
// engine treats a provider as an opaque streaming text generator; concrete
// transports live behind the Client interface.
package provider

import (
	"context"

	"github.com/tandemcode/tandem/pkg/types"
)

// Chunk is one increment of a model stream. Either field may be empty;
// Reasoning carries the model's thinking sub-stream when the provider
// exposes one.
type Chunk struct {
	Content   string
	Reasoning string
}

// Stream yields chunks until io.EOF.
type Stream interface {
	Recv() (Chunk, error)
	Close()
}

// Request describes one generation call.
type Request struct {
	Model     string
	Messages  []types.Message
	APIBase   string
	APIKey    string
	MaxTokens int
}

// Client is the model-streaming collaborator. Complete is the non-streaming
// variant used for summarization.
type Client interface {
	Stream(ctx context.Context, req Request) (Stream, error)
	Complete(ctx context.Context, req Request) (string, error)
}

// ModelInfo is live provider metadata for one model.
type ModelInfo struct {
	ID              string
	ContextWindow   int
	MaxOutputTokens int
}

// Catalog exposes provider model metadata.
type Catalog interface {
	Lookup(model string) (ModelInfo, bool)
}

// CatalogWindow adapts a Catalog to the context manager's lookup.
type CatalogWindow struct {
	Catalog Catalog
}

// ContextWindow returns the live context-window size for a model.
func (c CatalogWindow) ContextWindow(model string) (int, bool) {
	if c.Catalog == nil {
		return 0, false
	}
	info, ok := c.Catalog.Lookup(model)
	if !ok || info.ContextWindow <= 0 {
		return 0, false
	}
	return info.ContextWindow, true
}

// Credentials wraps a Client and fills in endpoint and key on requests
// that don't carry their own.
type Credentials struct {
	Inner   Client
	APIKey  string
	APIBase string
}

func (c Credentials) fill(req Request) Request {
	if req.APIKey == "" {
		req.APIKey = c.APIKey
	}
	if req.APIBase == "" {
		req.APIBase = c.APIBase
	}
	return req
}

func (c Credentials) Stream(ctx context.Context, req Request) (Stream, error) {
	return c.Inner.Stream(ctx, c.fill(req))
}

func (c Credentials) Complete(ctx context.Context, req Request) (string, error) {
	return c.Inner.Complete(ctx, c.fill(req))
}

// Summarizer adapts a Client to the context manager's summarization
// collaborator, pinning the model used for summaries.
type Summarizer struct {
	Client Client
	Model  string
}

// Complete generates a summary for prompt, capped at maxTokens.
func (s Summarizer) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return s.Client.Complete(ctx, Request{
		Model:     s.Model,
		Messages:  []types.Message{{Role: types.RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
	})
}
