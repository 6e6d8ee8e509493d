package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tandemcode/tandem/pkg/types"
)

const defaultMaxTokens = 4096

// EinoClient is a Client backed by cloudwego/eino chat models. Claude
// models go through the claude component; everything else goes through the
// openai component, which also covers OpenAI-compatible endpoints (ollama,
// qwen, vllm) via Request.APIBase.
type EinoClient struct {
	mu    sync.Mutex
	cache map[string]model.BaseChatModel
}

// NewEinoClient creates a client. Chat models are built lazily per
// (model, endpoint) pair and reused across requests.
func NewEinoClient() *EinoClient {
	return &EinoClient{cache: make(map[string]model.BaseChatModel)}
}

// Stream starts a streaming generation.
func (c *EinoClient) Stream(ctx context.Context, req Request) (Stream, error) {
	cm, err := c.chatModel(ctx, req)
	if err != nil {
		return nil, err
	}

	reader, err := cm.Stream(ctx, toEinoMessages(req.Messages))
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return &einoStream{reader: reader}, nil
}

// Complete generates a full response in one call.
func (c *EinoClient) Complete(ctx context.Context, req Request) (string, error) {
	cm, err := c.chatModel(ctx, req)
	if err != nil {
		return "", err
	}

	msg, err := cm.Generate(ctx, toEinoMessages(req.Messages))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return msg.Content, nil
}

func (c *EinoClient) chatModel(ctx context.Context, req Request) (model.BaseChatModel, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model not specified")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	key := fmt.Sprintf("%s|%s|%d", req.Model, req.APIBase, maxTokens)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cm, ok := c.cache[key]; ok {
		return cm, nil
	}

	var cm model.BaseChatModel
	var err error
	if strings.HasPrefix(stripProviderPrefix(req.Model), "claude") {
		cm, err = newClaudeModel(ctx, req, maxTokens)
	} else {
		cm, err = newOpenAIModel(ctx, req, maxTokens)
	}
	if err != nil {
		return nil, err
	}

	c.cache[key] = cm
	return cm, nil
}

func newClaudeModel(ctx context.Context, req Request, maxTokens int) (model.BaseChatModel, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     stripProviderPrefix(req.Model),
		MaxTokens: maxTokens,
	}
	if req.APIBase != "" {
		base := req.APIBase
		cfg.BaseURL = &base
	}

	cm, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create claude model: %w", err)
	}
	return cm, nil
}

func newOpenAIModel(ctx context.Context, req Request, maxTokens int) (model.BaseChatModel, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	cfg := &openai.ChatModelConfig{
		APIKey:              apiKey,
		Model:               stripProviderPrefix(req.Model),
		MaxCompletionTokens: &maxTokens,
	}
	if req.APIBase != "" {
		cfg.BaseURL = req.APIBase
	}

	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return cm, nil
}

// stripProviderPrefix turns "anthropic/claude-sonnet-4" into
// "claude-sonnet-4". Bare model IDs pass through unchanged.
func stripProviderPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

func toEinoMessages(messages []types.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			result = append(result, schema.SystemMessage(m.Content))
		case types.RoleAssistant:
			result = append(result, schema.AssistantMessage(m.Content, nil))
		default:
			result = append(result, schema.UserMessage(m.Content))
		}
	}
	return result
}

type einoStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// Recv returns the next chunk. io.EOF marks normal end of stream.
func (s *einoStream) Recv() (Chunk, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Content: msg.Content, Reasoning: msg.ReasoningContent}, nil
}

func (s *einoStream) Close() {
	s.reader.Close()
}
