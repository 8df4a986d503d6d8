// Package langchain implements the llm.Client port on top of langchaingo
// models, used for providers called directly instead of through LiteLLM.
package langchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/multivitaminds/signof-sub014/internal/domain/cost"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
)

// Client adapts a langchaingo model to llm.Client.
type Client struct {
	model llms.Model
}

var _ llm.Client = (*Client)(nil)

// New wraps an existing langchaingo model.
func New(model llms.Model) *Client {
	return &Client{model: model}
}

// NewOpenAI builds an OpenAI-backed client. baseURL may be empty.
func NewOpenAI(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("langchain: openai api key is required")
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain: openai: %w", err)
	}
	return New(m), nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	msgs := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msgs = append(msgs, llms.TextParts(messageType(m.Role), m.Content))
	}

	opts := []llms.CallOption{llms.WithModel(req.Model)}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(req.Tools)))
	}
	if req.OnToken != nil {
		onToken := req.OnToken
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) > 0 {
				onToken(string(chunk))
			}
			return nil
		}))
	}

	resp, err := c.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("langchain: empty response")
	}
	choice := resp.Choices[0]

	out := &llm.Response{
		Content: choice.Content,
		Usage: cost.TokenUsage{
			InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
			OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		},
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := json.RawMessage(tc.FunctionCall.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: args})
	}
	return out, nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func toTools(defs []llm.ToolDef) []llms.Tool {
	out := make([]llms.Tool, 0, len(defs))
	for _, s := range defs {
		params := s.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// intInfo reads a token count from provider generation info, which carries
// ints or floats depending on the backend.
func intInfo(info map[string]any, key string) int64 {
	switch v := info[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
