package langchain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/multivitaminds/signof-sub014/internal/adapter/langchain"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
)

// fakeModel records the last call and returns a canned response.
type fakeModel struct {
	msgs []llms.MessageContent
	opts llms.CallOptions
	resp *llms.ContentResponse
	err  error
}

func (f *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.msgs = msgs
	for _, o := range options {
		o(&f.opts)
	}
	if f.opts.StreamingFunc != nil && f.resp != nil && len(f.resp.Choices) > 0 {
		_ = f.opts.StreamingFunc(ctx, []byte(f.resp.Choices[0].Content))
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestChat_MapsMessagesAndUsage(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "hello",
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 3},
	}}}}
	c := langchain.New(m)

	var streamed string
	resp, err := c.Chat(context.Background(), llm.Request{
		Model:        "gpt-4o-mini",
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "yo"}, {Role: "user", Content: "again"}},
		OnToken:      func(d string) { streamed += d },
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hello" || resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if streamed != "hello" {
		t.Fatalf("expected streamed content, got %q", streamed)
	}
	if m.opts.Model != "gpt-4o-mini" {
		t.Fatalf("expected model option, got %q", m.opts.Model)
	}

	wantRoles := []llms.ChatMessageType{llms.ChatMessageTypeSystem, llms.ChatMessageTypeHuman, llms.ChatMessageTypeAI, llms.ChatMessageTypeHuman}
	if len(m.msgs) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(m.msgs))
	}
	for i, want := range wantRoles {
		if m.msgs[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, m.msgs[i].Role, want)
		}
	}
}

func TestChat_ToolCalls(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{
			{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "clock", Arguments: `{"tz":"UTC"}`}},
			{ID: "c2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "search", Arguments: "not json"}},
		},
	}}}}
	c := langchain.New(m)

	resp, err := c.Chat(context.Background(), llm.Request{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: "user", Content: "time?"}},
		Tools:    []llm.ToolDef{{Name: "clock", Description: "current time"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(m.opts.Tools) != 1 || m.opts.Tools[0].Function.Name != "clock" {
		t.Fatalf("expected tool to be advertised, got %+v", m.opts.Tools)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(resp.ToolCalls))
	}
	if string(resp.ToolCalls[0].Arguments) != `{"tz":"UTC"}` || string(resp.ToolCalls[1].Arguments) != "{}" {
		t.Fatalf("unexpected arguments %s / %s", resp.ToolCalls[0].Arguments, resp.ToolCalls[1].Arguments)
	}
}

func TestChat_Errors(t *testing.T) {
	c := langchain.New(&fakeModel{err: errors.New("rate limited")})
	if _, err := c.Chat(context.Background(), llm.Request{Model: "m"}); err == nil {
		t.Fatal("expected provider error")
	}

	c = langchain.New(&fakeModel{resp: &llms.ContentResponse{}})
	if _, err := c.Chat(context.Background(), llm.Request{Model: "m"}); err == nil {
		t.Fatal("expected empty response error")
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := langchain.NewOpenAI("", ""); err == nil {
		t.Fatal("expected error without api key")
	}
}
