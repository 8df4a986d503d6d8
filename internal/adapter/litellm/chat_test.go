package litellm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/multivitaminds/signof-sub014/internal/adapter/litellm"
	"github.com/multivitaminds/signof-sub014/internal/port/llm"
)

func TestChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		msgs := body["messages"].([]any)
		if first := msgs[0].(map[string]any); first["role"] != "system" {
			t.Fatalf("expected system prompt first, got %v", first["role"])
		}
		if _, ok := body["tools"]; !ok {
			t.Fatal("expected tools in request")
		}
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "hi", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "search", "arguments": "{\"q\":\"x\"}"}}
			]}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3}
		}`))
	}))
	defer srv.Close()

	resp, err := litellm.NewClient(srv.URL, "").Chat(context.Background(), llm.Request{
		Model:        "gpt-4o",
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: "user", Content: "hello"}},
		Tools:        []llm.ToolDef{{Name: "search"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search" || string(resp.ToolCalls[0].Arguments) != `{"q":"x"}` {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
}

func TestChatStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","function":{"name":"lookup","arguments":"{\"id\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"7}"}}]}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2}}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var streamed strings.Builder
	resp, err := litellm.NewClient(srv.URL, "").Chat(context.Background(), llm.Request{
		Model:    "gpt-4o",
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
		OnToken:  func(d string) { streamed.WriteString(d) },
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Hello" || streamed.String() != "Hello" {
		t.Errorf("content = %q, streamed = %q", resp.Content, streamed.String())
	}
	if resp.Usage.Total() != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if len(resp.ToolCalls) != 1 || string(resp.ToolCalls[0].Arguments) != `{"id":7}` {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
}

func TestChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	_, err := litellm.NewClient(srv.URL, "").Chat(context.Background(), llm.Request{Model: "gpt-4o"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
