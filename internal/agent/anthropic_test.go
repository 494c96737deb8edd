package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"intentgraph/internal/config"
)

func newTestClient(url string) *AnthropicClient {
	return NewAnthropicClient(config.LLMConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		TimeoutSec: 5,
		MaxTokens:  1024,
	})
}

func TestAnthropicCompleteParsesToolUse(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"content": [
				{"type": "text", "text": "checking the store"},
				{"type": "tool_use", "id": "toolu_1", "name": "get_node", "input": {"id": "orders"}}
			],
			"stop_reason": "tool_use"
		}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	reply, err := client.Complete(context.Background(), []Message{
		SystemMessage("system prompt"),
		UserMessage("add audit"),
		AssistantMessage("", []ToolCall{{ID: "prev", Name: "find_nodes", Args: map[string]any{"filters": []any{}}}}),
		ToolMessage("prev", "find_nodes", `{"ok":true}`),
	}, []ToolDefinition{
		{Name: "get_node", Description: "fetch", InputSchema: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if reply.Role != RoleAssistant || reply.Content != "checking the store" {
		t.Errorf("reply = %+v", reply)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", reply.ToolCalls)
	}
	call := reply.ToolCalls[0]
	if call.ID != "toolu_1" || call.Name != "get_node" || call.Args["id"] != "orders" {
		t.Errorf("tool call = %+v", call)
	}

	// System turn lifted to the top-level field, not the message list.
	if gotBody["system"] != "system prompt" {
		t.Errorf("system = %v", gotBody["system"])
	}
	msgs := gotBody["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("wire messages = %d, want 3 (user, assistant, tool result)", len(msgs))
	}
	toolTurn := msgs[2].(map[string]any)
	if toolTurn["role"] != "user" {
		t.Errorf("tool result role = %v, want user", toolTurn["role"])
	}
	block := toolTurn["content"].([]any)[0].(map[string]any)
	if block["type"] != "tool_result" || block["tool_use_id"] != "prev" {
		t.Errorf("tool result block = %v", block)
	}
	tools := gotBody["tools"].([]any)
	if len(tools) != 1 || tools[0].(map[string]any)["name"] != "get_node" {
		t.Errorf("tools = %v", tools)
	}
}

func TestAnthropicCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Complete(context.Background(), []Message{UserMessage("hi")}, nil)

	var rateLimited *RateLimitError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rateLimited.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rateLimited.RetryAfter)
	}
}

func TestAnthropicCompleteRateLimitedWithoutHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Complete(context.Background(), []Message{UserMessage("hi")}, nil)

	var rateLimited *RateLimitError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rateLimited.RetryAfter != 0 {
		t.Errorf("RetryAfter = %v, want 0", rateLimited.RetryAfter)
	}
}

func TestAnthropicCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "overloaded")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Complete(context.Background(), []Message{UserMessage("hi")}, nil)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		t.Error("500 must not be reported as rate limiting")
	}
}

func TestAnthropicCompleteRequiresAPIKey(t *testing.T) {
	client := NewAnthropicClient(config.LLMConfig{BaseURL: "http://localhost:1", Model: "m"})
	if _, err := client.Complete(context.Background(), []Message{UserMessage("hi")}, nil); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestTranslateHistoryMergesConsecutiveToolResults(t *testing.T) {
	_, wire := translateHistory([]Message{
		UserMessage("go"),
		AssistantMessage("", []ToolCall{
			{ID: "a", Name: "get_node", Args: map[string]any{"id": "x"}},
			{ID: "b", Name: "get_node", Args: map[string]any{"id": "y"}},
		}),
		ToolMessage("a", "get_node", `{"ok":true}`),
		ToolMessage("b", "get_node", `{"ok":false}`),
	})

	if len(wire) != 3 {
		t.Fatalf("wire turns = %d, want 3", len(wire))
	}
	last := wire[2]
	if last.Role != "user" || len(last.Content) != 2 {
		t.Fatalf("merged tool results = %+v", last)
	}
	if last.Content[0].ToolUseID != "a" || last.Content[1].ToolUseID != "b" {
		t.Errorf("tool result order = %+v", last.Content)
	}
}
