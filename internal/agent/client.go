// Package agent runs the tool-calling conversation that turns a natural
// language request into a validated graph delta. The orchestrator owns the
// loop: it sends the conversation to a chat backend, executes requested tool
// calls against the dispatcher, feeds results back, and parses the final
// answer into a delta. Every loop is bounded; every backend call is retried
// on rate limits up to a cap.
package agent

import (
	"context"
	"fmt"
	"time"
)

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Message is one turn of the conversation. Assistant messages may carry tool
// calls; tool messages carry the result of one call, identified by
// ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolName   string
	ToolCallID string
	ToolCalls  []ToolCall
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolMessage builds a tool-result message answering one tool call.
func ToolMessage(callID, toolName, result string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, ToolName: toolName, Content: result}
}

// ToolDefinition declares one callable tool to the backend.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ChatClient is the backend the orchestrator talks to. Complete sends the
// full conversation plus tool declarations and returns the next assistant
// message. Implementations return *RateLimitError for throttling responses
// so the orchestrator can back off and retry.
type ChatClient interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (Message, error)
}

// RateLimitError reports a throttled backend call. RetryAfter is the
// backend's wait hint, zero when none was given.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded (429), retry after %v", e.RetryAfter)
	}
	return "rate limit exceeded (429)"
}
