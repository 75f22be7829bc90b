// Package chat drives the tool-calling conversation loop: it assembles the
// prompt transcript from retrieved context and history, exposes the file
// lookup tool to the model, and iterates model calls until a textual answer
// is produced.
package chat

import (
	"context"

	"github.com/ragdesk/ragdesk/internal/knowledge"
)

// Message roles in a conversation transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation transcript.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall

	// ToolCallID is set on tool messages and keys the result to the
	// assistant's originating call.
	ToolCallID string
}

// ToolCall is a model request to invoke a declared tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ToolDefinition declares a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// Completion is one model response: plain text, tool calls, or neither.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Model is a single-shot chat completion client. Multi-turn iteration is
// handled by the Engine, not the model.
type Model interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (Completion, error)
}

// Retriever supplies grounding context and file lookups. Implementations
// absorb store failures and return empty results instead of errors, so a
// broken retrieval path never aborts a conversation turn.
type Retriever interface {
	Retrieve(ctx context.Context, namespace, query string) []knowledge.Match
	FindByName(ctx context.Context, namespace, query string, limit int) []knowledge.Document
}
