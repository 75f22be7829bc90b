package llm

import (
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ragdesk/ragdesk/internal/chat"
)

func TestToAPIMessages(t *testing.T) {
	messages := []chat.Message{
		{Role: chat.RoleSystem, Content: "instructions"},
		{Role: chat.RoleUser, Content: "question"},
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{
			{ID: "call-1", Name: "find_files_by_name", Arguments: `{"name":"x"}`},
		}},
		{Role: chat.RoleTool, ToolCallID: "call-1", Content: `{"results":[]}`},
		{Role: "something-else", Content: "coerced"},
	}

	got := toAPIMessages(messages)
	if len(got) != len(messages) {
		t.Fatalf("converted %d messages, want %d", len(got), len(messages))
	}

	wantRoles := []string{
		openai.ChatMessageRoleSystem,
		openai.ChatMessageRoleUser,
		openai.ChatMessageRoleAssistant,
		openai.ChatMessageRoleTool,
		openai.ChatMessageRoleUser,
	}
	for i, want := range wantRoles {
		if got[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, got[i].Role, want)
		}
	}

	assistant := got[2]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls = %d, want 1", len(assistant.ToolCalls))
	}
	tc := assistant.ToolCalls[0]
	if tc.ID != "call-1" || tc.Type != openai.ToolTypeFunction {
		t.Errorf("tool call = %+v, want id call-1 of type function", tc)
	}
	if tc.Function.Name != "find_files_by_name" || tc.Function.Arguments != `{"name":"x"}` {
		t.Errorf("tool call function = %+v", tc.Function)
	}

	if got[3].ToolCallID != "call-1" {
		t.Errorf("tool message ToolCallID = %q, want call-1", got[3].ToolCallID)
	}
}

func TestToAPITools(t *testing.T) {
	tools := []chat.ToolDefinition{{
		Name:        "find_files_by_name",
		Description: "file lookup",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"name"},
		},
	}}

	got := toAPITools(tools)
	if len(got) != 1 {
		t.Fatalf("converted %d tools, want 1", len(got))
	}
	if got[0].Type != openai.ToolTypeFunction {
		t.Errorf("tool type = %q, want function", got[0].Type)
	}
	if got[0].Function.Name != "find_files_by_name" {
		t.Errorf("tool name = %q", got[0].Function.Name)
	}
	if got[0].Function.Parameters == nil {
		t.Error("tool parameters not set")
	}
}

func TestFromAPIMessage(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: "answer",
		ToolCalls: []openai.ToolCall{
			{
				ID:       "call-1",
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: "find_files_by_name", Arguments: `{}`},
			},
			{ID: "call-2", Type: "custom"},
		},
	}

	got := fromAPIMessage(msg)
	if got.Content != "answer" {
		t.Errorf("content = %q, want %q", got.Content, "answer")
	}
	// Non-function call types are skipped.
	if len(got.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(got.ToolCalls))
	}
	if got.ToolCalls[0].ID != "call-1" || got.ToolCalls[0].Name != "find_files_by_name" {
		t.Errorf("tool call = %+v", got.ToolCalls[0])
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient("", "gpt-4o-mini", "text-embedding-3-small", nil); err == nil {
		t.Error("expected error for missing api key")
	}
}

func TestBackoff(t *testing.T) {
	base := time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(base, tt.attempt); got != tt.want {
			t.Errorf("backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
