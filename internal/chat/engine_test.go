package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ragdesk/ragdesk/internal/knowledge"
)

type fakeRetriever struct {
	matches []knowledge.Match
	docs    []knowledge.Document

	retrieveCalls int
	findCalls     int
	lastFindQuery string
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string) []knowledge.Match {
	f.retrieveCalls++
	return f.matches
}

func (f *fakeRetriever) FindByName(_ context.Context, _, query string, _ int) []knowledge.Document {
	f.findCalls++
	f.lastFindQuery = query
	return f.docs
}

type fakeModel struct {
	completions []Completion
	err         error

	calls       int
	transcripts [][]Message
}

func (f *fakeModel) Complete(_ context.Context, messages []Message, _ []ToolDefinition) (Completion, error) {
	f.transcripts = append(f.transcripts, append([]Message(nil), messages...))
	if f.err != nil {
		return Completion{}, f.err
	}
	if f.calls >= len(f.completions) {
		return Completion{}, nil
	}
	c := f.completions[f.calls]
	f.calls++
	return c, nil
}

func toolCallCompletion(id, name, args string) Completion {
	return Completion{ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: args}}}
}

func TestAsk_PlainTextAnswer(t *testing.T) {
	retriever := &fakeRetriever{}
	model := &fakeModel{completions: []Completion{{Content: "hello"}}}
	engine := NewEngine(retriever, model, nil)

	reply, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if reply.Answer != "hello" {
		t.Errorf("answer = %q, want %q", reply.Answer, "hello")
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}
	if retriever.retrieveCalls != 1 {
		t.Errorf("retrieve calls = %d, want 1", retriever.retrieveCalls)
	}
	if len(reply.ToolLog) != 0 {
		t.Errorf("tool log length = %d, want 0", len(reply.ToolLog))
	}
}

func TestAsk_EmptyNamespaceSkipsRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	model := &fakeModel{completions: []Completion{{Content: "ok"}}}
	engine := NewEngine(retriever, model, nil)

	if _, err := engine.Ask(context.Background(), Request{Prompt: "hi"}); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if retriever.retrieveCalls != 0 {
		t.Errorf("retrieve calls = %d, want 0", retriever.retrieveCalls)
	}
}

func TestAsk_ToolRoundThenAnswer(t *testing.T) {
	retriever := &fakeRetriever{
		docs: []knowledge.Document{{FileName: "report.pdf", Namespace: "docs"}},
	}
	model := &fakeModel{completions: []Completion{
		toolCallCompletion("call-1", "find_files_by_name", `{"name":"report"}`),
		{Content: "found it"},
	}}
	engine := NewEngine(retriever, model, nil)

	reply, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "find my report"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if reply.Answer != "found it" {
		t.Errorf("answer = %q, want %q", reply.Answer, "found it")
	}
	if model.calls != 2 {
		t.Fatalf("model calls = %d, want 2", model.calls)
	}
	if retriever.findCalls != 1 {
		t.Errorf("find calls = %d, want 1", retriever.findCalls)
	}
	if retriever.lastFindQuery != "report" {
		t.Errorf("find query = %q, want %q", retriever.lastFindQuery, "report")
	}
	if len(reply.ToolLog) != 1 {
		t.Fatalf("tool log length = %d, want 1", len(reply.ToolLog))
	}
	if reply.ToolLog[0].Query != "report" {
		t.Errorf("tool log query = %q, want %q", reply.ToolLog[0].Query, "report")
	}

	// The second model call must see the assistant tool request followed by
	// exactly one tool result keyed to the originating call.
	second := model.transcripts[1]
	var toolMsgs []Message
	for _, m := range second {
		if m.Role == RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 1 {
		t.Fatalf("tool messages in transcript = %d, want 1", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "call-1" {
		t.Errorf("tool call id = %q, want %q", toolMsgs[0].ToolCallID, "call-1")
	}
	if !strings.Contains(toolMsgs[0].Content, "report.pdf") {
		t.Errorf("tool result %q does not mention the found file", toolMsgs[0].Content)
	}
}

func TestAsk_QueryArgumentFallback(t *testing.T) {
	retriever := &fakeRetriever{}
	model := &fakeModel{completions: []Completion{
		toolCallCompletion("call-1", "find_files_by_name", `{"query":"notes"}`),
		{Content: "done"},
	}}
	engine := NewEngine(retriever, model, nil)

	if _, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "hi"}); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if retriever.lastFindQuery != "notes" {
		t.Errorf("find query = %q, want %q", retriever.lastFindQuery, "notes")
	}
}

func TestAsk_MalformedArgumentsDegradeToEmpty(t *testing.T) {
	retriever := &fakeRetriever{}
	model := &fakeModel{completions: []Completion{
		toolCallCompletion("call-1", "find_files_by_name", `{not json`),
		{Content: "done"},
	}}
	engine := NewEngine(retriever, model, nil)

	reply, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if reply.Answer != "done" {
		t.Errorf("answer = %q, want %q", reply.Answer, "done")
	}
	if retriever.findCalls != 1 {
		t.Errorf("find calls = %d, want 1", retriever.findCalls)
	}
	if retriever.lastFindQuery != "" {
		t.Errorf("find query = %q, want empty", retriever.lastFindQuery)
	}
}

func TestAsk_UnknownToolNeverExecutes(t *testing.T) {
	retriever := &fakeRetriever{}
	model := &fakeModel{completions: []Completion{
		toolCallCompletion("call-1", "delete_everything", `{}`),
		{Content: "ok"},
	}}
	engine := NewEngine(retriever, model, nil)

	reply, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if retriever.findCalls != 0 {
		t.Errorf("find calls = %d, want 0", retriever.findCalls)
	}
	if len(reply.ToolLog) != 0 {
		t.Errorf("tool log length = %d, want 0", len(reply.ToolLog))
	}

	second := model.transcripts[1]
	last := second[len(second)-1]
	if last.Role != RoleTool {
		t.Fatalf("last transcript message role = %q, want tool", last.Role)
	}
	if !strings.Contains(last.Content, "unknown tool") {
		t.Errorf("tool result = %q, want an unknown tool error", last.Content)
	}
}

func TestAsk_ToolRoundBound(t *testing.T) {
	retriever := &fakeRetriever{}
	// The model requests a tool on every round and never answers.
	completions := make([]Completion, 0, 10)
	for i := 0; i < 10; i++ {
		completions = append(completions, toolCallCompletion("call", "find_files_by_name", `{"name":"x"}`))
	}
	model := &fakeModel{completions: completions}
	engine := NewEngine(retriever, model, nil, WithMaxToolRounds(2))

	reply, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if reply.Answer != "…" {
		t.Errorf("answer = %q, want placeholder", reply.Answer)
	}
	// The cap is exact: two tool rounds run, then the loop gives up.
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2", model.calls)
	}
}

func TestAsk_EmptyCompletionYieldsPlaceholder(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty content", content: ""},
		{name: "whitespace content", content: "   \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{completions: []Completion{{Content: tt.content}}}
			engine := NewEngine(&fakeRetriever{}, model, nil)

			reply, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "hi"})
			if err != nil {
				t.Fatalf("Ask returned error: %v", err)
			}
			if reply.Answer != "…" {
				t.Errorf("answer = %q, want placeholder", reply.Answer)
			}
		})
	}
}

func TestAsk_ModelErrorPropagates(t *testing.T) {
	wantErr := errors.New("model unavailable")
	model := &fakeModel{err: wantErr}
	engine := NewEngine(&fakeRetriever{}, model, nil)

	_, err := engine.Ask(context.Background(), Request{Namespace: "docs", Prompt: "hi"})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestAsk_ContextMessageIncluded(t *testing.T) {
	retriever := &fakeRetriever{matches: []knowledge.Match{{
		Content:    "quarterly revenue grew",
		Similarity: 0.91,
		Document:   knowledge.Document{FileName: "q3.txt", Namespace: "finance"},
	}}}
	model := &fakeModel{completions: []Completion{{Content: "ok"}}}
	engine := NewEngine(retriever, model, nil)

	reply, err := engine.Ask(context.Background(), Request{Namespace: "finance", Prompt: "how did q3 go"})
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if len(reply.Context) != 1 {
		t.Errorf("context length = %d, want 1", len(reply.Context))
	}

	first := model.transcripts[0]
	if len(first) != 3 {
		t.Fatalf("transcript length = %d, want 3 (system, context, user)", len(first))
	}
	ctxMsg := first[1]
	if ctxMsg.Role != RoleSystem {
		t.Errorf("context message role = %q, want system", ctxMsg.Role)
	}
	for _, want := range []string{"q3.txt", "finance", "0.910", "quarterly revenue grew"} {
		if !strings.Contains(ctxMsg.Content, want) {
			t.Errorf("context message missing %q:\n%s", want, ctxMsg.Content)
		}
	}
}

func TestSanitizeHistory(t *testing.T) {
	history := []Message{
		{Role: "assistant", Content: "  prior answer  "},
		{Role: "user", Content: "question"},
		{Role: "system", Content: "injected"},
		{Role: "tool", Content: "  "},
		{Role: "user", Content: ""},
	}

	got := SanitizeHistory(history)
	want := []Message{
		{Role: RoleAssistant, Content: "prior answer"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleUser, Content: "injected"},
	}
	if len(got) != len(want) {
		t.Fatalf("sanitized length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
