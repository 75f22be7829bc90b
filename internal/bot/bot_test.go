package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/chat"
	"github.com/ragdesk/ragdesk/internal/knowledge"
	"github.com/ragdesk/ragdesk/internal/session"
)

type fakeSessions struct {
	mu        sync.Mutex
	namespace string
	nsErr     error
	history   []session.Entry

	setCalls      int
	lastSetNS     string
	clearCalls    int
	appended      [][]session.Entry
	appendErr     error
	recentErr     error
	historyLimits []int
}

func (f *fakeSessions) ActiveNamespace(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.namespace, f.nsErr
}

func (f *fakeSessions) SetActiveNamespace(_ context.Context, _, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.lastSetNS = namespace
	f.namespace = strings.TrimSpace(namespace)
	return nil
}

func (f *fakeSessions) ClearActiveNamespace(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.namespace = ""
	return nil
}

func (f *fakeSessions) AppendHistory(_ context.Context, _ string, entries []session.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, entries)
	return f.appendErr
}

func (f *fakeSessions) RecentHistory(_ context.Context, _ string, limit int) ([]session.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyLimits = append(f.historyLimits, limit)
	return f.history, f.recentErr
}

func (f *fakeSessions) appendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type fakeEngine struct {
	reply chat.Reply
	err   error

	calls   int
	lastReq chat.Request
}

func (f *fakeEngine) Ask(_ context.Context, req chat.Request) (chat.Reply, error) {
	f.calls++
	f.lastReq = req
	return f.reply, f.err
}

type fakeFinder struct {
	docs      []knowledge.Document
	lastQuery string
}

func (f *fakeFinder) FindByName(_ context.Context, _, query string, _ int) []knowledge.Document {
	f.lastQuery = query
	return f.docs
}

type fakeLister struct {
	namespaces []string
}

func (f *fakeLister) ListNamespaces(_ context.Context, _ int) ([]string, error) {
	return f.namespaces, nil
}

func newTestBot(sessions *fakeSessions, engine *fakeEngine, finder *fakeFinder, lister *fakeLister) *Bot {
	if sessions == nil {
		sessions = &fakeSessions{}
	}
	if engine == nil {
		engine = &fakeEngine{}
	}
	if finder == nil {
		finder = &fakeFinder{}
	}
	if lister == nil {
		lister = &fakeLister{}
	}
	return New(sessions, engine, finder, lister, nil)
}

func TestHandleMessage_Help(t *testing.T) {
	b := newTestBot(nil, nil, nil, nil)

	for _, text := range []string{"/help", "/HELP", "/help@ragdesk_bot", "  /help  "} {
		got := b.HandleMessage(context.Background(), "chat-1", text)
		if !strings.Contains(got, "/namespace <name>") {
			t.Errorf("HandleMessage(%q) = %q, want help text", text, got)
		}
	}
}

func TestHandleMessage_Reset(t *testing.T) {
	b := newTestBot(nil, nil, nil, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "/reset")
	if !strings.Contains(got, "Context cleared") {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleMessage_EmptyText(t *testing.T) {
	b := newTestBot(nil, nil, nil, nil)

	if got := b.HandleMessage(context.Background(), "chat-1", "   "); got != "" {
		t.Errorf("reply = %q, want empty", got)
	}
}

func TestHandleMessage_NamespaceSet(t *testing.T) {
	sessions := &fakeSessions{}
	b := newTestBot(sessions, nil, nil, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "/namespace  project-docs ")
	if sessions.setCalls != 1 {
		t.Fatalf("set calls = %d, want 1", sessions.setCalls)
	}
	if sessions.lastSetNS != "project-docs" {
		t.Errorf("set namespace = %q, want %q", sessions.lastSetNS, "project-docs")
	}
	if !strings.Contains(got, `"project-docs"`) {
		t.Errorf("reply = %q, want confirmation naming the namespace", got)
	}
}

func TestHandleMessage_NamespaceClear(t *testing.T) {
	sessions := &fakeSessions{namespace: "docs"}
	b := newTestBot(sessions, nil, nil, nil)

	for _, arg := range []string{"clear", "CLEAR", "reset"} {
		got := b.HandleMessage(context.Background(), "chat-1", "/namespace "+arg)
		if !strings.Contains(got, "Namespace cleared") {
			t.Errorf("reply for %q = %q", arg, got)
		}
	}
	if sessions.clearCalls != 3 {
		t.Errorf("clear calls = %d, want 3", sessions.clearCalls)
	}
}

func TestHandleMessage_NamespaceStatus(t *testing.T) {
	sessions := &fakeSessions{namespace: "docs"}
	lister := &fakeLister{namespaces: []string{"docs", "wiki"}}
	b := newTestBot(sessions, nil, nil, lister)

	got := b.HandleMessage(context.Background(), "chat-1", "/namespace")
	for _, want := range []string{"Current namespace: docs", "• docs", "• wiki"} {
		if !strings.Contains(got, want) {
			t.Errorf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestHandleMessage_FilesRequiresQuery(t *testing.T) {
	b := newTestBot(&fakeSessions{namespace: "docs"}, nil, nil, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "/files")
	if !strings.Contains(got, "Usage: /files") {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleMessage_FilesListsMatches(t *testing.T) {
	finder := &fakeFinder{docs: []knowledge.Document{{
		FileName:  "report.pdf",
		SizeBytes: 2048,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}}}
	b := newTestBot(&fakeSessions{namespace: "docs"}, nil, finder, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "/files report")
	if finder.lastQuery != "report" {
		t.Errorf("finder query = %q", finder.lastQuery)
	}
	for _, want := range []string{"Active namespace: docs", "report.pdf", "2 KB", "2026-03-01"} {
		if !strings.Contains(got, want) {
			t.Errorf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestHandleMessage_FilesNoMatches(t *testing.T) {
	b := newTestBot(&fakeSessions{namespace: "docs"}, nil, &fakeFinder{}, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "/files nothing")
	if !strings.Contains(got, "No files matching") {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleMessage_QuestionWithoutNamespace(t *testing.T) {
	engine := &fakeEngine{}
	lister := &fakeLister{namespaces: []string{"docs"}}
	b := newTestBot(&fakeSessions{}, engine, nil, lister)

	got := b.HandleMessage(context.Background(), "chat-1", "what is in my files?")
	if engine.calls != 0 {
		t.Errorf("engine called %d times without a namespace", engine.calls)
	}
	for _, want := range []string{"No namespace selected", "• docs"} {
		if !strings.Contains(got, want) {
			t.Errorf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestHandleMessage_QuestionFlow(t *testing.T) {
	sessions := &fakeSessions{
		namespace: "docs",
		history: []session.Entry{
			{Role: session.RoleUser, Content: "earlier question"},
			{Role: session.RoleAssistant, Content: "earlier answer"},
		},
	}
	engine := &fakeEngine{reply: chat.Reply{Answer: "the answer"}}
	b := newTestBot(sessions, engine, nil, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "what now?")
	if got != "the answer" {
		t.Errorf("reply = %q, want %q", got, "the answer")
	}
	if engine.lastReq.Namespace != "docs" || engine.lastReq.Prompt != "what now?" {
		t.Errorf("engine request = %+v", engine.lastReq)
	}
	if len(engine.lastReq.History) != 2 {
		t.Errorf("history length = %d, want 2", len(engine.lastReq.History))
	}
	if len(sessions.historyLimits) != 1 || sessions.historyLimits[0] != DefaultHistoryLimit {
		t.Errorf("history limits = %v, want [%d]", sessions.historyLimits, DefaultHistoryLimit)
	}

	b.Wait()
	if sessions.appendCount() != 1 {
		t.Fatalf("append calls = %d, want 1", sessions.appendCount())
	}
	appended := sessions.appended[0]
	if len(appended) != 2 {
		t.Fatalf("appended entries = %d, want 2", len(appended))
	}
	if appended[0].Role != session.RoleUser || appended[0].Content != "what now?" {
		t.Errorf("appended user entry = %+v", appended[0])
	}
	if appended[1].Role != session.RoleAssistant || appended[1].Content != "the answer" {
		t.Errorf("appended assistant entry = %+v", appended[1])
	}
}

func TestHandleMessage_EngineFailureApologizes(t *testing.T) {
	sessions := &fakeSessions{namespace: "docs"}
	engine := &fakeEngine{err: errors.New("model unavailable")}
	b := newTestBot(sessions, engine, nil, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "question")
	if got != apologyText {
		t.Errorf("reply = %q, want apology", got)
	}

	b.Wait()
	if sessions.appendCount() != 0 {
		t.Errorf("append calls = %d after failed turn, want 0", sessions.appendCount())
	}
}

func TestHandleMessage_HistoryFailureStillAnswers(t *testing.T) {
	sessions := &fakeSessions{namespace: "docs", recentErr: errors.New("connection reset")}
	engine := &fakeEngine{reply: chat.Reply{Answer: "ok"}}
	b := newTestBot(sessions, engine, nil, nil)

	got := b.HandleMessage(context.Background(), "chat-1", "question")
	if got != "ok" {
		t.Errorf("reply = %q, want %q", got, "ok")
	}
	if len(engine.lastReq.History) != 0 {
		t.Errorf("history length = %d, want 0", len(engine.lastReq.History))
	}
	b.Wait()
}
