// Package bot implements the conversational front-end: command parsing,
// namespace resolution, and the question flow that ties session state to the
// conversation engine. It is transport-agnostic; callers deliver the reply
// text however they reach the user.
package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ragdesk/ragdesk/internal/chat"
	"github.com/ragdesk/ragdesk/internal/knowledge"
	"github.com/ragdesk/ragdesk/internal/log"
	"github.com/ragdesk/ragdesk/internal/session"
)

// DefaultHistoryLimit is how many prior turns are replayed into a question.
const DefaultHistoryLimit = 10

const (
	namespaceListLimit = 12
	fileLookupLimit    = 10

	helpText = "Hi!\nCommands:\n/help – this help\n/reset – acknowledge reset\n/namespace <name> – choose the active knowledge namespace\n/namespace clear – remove the current namespace\n/files <query> – list files within the active namespace"

	apologyText = "Sorry, something went wrong while answering. Please try again."
)

// Commands accept an optional @botname suffix so group mentions work.
var (
	helpRe      = regexp.MustCompile(`(?i)^/help(?:@\S+)?`)
	resetRe     = regexp.MustCompile(`(?i)^/reset(?:@\S+)?`)
	namespaceRe = regexp.MustCompile(`(?i)^/namespace(?:@\S+)?`)
	filesRe     = regexp.MustCompile(`(?i)^/files(?:@\S+)?`)
)

// SessionStore is the conversation state the bot depends on.
type SessionStore interface {
	ActiveNamespace(ctx context.Context, chatID string) (string, error)
	SetActiveNamespace(ctx context.Context, chatID, namespace string) error
	ClearActiveNamespace(ctx context.Context, chatID string) error
	AppendHistory(ctx context.Context, chatID string, entries []session.Entry) error
	RecentHistory(ctx context.Context, chatID string, limit int) ([]session.Entry, error)
}

// Engine answers one resolved question.
type Engine interface {
	Ask(ctx context.Context, req chat.Request) (chat.Reply, error)
}

// Finder looks up documents by name within a namespace.
type Finder interface {
	FindByName(ctx context.Context, namespace, query string, limit int) []knowledge.Document
}

// NamespaceLister enumerates namespaces that hold documents.
type NamespaceLister interface {
	ListNamespaces(ctx context.Context, limit int) ([]string, error)
}

// Bot routes inbound messages to commands or the question flow.
type Bot struct {
	sessions     SessionStore
	engine       Engine
	finder       Finder
	namespaces   NamespaceLister
	locks        *session.KeyedMutex
	historyLimit int
	logger       log.Logger

	wg sync.WaitGroup
}

// Option configures a Bot.
type Option func(*Bot)

// WithHistoryLimit overrides how many prior turns feed into a question.
func WithHistoryLimit(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.historyLimit = n
		}
	}
}

// New creates a message handler.
func New(sessions SessionStore, engine Engine, finder Finder, namespaces NamespaceLister, logger log.Logger, opts ...Option) *Bot {
	if logger == nil {
		logger = log.NewNop()
	}
	b := &Bot{
		sessions:     sessions,
		engine:       engine,
		finder:       finder,
		namespaces:   namespaces,
		locks:        session.NewKeyedMutex(),
		historyLimit: DefaultHistoryLimit,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleMessage processes one inbound message and returns the reply text.
// Messages for the same conversation are serialized so namespace switches
// and history appends cannot interleave.
func (b *Bot) HandleMessage(ctx context.Context, chatID, text string) string {
	unlock := b.locks.Lock(chatID)
	defer unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	switch {
	case helpRe.MatchString(text):
		return helpText
	case resetRe.MatchString(text):
		return "Context cleared (stateless bot). Fire away!"
	case namespaceRe.MatchString(text):
		return b.handleNamespace(ctx, chatID, stripCommand(namespaceRe, text))
	case filesRe.MatchString(text):
		return b.handleFiles(ctx, chatID, stripCommand(filesRe, text))
	}

	return b.handleQuestion(ctx, chatID, text)
}

// Wait blocks until detached history appends have finished. Called during
// shutdown so in-flight writes are not dropped.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handleNamespace(ctx context.Context, chatID, args string) string {
	if args == "" {
		current, err := b.sessions.ActiveNamespace(ctx, chatID)
		if err != nil {
			b.logger.Error("loading active namespace", "chat_id", chatID, "error", err)
		}

		response := "No namespace selected for this chat."
		if current != "" {
			response = fmt.Sprintf("Current namespace: %s", current)
		}
		if available := b.availableNamespaces(ctx); available != "" {
			response += "\n\nAvailable namespaces:\n" + available
		}
		response += "\n\nUse /namespace <name> to switch or /namespace clear to reset."
		return response
	}

	if strings.EqualFold(args, "clear") || strings.EqualFold(args, "reset") {
		if err := b.sessions.ClearActiveNamespace(ctx, chatID); err != nil {
			b.logger.Error("clearing namespace", "chat_id", chatID, "error", err)
			return fmt.Sprintf("Failed to clear namespace: %v", err)
		}
		return "Namespace cleared. Use /namespace <name> to pick a document context."
	}

	if err := b.sessions.SetActiveNamespace(ctx, chatID, args); err != nil {
		b.logger.Error("setting namespace", "chat_id", chatID, "namespace", args, "error", err)
		return fmt.Sprintf("Failed to set namespace: %v", err)
	}
	return fmt.Sprintf("Namespace set to %q. All answers will use this namespace until you change it.", strings.TrimSpace(args))
}

func (b *Bot) handleFiles(ctx context.Context, chatID, query string) string {
	if query == "" {
		return "Usage: /files <partial file name>"
	}

	namespace, prompt := b.ensureNamespace(ctx, chatID)
	if namespace == "" {
		return prompt
	}

	matches := b.finder.FindByName(ctx, namespace, query, fileLookupLimit)
	if len(matches) == 0 {
		return fmt.Sprintf("No files matching %q.", query)
	}

	var lines []string
	for _, doc := range matches {
		sizeLabel := "unknown size"
		if doc.SizeBytes > 0 {
			sizeLabel = fmt.Sprintf("%d KB", (doc.SizeBytes+512)/1024)
		}
		lines = append(lines, fmt.Sprintf("• %s\n   (%s, uploaded %s)",
			doc.FileName, sizeLabel, doc.CreatedAt.Format("2006-01-02")))
	}
	return fmt.Sprintf("Active namespace: %s\n\nFound files:\n%s", namespace, strings.Join(lines, "\n"))
}

func (b *Bot) handleQuestion(ctx context.Context, chatID, text string) string {
	namespace, prompt := b.ensureNamespace(ctx, chatID)
	if namespace == "" {
		return prompt
	}

	history, err := b.sessions.RecentHistory(ctx, chatID, b.historyLimit)
	if err != nil {
		b.logger.Warn("loading history, proceeding without it", "chat_id", chatID, "error", err)
		history = nil
	}

	reply, err := b.engine.Ask(ctx, chat.Request{
		Namespace: namespace,
		Prompt:    text,
		History:   toChatMessages(history),
	})
	if err != nil {
		b.logger.Error("answering question", "chat_id", chatID, "error", err)
		return apologyText
	}

	b.appendHistoryDetached(ctx, chatID, text, reply.Answer)
	return reply.Answer
}

// ensureNamespace returns the conversation's namespace, or an empty string
// plus the selection prompt to show the user.
func (b *Bot) ensureNamespace(ctx context.Context, chatID string) (string, string) {
	namespace, err := b.sessions.ActiveNamespace(ctx, chatID)
	if err != nil {
		b.logger.Error("loading active namespace", "chat_id", chatID, "error", err)
	}
	if namespace != "" {
		return namespace, ""
	}

	response := "No namespace selected for this chat. Use /namespace <name> to choose one."
	if available := b.availableNamespaces(ctx); available != "" {
		response += "\nAvailable namespaces:\n" + available
	}
	return "", response
}

func (b *Bot) availableNamespaces(ctx context.Context) string {
	namespaces, err := b.namespaces.ListNamespaces(ctx, namespaceListLimit)
	if err != nil {
		b.logger.Warn("listing namespaces", "error", err)
		return ""
	}
	if len(namespaces) == 0 {
		return ""
	}

	lines := make([]string, len(namespaces))
	for i, ns := range namespaces {
		lines[i] = "• " + ns
	}
	return strings.Join(lines, "\n")
}

// appendHistoryDetached persists the turn without blocking answer delivery.
// The write survives the request context being cancelled; failure is logged
// and swallowed.
func (b *Bot) appendHistoryDetached(ctx context.Context, chatID, question, answer string) {
	detached := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := b.sessions.AppendHistory(detached, chatID, []session.Entry{
			{Role: session.RoleUser, Content: question},
			{Role: session.RoleAssistant, Content: answer},
		})
		if err != nil {
			b.logger.Error("appending history", "chat_id", chatID, "error", err)
		}
	}()
}

func toChatMessages(entries []session.Entry) []chat.Message {
	messages := make([]chat.Message, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, chat.Message{Role: e.Role, Content: e.Content})
	}
	return messages
}

func stripCommand(re *regexp.Regexp, text string) string {
	return strings.TrimSpace(re.ReplaceAllString(text, ""))
}
