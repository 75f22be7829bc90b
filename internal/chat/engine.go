package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ragdesk/ragdesk/internal/knowledge"
	"github.com/ragdesk/ragdesk/internal/log"
)

const systemPrompt = `You are a helpful assistant answering questions over a document knowledge base. Respect the active namespace context and cite file names when using retrieved snippets. If you cannot find relevant context, answer from general knowledge but mention the limitation.`

// placeholderAnswer is returned when the model produces no usable content.
const placeholderAnswer = "…"

const (
	toolFindFilesByName = "find_files_by_name"
	toolFindLimit       = 10
)

// DefaultMaxToolRounds is the maximum number of model calls per turn. The
// loop fails closed with a placeholder answer once the bound is reached.
const DefaultMaxToolRounds = 5

// Request is one user turn. The caller must have resolved the namespace
// before building a Request; an empty namespace disables retrieval and
// lookups but still produces an answer.
type Request struct {
	Namespace string
	Prompt    string
	History   []Message
}

// ToolInvocation records one executed lookup for the turn's tool log.
type ToolInvocation struct {
	Query   string
	Results []knowledge.Document
}

// Reply is the outcome of one turn. The caller owns history persistence.
type Reply struct {
	Answer  string
	Context []knowledge.Match
	ToolLog []ToolInvocation
}

// Engine runs the conversation loop against a Model and a Retriever.
type Engine struct {
	retriever     Retriever
	model         Model
	logger        log.Logger
	maxToolRounds int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxToolRounds overrides the tool-iteration bound.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxToolRounds = n
		}
	}
}

// NewEngine creates a conversation engine.
func NewEngine(retriever Retriever, model Model, logger log.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	e := &Engine{
		retriever:     retriever,
		model:         model,
		logger:        logger,
		maxToolRounds: DefaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask processes one user turn: retrieve context, call the model, execute any
// requested lookups, and loop until the model returns plain text. Retrieval
// and tool failures degrade silently; only a model-call failure is returned
// as an error.
func (e *Engine) Ask(ctx context.Context, req Request) (Reply, error) {
	var matches []knowledge.Match
	if req.Namespace != "" {
		matches = e.retriever.Retrieve(ctx, req.Namespace, req.Prompt)
	}

	messages := make([]Message, 0, len(req.History)+3)
	messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	if ctxMsg, ok := buildContextMessage(matches); ok {
		messages = append(messages, ctxMsg)
	}
	messages = append(messages, SanitizeHistory(req.History)...)
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})

	tools := []ToolDefinition{findFilesTool()}

	reply := Reply{Context: matches}
	for round := 0; ; round++ {
		if round >= e.maxToolRounds {
			e.logger.Warn("tool round bound reached, answering with placeholder",
				"namespace", req.Namespace, "rounds", round)
			reply.Answer = placeholderAnswer
			return reply, nil
		}

		completion, err := e.model.Complete(ctx, messages, tools)
		if err != nil {
			return Reply{}, fmt.Errorf("completing chat turn: %w", err)
		}

		if len(completion.ToolCalls) > 0 {
			messages = append(messages, Message{
				Role:      RoleAssistant,
				Content:   completion.Content,
				ToolCalls: completion.ToolCalls,
			})
			for _, call := range completion.ToolCalls {
				result, invocation := e.executeTool(ctx, req.Namespace, call)
				if invocation != nil {
					reply.ToolLog = append(reply.ToolLog, *invocation)
				}
				messages = append(messages, Message{
					Role:       RoleTool,
					ToolCallID: call.ID,
					Content:    result,
				})
			}
			continue
		}

		reply.Answer = strings.TrimSpace(completion.Content)
		if reply.Answer == "" {
			reply.Answer = placeholderAnswer
		}
		return reply, nil
	}
}

// executeTool runs one requested tool call and returns the serialized tool
// result plus, for known tools, an invocation log entry.
func (e *Engine) executeTool(ctx context.Context, namespace string, call ToolCall) (string, *ToolInvocation) {
	if call.Name != toolFindFilesByName {
		e.logger.Warn("model requested unknown tool", "tool", call.Name)
		return `{"error":"unknown tool"}`, nil
	}

	var args struct {
		Name  string `json:"name"`
		Query string `json:"query"`
	}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			e.logger.Warn("malformed tool arguments, treating as empty", "error", err)
			args.Name, args.Query = "", ""
		}
	}
	query := args.Name
	if query == "" {
		query = args.Query
	}

	var results []knowledge.Document
	if namespace != "" {
		results = e.retriever.FindByName(ctx, namespace, query, toolFindLimit)
	}

	return marshalToolResults(results), &ToolInvocation{Query: query, Results: results}
}

type toolFileResult struct {
	FileName  string    `json:"file_name"`
	Namespace string    `json:"namespace"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

func marshalToolResults(docs []knowledge.Document) string {
	results := make([]toolFileResult, 0, len(docs))
	for _, d := range docs {
		results = append(results, toolFileResult{
			FileName:  d.FileName,
			Namespace: d.Namespace,
			MimeType:  d.MimeType,
			SizeBytes: d.SizeBytes,
			CreatedAt: d.CreatedAt,
		})
	}
	payload, err := json.Marshal(map[string]any{"results": results})
	if err != nil {
		return `{"results":[]}`
	}
	return string(payload)
}

// buildContextMessage renders retrieved matches into one system message.
// Zero matches yields no message; the turn proceeds ungrounded.
func buildContextMessage(matches []knowledge.Match) (Message, bool) {
	if len(matches) == 0 {
		return Message{}, false
	}

	var b strings.Builder
	b.WriteString("Context retrieved from knowledge base:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "\nFile: %s [namespace: %s] (similarity %.3f)\n%s\n",
			m.Document.FileName, m.Document.Namespace, m.Similarity, m.Content)
	}
	return Message{Role: RoleSystem, Content: b.String()}, true
}

// SanitizeHistory coerces prior turns into a model-safe transcript: any role
// other than assistant becomes user, content is trimmed, and entries that
// trim to empty are dropped.
func SanitizeHistory(history []Message) []Message {
	sanitized := make([]Message, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := RoleUser
		if msg.Role == RoleAssistant {
			role = RoleAssistant
		}
		sanitized = append(sanitized, Message{Role: role, Content: content})
	}
	return sanitized
}

func findFilesTool() ToolDefinition {
	return ToolDefinition{
		Name:        toolFindFilesByName,
		Description: "Lookup files in the current namespace by full or partial file name. Use this when the user asks for a specific document.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Full or partial file name to search for.",
				},
			},
			"required": []string{"name"},
		},
	}
}
