// Package llm wraps the OpenAI API behind the embedding and chat model
// interfaces the rest of the system consumes.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/ragdesk/ragdesk/internal/chat"
	"github.com/ragdesk/ragdesk/internal/log"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
	requestTimeout    = 60 * time.Second

	// defaultRequestsPerSecond throttles outbound API calls. Burst of one
	// keeps concurrent conversations from stampeding the quota.
	defaultRequestsPerSecond = 5
)

// Client is an OpenAI-backed embedding and chat completion client with
// retry and rate limiting. It is safe for concurrent use.
type Client struct {
	api            *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	temperature    float32
	limiter        *rate.Limiter
	maxRetries     int
	retryDelay     time.Duration
	logger         log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTemperature sets the chat completion sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithRateLimit overrides the outbound requests-per-second throttle.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry overrides the retry count and base delay for remote calls.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient creates an OpenAI client for the given models.
func NewClient(apiKey, chatModel, embeddingModel string, logger log.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	c := &Client{
		api:            openai.NewClient(apiKey),
		chatModel:      chatModel,
		embeddingModel: openai.EmbeddingModel(embeddingModel),
		limiter:        rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		maxRetries:     defaultMaxRetries,
		retryDelay:     defaultRetryDelay,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EmbedTexts embeds a batch of texts in one request, preserving input order
// and one-to-one correspondence. A remote failure after retries is returned;
// there are no partial results.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying embedding request", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(c.retryDelay, attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		resp, err := c.api.CreateEmbeddings(reqCtx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: c.embeddingModel,
		})
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Data) != len(texts) {
			lastErr = fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
			continue
		}

		// The API may reorder data; Index restores input order.
		vectors := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(vectors) {
				return nil, fmt.Errorf("embedding index %d out of range for %d texts", d.Index, len(texts))
			}
			vectors[d.Index] = d.Embedding
		}
		return vectors, nil
	}

	return nil, fmt.Errorf("embedding %d texts after %d attempts: %w", len(texts), c.maxRetries+1, lastErr)
}

// EmbedText embeds a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Complete sends one chat completion request. An empty response from the
// model yields an empty Completion, not an error; the conversation engine
// decides how to degrade.
func (c *Client) Complete(ctx context.Context, messages []chat.Message, tools []chat.ToolDefinition) (chat.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    toAPIMessages(messages),
		Tools:       toAPITools(tools),
		Temperature: c.temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying chat completion", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return chat.Completion{}, ctx.Err()
			case <-time.After(backoff(c.retryDelay, attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return chat.Completion{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		resp, err := c.api.CreateChatCompletion(reqCtx, req)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			return chat.Completion{}, nil
		}
		return fromAPIMessage(resp.Choices[0].Message), nil
	}

	return chat.Completion{}, fmt.Errorf("chat completion after %d attempts: %w", c.maxRetries+1, lastErr)
}

func toAPIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		apiMsg := openai.ChatCompletionMessage{
			Role:       toAPIRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, apiMsg)
	}
	return out
}

func toAPIRole(role string) string {
	switch role {
	case chat.RoleSystem:
		return openai.ChatMessageRoleSystem
	case chat.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case chat.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func toAPITools(tools []chat.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			params = []byte(`{"type":"object"}`)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out
}

func fromAPIMessage(msg openai.ChatCompletionMessage) chat.Completion {
	completion := chat.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		completion.ToolCalls = append(completion.ToolCalls, chat.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return completion
}

// backoff returns an exponentially growing delay for the given attempt.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
