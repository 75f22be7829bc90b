// Package retrieval assembles grounding context for a question: embed the
// query, run a similarity search against the document store, and return the
// ranked matches. Store and embedding failures degrade to empty results so a
// broken retrieval path never aborts a conversation turn.
package retrieval

import (
	"context"
	"strings"

	"github.com/ragdesk/ragdesk/internal/knowledge"
	"github.com/ragdesk/ragdesk/internal/log"
)

// Retrieval defaults. The similarity floor is a hard cutoff, not a hint.
const (
	DefaultMatchCount    = 6
	DefaultMinSimilarity = 0.3
)

// Embedder converts a query to a vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// SearchStore is the document store query contract the service depends on.
type SearchStore interface {
	SimilaritySearch(ctx context.Context, namespace string, queryVec []float32, k int, minSimilarity float64) ([]knowledge.Match, error)
	FindDocumentsByName(ctx context.Context, namespace, query string, limit int) ([]knowledge.Document, error)
}

// Service performs similarity retrieval and name lookups.
type Service struct {
	store         SearchStore
	embedder      Embedder
	matchCount    int
	minSimilarity float64
	logger        log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMatchCount overrides the maximum matches returned per query.
func WithMatchCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.matchCount = n
		}
	}
}

// WithMinSimilarity overrides the similarity floor.
func WithMinSimilarity(min float64) Option {
	return func(s *Service) {
		if min >= 0 {
			s.minSimilarity = min
		}
	}
}

// NewService creates a retrieval service with default bounds.
func NewService(store SearchStore, embedder Embedder, logger log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Service{
		store:         store,
		embedder:      embedder,
		matchCount:    DefaultMatchCount,
		minSimilarity: DefaultMinSimilarity,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve returns the namespace's most similar chunks for the query,
// descending by similarity. An empty query yields no matches. Embedding or
// store failures are logged and yield no matches.
func (s *Service) Retrieve(ctx context.Context, namespace, query string) []knowledge.Match {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, proceeding without context",
			"namespace", namespace, "error", err)
		return nil
	}

	matches, err := s.store.SimilaritySearch(ctx, namespace, vec, s.matchCount, s.minSimilarity)
	if err != nil {
		s.logger.Warn("similarity search failed, proceeding without context",
			"namespace", namespace, "error", err)
		return nil
	}
	return matches
}

// FindByName returns documents whose name contains the query, newest first.
// An empty query matches nothing rather than listing the whole namespace.
// Store failures are logged and yield no results.
func (s *Service) FindByName(ctx context.Context, namespace, query string, limit int) []knowledge.Document {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultMatchCount
	}

	docs, err := s.store.FindDocumentsByName(ctx, namespace, query, limit)
	if err != nil {
		s.logger.Warn("file name lookup failed",
			"namespace", namespace, "query", query, "error", err)
		return nil
	}
	return docs
}
