// Package ingest orchestrates document ingestion: chunk the text, embed all
// chunks in one batch, then persist the document and its chunks atomically.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragdesk/ragdesk/internal/chunker"
	"github.com/ragdesk/ragdesk/internal/knowledge"
	"github.com/ragdesk/ragdesk/internal/log"
)

// Embedder converts texts to vectors, order-preserving.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore persists a document together with its chunks.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc knowledge.Document, chunks []knowledge.Chunk) (knowledge.Document, error)
}

// Input describes one document to ingest.
type Input struct {
	Namespace  string
	FileName   string
	MimeType   string
	SizeBytes  int64
	SourceType string // defaults to upload
	SourceURL  string
	Content    string
}

// Result reports a successful ingestion.
type Result struct {
	Document   knowledge.Document
	ChunkCount int
}

// Pipeline runs the chunk, embed, persist sequence for one document.
type Pipeline struct {
	store     DocumentStore
	embedder  Embedder
	chunkSize int
	overlap   int
	logger    log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChunking overrides the chunk window size and overlap.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) {
		p.chunkSize = size
		p.overlap = overlap
	}
}

// NewPipeline creates an ingestion pipeline with default chunking.
func NewPipeline(store DocumentStore, embedder Embedder, logger log.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = log.NewNop()
	}
	p := &Pipeline{
		store:     store,
		embedder:  embedder,
		chunkSize: chunker.DefaultChunkSize,
		overlap:   chunker.DefaultOverlap,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest validates, chunks, embeds, and persists one document. Nothing is
// persisted before the embedding batch succeeds; on success exactly one
// document and all its chunks exist.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (Result, error) {
	namespace := strings.TrimSpace(in.Namespace)
	if namespace == "" {
		return Result{}, ErrInvalidNamespace
	}
	if in.Content == "" {
		return Result{}, ErrEmptyContent
	}

	texts := chunker.Chunk(in.Content, p.chunkSize, p.overlap)
	if len(texts) == 0 {
		return Result{}, ErrEmptyAfterChunking
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return Result{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	chunks := make([]knowledge.Chunk, len(texts))
	totalTokens := 0
	for i, text := range texts {
		tokens := chunker.EstimateTokens(text)
		totalTokens += tokens
		chunks[i] = knowledge.Chunk{
			Index:      i,
			Content:    text,
			Embedding:  vectors[i],
			TokenCount: tokens,
		}
	}

	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = knowledge.SourceTypeUpload
	}

	doc := knowledge.Document{
		Namespace:  namespace,
		FileName:   in.FileName,
		MimeType:   in.MimeType,
		SizeBytes:  in.SizeBytes,
		SourceType: sourceType,
		SourceURL:  in.SourceURL,
		Tokens:     totalTokens,
	}

	saved, err := p.store.SaveDocument(ctx, doc, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("persisting document %q: %w", in.FileName, err)
	}

	p.logger.Info("ingested document",
		"id", saved.ID, "namespace", saved.Namespace, "file_name", saved.FileName,
		"chunks", len(chunks), "tokens", totalTokens)
	return Result{Document: saved, ChunkCount: len(chunks)}, nil
}
