// Package knowledge implements the document store: document and chunk
// persistence plus vector similarity search on PostgreSQL with pgvector.
//
// Nearest-neighbor search is delegated to the database (cosine distance via
// the <=> operator); this package owns the query contract, not the search
// algorithm.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ragdesk/ragdesk/internal/log"
)

// Store manages documents, chunks, and similarity queries.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// SaveDocument persists a document and all its chunks in one transaction.
// Either the document row and every chunk row are written, or nothing is:
// a chunk insert failure must not leave an orphaned zero-chunk document.
// A zero document ID or creation time is filled in.
func (s *Store) SaveDocument(ctx context.Context, doc Document, chunks []Chunk) (Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.SourceType == "" {
		doc.SourceType = SourceTypeUpload
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, namespace, file_name, mime_type, size_bytes, source_type, source_url, tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.Namespace, doc.FileName, doc.MimeType, doc.SizeBytes,
		doc.SourceType, nullText(doc.SourceURL), doc.Tokens, doc.CreatedAt,
	)
	if err != nil {
		return Document{}, fmt.Errorf("inserting document %q: %w", doc.FileName, err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (document_id, chunk_index, content, embedding, token_count)
			VALUES ($1, $2, $3, $4, $5)`,
			doc.ID, c.Index, c.Content, pgvector.NewVector(c.Embedding), c.TokenCount,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Document{}, fmt.Errorf("inserting %d chunks for document %s: %w", len(chunks), doc.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, fmt.Errorf("committing document %s: %w", doc.ID, err)
	}

	s.logger.Debug("saved document",
		"id", doc.ID, "namespace", doc.Namespace, "file_name", doc.FileName, "chunks", len(chunks))
	return doc, nil
}

// SimilaritySearch returns up to k chunks from the namespace whose cosine
// similarity to queryVec is at least minSimilarity, ordered by descending
// similarity.
func (s *Store) SimilaritySearch(ctx context.Context, namespace string, queryVec []float32, k int, minSimilarity float64) ([]Match, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.content,
		       1 - (c.embedding <=> $1) AS similarity,
		       d.id, d.namespace, d.file_name, d.mime_type, d.size_bytes,
		       d.source_type, d.source_url, d.tokens, d.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.namespace = $2
		  AND 1 - (c.embedding <=> $1) >= $3
		ORDER BY c.embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(queryVec), namespace, minSimilarity, k,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search in namespace %q: %w", namespace, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var sourceURL pgtype.Text
		if err := rows.Scan(
			&m.Content, &m.Similarity,
			&m.Document.ID, &m.Document.Namespace, &m.Document.FileName,
			&m.Document.MimeType, &m.Document.SizeBytes, &m.Document.SourceType,
			&sourceURL, &m.Document.Tokens, &m.Document.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		m.Document.SourceURL = sourceURL.String
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading match rows: %w", err)
	}

	return matches, nil
}

// FindDocumentsByName returns documents in the namespace whose display name
// contains the query as a case-insensitive substring, newest first.
func (s *Store) FindDocumentsByName(ctx context.Context, namespace, query string, limit int) ([]Document, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT id, namespace, file_name, mime_type, size_bytes, source_type, source_url, tokens, created_at
		FROM documents
		WHERE namespace = $1 AND file_name ILIKE $2
		ORDER BY created_at DESC
		LIMIT $3`,
		namespace, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("finding documents by name in namespace %q: %w", namespace, err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ListDocuments returns documents in the namespace, newest first.
func (s *Store) ListDocuments(ctx context.Context, namespace string, limit int) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, namespace, file_name, mime_type, size_bytes, source_type, source_url, tokens, created_at
		FROM documents
		WHERE namespace = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		namespace, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents in namespace %q: %w", namespace, err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ListNamespaces returns the distinct namespaces that have at least one
// document, sorted alphabetically.
func (s *Store) ListNamespaces(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT namespace
		FROM documents
		ORDER BY namespace ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scanning namespace row: %w", err)
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading namespace rows: %w", err)
	}

	return namespaces, nil
}

// DeleteDocument removes a document; its chunks cascade.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var d Document
		var sourceURL pgtype.Text
		if err := rows.Scan(
			&d.ID, &d.Namespace, &d.FileName, &d.MimeType, &d.SizeBytes,
			&d.SourceType, &sourceURL, &d.Tokens, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		d.SourceURL = sourceURL.String
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}
	return docs, nil
}

// nullText maps an empty string to SQL NULL.
func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
