package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Source type constants for document provenance.
const (
	// SourceTypeUpload marks documents ingested from an uploaded file.
	SourceTypeUpload = "upload"

	// SourceTypeURL marks documents ingested from a fetched web page.
	SourceTypeURL = "url"
)

// Document is the stored metadata for one ingested document.
// Documents are immutable after ingestion; chunks cascade on delete.
type Document struct {
	ID         uuid.UUID
	Namespace  string
	FileName   string
	MimeType   string
	SizeBytes  int64
	SourceType string
	SourceURL  string // empty when SourceType is upload
	Tokens     int    // estimated token count across all chunks
	CreatedAt  time.Time
}

// Chunk is one overlapping window of a document's text together with its
// embedding vector. Index is zero-based and contiguous within a document.
type Chunk struct {
	Index      int
	Content    string
	Embedding  []float32
	TokenCount int
}

// Match is an ephemeral similarity-search hit: the chunk content, its score,
// and enough document metadata to attribute the context in a prompt.
type Match struct {
	Content    string
	Similarity float64
	Document   Document
}
