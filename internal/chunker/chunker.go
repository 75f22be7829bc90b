// Package chunker splits document text into overlapping fixed-size windows.
//
// Chunks are the unit of embedding and retrieval: the overlap duplicates
// trailing context into the next chunk so that retrieval stays coherent
// across window boundaries.
package chunker

import "strings"

// Default window parameters, tuned for embedding models with a few thousand
// token context.
const (
	DefaultChunkSize = 1500
	DefaultOverlap   = 200
)

// charsPerToken is the length heuristic used by EstimateTokens.
const charsPerToken = 4

// Chunk splits text into overlapping windows of at most size characters.
// Successive windows start overlap characters before the previous window's
// end. Windows are measured in runes, never in bytes: a boundary cannot land
// inside a multibyte character. Line endings are normalized to \n and each
// chunk is trimmed; chunks that trim to empty are skipped. Empty or
// whitespace-only input yields no chunks.
//
// size and overlap are sanitized: a non-positive size falls back to
// DefaultChunkSize, and overlap is clamped into [0, size).
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	normalized := []rune(strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n")))
	if len(normalized) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(normalized) {
		end := start + size
		if end > len(normalized) {
			end = len(normalized)
		}
		if chunk := strings.TrimSpace(string(normalized[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(normalized) {
			break
		}
		start = end - overlap
	}

	return chunks
}

// EstimateTokens returns a cheap length-based token estimate for text.
// It is a heuristic (length divided by four, minimum one), not a tokenizer;
// consumers must not treat it as authoritative.
func EstimateTokens(text string) int {
	n := (len(text) + charsPerToken/2) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}
