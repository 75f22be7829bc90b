// Package session holds per-conversation state: the active namespace binding
// and a rolling history of prior turns, both backed by PostgreSQL.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragdesk/ragdesk/internal/log"
)

// History entry roles. Any other role is coerced to user on append.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultRetention bounds stored history entries per conversation. Older
// entries are pruned after each append.
const DefaultRetention = 40

// ErrInvalidNamespace indicates an empty namespace after trimming.
var ErrInvalidNamespace = errors.New("namespace must be a non-empty string")

// Entry is one stored history turn.
type Entry struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// Store persists conversation state. It is safe for concurrent use, but
// callers wanting strict per-conversation ordering must serialize externally
// (see KeyedMutex).
type Store struct {
	pool      *pgxpool.Pool
	retention int
	logger    log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides the per-conversation history bound.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// NewStore creates a session store with the default retention bound.
func NewStore(pool *pgxpool.Pool, logger log.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Store{pool: pool, retention: DefaultRetention, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActiveNamespace returns the conversation's bound namespace, or the empty
// string when none is set.
func (s *Store) ActiveNamespace(ctx context.Context, chatID string) (string, error) {
	var namespace string
	err := s.pool.QueryRow(ctx,
		`SELECT namespace FROM chat_namespaces WHERE chat_id = $1`, chatID,
	).Scan(&namespace)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading active namespace for chat %q: %w", chatID, err)
	}
	return namespace, nil
}

// SetActiveNamespace binds the conversation to a namespace. The value is
// trimmed; an empty result is rejected. Last writer wins.
func (s *Store) SetActiveNamespace(ctx context.Context, chatID, namespace string) error {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return ErrInvalidNamespace
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_namespaces (chat_id, namespace, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chat_id) DO UPDATE SET namespace = EXCLUDED.namespace, updated_at = now()`,
		chatID, namespace,
	)
	if err != nil {
		return fmt.Errorf("setting namespace %q for chat %q: %w", namespace, chatID, err)
	}
	return nil
}

// ClearActiveNamespace removes the conversation's namespace binding.
// Clearing an unbound conversation is a no-op.
func (s *Store) ClearActiveNamespace(ctx context.Context, chatID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM chat_namespaces WHERE chat_id = $1`, chatID,
	); err != nil {
		return fmt.Errorf("clearing namespace for chat %q: %w", chatID, err)
	}
	return nil
}

// AppendHistory stores new turns and prunes the conversation's history to
// the retention bound, keeping the most recent entries. Entries are
// sanitized first; an append of only droppable entries is a no-op.
func (s *Store) AppendHistory(ctx context.Context, chatID string, entries []Entry) error {
	sanitized := SanitizeEntries(entries)
	if len(sanitized) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range sanitized {
		batch.Queue(
			`INSERT INTO chat_history (chat_id, role, content) VALUES ($1, $2, $3)`,
			chatID, e.Role, e.Content,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("appending %d history entries for chat %q: %w", len(sanitized), chatID, err)
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM chat_history
		WHERE chat_id = $1
		  AND id NOT IN (
			SELECT id FROM chat_history
			WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		  )`,
		chatID, s.retention,
	)
	if err != nil {
		return fmt.Errorf("pruning history for chat %q: %w", chatID, err)
	}
	return nil
}

// RecentHistory returns up to limit most recent entries, oldest first.
func (s *Store) RecentHistory(ctx context.Context, chatID string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at
		FROM chat_history
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history for chat %q: %w", chatID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}

	// Query order is newest first; callers want conversation order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// SanitizeEntries coerces roles to user unless assistant, trims content, and
// drops entries that trim to empty.
func SanitizeEntries(entries []Entry) []Entry {
	sanitized := make([]Entry, 0, len(entries))
	for _, e := range entries {
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		role := RoleUser
		if e.Role == RoleAssistant {
			role = RoleAssistant
		}
		sanitized = append(sanitized, Entry{Role: role, Content: content, CreatedAt: e.CreatedAt})
	}
	return sanitized
}
