package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the database surface the Store needs; *pgxpool.Pool satisfies it.
// Defined by the consumer so tests can substitute a fake.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages conversation persistence. Safe for concurrent use; appends
// for the same session are serialized by the transactional exchange write.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Create creates a new conversation session.
func (s *Store) Create(ctx context.Context, title string) (*Session, error) {
	sess := &Session{ID: uuid.New(), Title: title}
	err := s.db.QueryRow(ctx,
		`INSERT INTO sessions (id, title) VALUES ($1, NULLIF($2, ''))
		 RETURNING created_at, updated_at`,
		sess.ID, title,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "title", title)
	return sess, nil
}

// Get retrieves a session by id. Returns ErrSessionNotFound if absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{ID: id}
	var title *string
	err := s.db.QueryRow(ctx,
		`SELECT title, created_at, updated_at FROM sessions WHERE id = $1`, id,
	).Scan(&title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	if title != nil {
		sess.Title = *title
	}
	return sess, nil
}

// List returns sessions ordered by most recent activity.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]*Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, COALESCE(title, ''), created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// AppendExchange writes the user turn and the resolved assistant turn as one
// transaction. Nothing is persisted until the full exchange is known, so an
// aborted turn leaves no orphaned half-written exchange.
func (s *Store) AppendExchange(ctx context.Context, sessionID uuid.UUID, userText, assistantText string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning exchange transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	const insertMsg = `INSERT INTO messages (session_id, role, content) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, insertMsg, sessionID, RoleUser, userText); err != nil {
		return fmt.Errorf("appending user message: %w", err)
	}
	if _, err := tx.Exec(ctx, insertMsg, sessionID, RoleAssistant, assistantText); err != nil {
		return fmt.Errorf("appending assistant message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing exchange: %w", err)
	}

	s.logger.Debug("appended exchange", "session_id", sessionID)
	return nil
}

// Recent returns the last limit messages of a session, oldest-first.
func (s *Store) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM messages WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	reverse(messages)
	return messages, nil
}

// reverse flips newest-first query results into oldest-first prompt order.
func reverse(messages []Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
