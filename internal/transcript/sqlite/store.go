// Package sqlite persists chat transcripts in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/migrations"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

type Store struct {
	db *sql.DB
}

// Open opens path, applies pending migrations and returns a ready store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("transcript sqlite path is required")
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping transcript db: %w", err)
	}
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate transcript db: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Add(ctx context.Context, msg transcript.Message) error {
	if msg.ID == "" || msg.ChatID == "" {
		return fmt.Errorf("message id and chat id are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO message (id, chat_id, creator_id, creator_role, content, created_at, is_generated)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, msg.CreatorID, string(msg.CreatorRole), msg.Content, msg.CreatedAt.UnixMilli(), msg.IsGenerated,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("%w: %s", transcript.ErrDuplicate, msg.ID)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, id, chunk string) (transcript.Message, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE message SET content = content || ? WHERE id = ? AND is_generated = 0`, chunk, id)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("append message content: %w", err)
	}
	if err := s.requireUpdated(ctx, res, id); err != nil {
		return transcript.Message{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) MarkGenerated(ctx context.Context, id string) (transcript.Message, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE message SET is_generated = 1 WHERE id = ? AND is_generated = 0`, id)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("mark message generated: %w", err)
	}
	if err := s.requireUpdated(ctx, res, id); err != nil {
		return transcript.Message{}, err
	}
	return s.Get(ctx, id)
}

// requireUpdated tells a missing message apart from a completed one when a
// conditional update touched no rows.
func (s *Store) requireUpdated(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", transcript.ErrFinalized, id)
}

func (s *Store) Get(ctx context.Context, id string) (transcript.Message, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, chat_id, creator_id, creator_role, content, created_at, is_generated
FROM message
WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transcript.Message{}, fmt.Errorf("%w: %s", transcript.ErrNotFound, id)
		}
		return transcript.Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *Store) List(ctx context.Context, chatID string) ([]transcript.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, chat_id, creator_id, creator_role, content, created_at, is_generated
FROM message
WHERE chat_id = ?
ORDER BY created_at ASC, rowid ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]transcript.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM message WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (transcript.Message, error) {
	var (
		msg         transcript.Message
		role        string
		createdAtMs int64
		generated   bool
	)
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.CreatorID, &role, &msg.Content, &createdAtMs, &generated); err != nil {
		return transcript.Message{}, err
	}
	msg.CreatorRole = transcript.Role(role)
	msg.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	msg.IsGenerated = generated
	return msg, nil
}
