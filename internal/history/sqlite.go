package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chatctl/internal/llm"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS messages_conversation ON messages(conversation_id, position);`

// SQLiteStore keeps sessions in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history db: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Save replaces the stored messages of name in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, name string, msgs []llm.Message) error {
	if err := validateName(name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE name = ?`, name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, name) VALUES (?, ?)`, id, name); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	case err != nil:
		return fmt.Errorf("save %s: %w", name, err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, position, role, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	defer stmt.Close()
	for i, m := range msgs {
		if _, err := stmt.ExecContext(ctx, id, i, string(m.Role), m.Content); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context, name string) ([]llm.Message, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM conversations WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT role, content
        FROM messages
        WHERE conversation_id = ?
        ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer rows.Close()

	msgs := []llm.Message{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		if !llm.Role(role).Valid() {
			continue
		}
		msgs = append(msgs, llm.Message{Role: llm.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return msgs, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        DELETE FROM messages
        WHERE conversation_id IN (SELECT id FROM conversations WHERE name = ?)`, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM conversations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
