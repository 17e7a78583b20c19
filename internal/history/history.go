// Package history persists named conversation transcripts between CLI runs.
package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"chatctl/internal/llm"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidName = errors.New("invalid session name")
)

// Store keeps message histories keyed by session name.
type Store interface {
	Save(ctx context.Context, name string, msgs []llm.Message) error
	Load(ctx context.Context, name string) ([]llm.Message, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Open returns a SQLite store for .db and .sqlite paths and a directory of
// JSON files for anything else.
func Open(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStore(path)
	default:
		return NewFileStore(path)
	}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
