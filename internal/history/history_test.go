package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chatctl/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	files, err := Open(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	db, err := Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Store{"file": files, "sqlite": db}
}

var transcript = []llm.Message{
	{Role: llm.RoleSystem, Content: "You are terse."},
	{Role: llm.RoleUser, Content: "2+2?"},
	{Role: llm.RoleAssistant, Content: "4"},
}

func TestOpenPicksBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "h.sqlite"))
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)

	s, err = Open(filepath.Join(dir, "plain"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(" ")
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, "work", transcript))

			got, err := s.Load(ctx, "work")
			require.NoError(t, err)
			assert.Equal(t, transcript, got)
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, "work", transcript))
			require.NoError(t, s.Save(ctx, "work", transcript[:1]))

			got, err := s.Load(ctx, "work")
			require.NoError(t, err)
			assert.Equal(t, transcript[:1], got)
		})
	}
}

func TestStoreEmptySession(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, "empty", nil))

			got, err := s.Load(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)
		})
	}
}

func TestStoreDeleteAndList(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, "b", transcript))
			require.NoError(t, s.Save(ctx, "a", transcript))

			names, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, names)

			require.NoError(t, s.Delete(ctx, "a"))
			_, err = s.Load(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err = s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, names)
		})
	}
}

func TestStoreRejectsBadNames(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
				assert.ErrorIs(t, s.Save(ctx, bad, transcript), ErrInvalidName, bad)
				_, err := s.Load(ctx, bad)
				assert.ErrorIs(t, err, ErrInvalidName, bad)
			}
		})
	}
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600))

	_, err = s.Load(context.Background(), "bad")
	assert.Equal(t, llm.Parse, llm.KindOf(err))
}

func TestFileStoreListIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".x-1.tmp"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o700))

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
