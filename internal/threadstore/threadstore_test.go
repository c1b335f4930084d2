package threadstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendRaw(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line)
	require.NoError(t, err)
}

func truncate(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.Truncate(path, 0))
}

func TestValidateID(t *testing.T) {
	valid := []string{"abc", "a1b2-c3_d4.e5", "8charid"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}

	invalid := []string{"", "a/b", "a\\b", "..", "a..b", "a/../b", "café"}
	for _, id := range invalid {
		assert.Error(t, ValidateID(id), id)
	}
}

func TestStore_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	require.NoError(t, s.Append("t1", Entry{Turn: 1, Role: "edi", Content: "hi", Ts: 100}))
	require.NoError(t, s.Append("t1", Entry{Turn: 1, Role: "codex", Content: "hello back", Ts: 101}))

	entries := s.Load("t1")
	require.Len(t, entries, 2)
	assert.Equal(t, "edi", entries[0].Role)
	assert.Equal(t, "codex", entries[1].Role)
}

func TestStore_LoadMissingThread(t *testing.T) {
	s := New(t.TempDir())
	assert.Empty(t, s.Load("nope"))
	assert.False(t, s.Exists("nope"))
}

func TestStore_LoadSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Append("t1", Entry{Turn: 1, Role: "edi", Content: "ok", Ts: 1}))

	// Append a corrupt line directly.
	path := filepath.Join(dir, "t1.jsonl")
	appendRaw(t, path, "not json\n")
	appendRaw(t, path, "\n")

	entries := s.Load("t1")
	require.Len(t, entries, 1)
}

func TestStore_ExistsDistinguishesEmptyFromMissing(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	require.NoError(t, s.Append("t1", Entry{Turn: 1, Role: "edi", Content: "x", Ts: 1}))
	// Truncate to empty but keep the file.
	path := filepath.Join(dir, "t1.jsonl")
	truncate(t, path)

	assert.True(t, s.Exists("t1"))
	assert.Empty(t, s.Load("t1"))
	assert.False(t, s.Exists("missing"))
}

func TestStore_PathTraversalRejected(t *testing.T) {
	s := New(t.TempDir())
	assert.Error(t, s.Append("../escape", Entry{Turn: 1}))
	assert.Empty(t, s.Load("../escape"))
}

func TestNextTurn(t *testing.T) {
	assert.Equal(t, 1, NextTurn(nil))
	assert.Equal(t, 3, NextTurn([]Entry{{Turn: 1}, {Turn: 2}}))
	assert.Equal(t, 5, NextTurn([]Entry{{Turn: 4}, {Turn: 1}}))
}

func TestFilterRecent(t *testing.T) {
	entries := []Entry{
		{Turn: 1, Role: "edi"}, {Turn: 1, Role: "codex"},
		{Turn: 2, Role: "edi"}, {Turn: 2, Role: "codex"},
		{Turn: 3, Role: "edi"}, {Turn: 3, Role: "codex"},
	}

	all := FilterRecent(entries, 5)
	assert.Len(t, all, 6)

	recent := FilterRecent(entries, 2)
	require.Len(t, recent, 4)
	for _, e := range recent {
		assert.GreaterOrEqual(t, e.Turn, 2)
	}
}

func TestBinding(t *testing.T) {
	agent, mixed, ok := Binding(nil)
	assert.False(t, ok)
	assert.False(t, mixed)
	assert.Empty(t, agent)

	agent, mixed, ok = Binding([]Entry{{Role: "edi"}, {Role: "codex"}, {Role: "edi"}})
	assert.True(t, ok)
	assert.False(t, mixed)
	assert.Equal(t, "codex", agent)

	_, mixed, ok = Binding([]Entry{{Role: "codex"}, {Role: "claude"}})
	assert.True(t, ok)
	assert.True(t, mixed)
}
