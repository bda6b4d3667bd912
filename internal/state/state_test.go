package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Endpoint string `json:"endpoint"`
	PID      int    `json:"pid"`
}

func validRecord(r *record) error {
	if r.Endpoint == "" {
		return errors.New("missing endpoint")
	}
	return nil
}

func TestWriteReadDelete(t *testing.T) {
	repo := New(filepath.Join(t.TempDir(), "nested", "state.json"), validRecord)

	_, ok, err := repo.Read()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Write(&record{Endpoint: "http://127.0.0.1:9222", PID: 42}))
	got, ok, err := repo.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record{Endpoint: "http://127.0.0.1:9222", PID: 42}, *got)

	require.NoError(t, repo.Delete())
	require.NoError(t, repo.Delete())
	_, ok, err = repo.Read()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidRecordIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	repo := New(path, validRecord)

	require.NoError(t, repo.Write(&record{PID: 7}))
	_, ok, err := repo.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, path)
}

func TestCorruptRecordIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, ok, err := New[record](path, nil).Read()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, path)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	repo := New[record](filepath.Join(dir, "state.json"), nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Write(&record{Endpoint: "x", PID: i}))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
