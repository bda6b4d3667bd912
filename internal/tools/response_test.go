package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSerializeWithoutSession(t *testing.T) {
	var r Response
	r.AddResult("one")
	r.AddResultf("two %d", 2)
	r.AddCode(`page.Navigate("https://a.com")`)
	r.IncludeSnapshot()

	out := r.Serialize(context.Background(), nil, zap.NewNop())
	assert.Equal(t, Output{Result: "one\ntwo 2", Code: `page.Navigate("https://a.com")`}, out)
}

func TestEmptyResponseOmitsFields(t *testing.T) {
	var r Response
	assert.Equal(t, Output{}, r.Serialize(context.Background(), nil, zap.NewNop()))
}

func TestTabLine(t *testing.T) {
	assert.Equal(t, "0: (current) [Home](https://a.com/)", tabLine(0, true, "Home", "https://a.com/"))
	assert.Equal(t, "1: [](about:blank)", tabLine(1, false, "", "about:blank"))
}

func TestOutputFile(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2024, 3, 1, 10, 20, 30, 456_000_000, time.UTC)

	path, err := outputFile(filepath.Join(dir, "out"), "page", "png", "", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "page-2024-03-01T10-20-30-456Z.png"), path)
	assert.DirExists(t, filepath.Join(dir, "out"))

	abs := filepath.Join(dir, "nested", "shot.png")
	path, err = outputFile(dir, "page", "png", abs, at)
	require.NoError(t, err)
	assert.Equal(t, abs, path)
	assert.DirExists(t, filepath.Join(dir, "nested"))

	wd, err := os.Getwd()
	require.NoError(t, err)
	path, err = outputFile(dir, "page", "png", "rel.png", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "rel.png"), path)
}
