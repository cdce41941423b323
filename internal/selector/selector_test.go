package selector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNew_InvalidRoot(t *testing.T) {
	_, err := New("/nonexistent/path/for/sure", DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestNew_RootIsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notadir.py", "x = 1\n")

	_, err := New(path, DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestSelect_OrderedAndDeduplicated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.py", "x = 1\n")
	writeFile(t, dir, "a.py", "x = 1\n")
	writeFile(t, dir, "sub/c.py", "x = 1\n")
	writeFile(t, dir, "readme.md", "not code\n")

	sel, err := New(dir, DefaultConfig())
	require.NoError(t, err)

	files, err := sel.Select(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 3)
	assert.True(t, strings.HasSuffix(files[0], "a.py"))
	assert.True(t, strings.HasSuffix(files[1], "b.py"))
	assert.True(t, strings.HasSuffix(files[2], filepath.Join("sub", "c.py")))

	// Deterministic across runs
	again, err := sel.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, files, again)
}

func TestSelect_Exclusions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "x = 1\n")
	writeFile(t, dir, "venv/lib/junk.py", "x = 1\n")
	writeFile(t, dir, "__pycache__/app.py", "x = 1\n")
	writeFile(t, dir, "src/.git/hook.py", "x = 1\n")

	sel, err := New(dir, DefaultConfig())
	require.NoError(t, err)

	files, err := sel.Select(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "app.py"))
}

func TestSelect_SizeLimitSkipsNotFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.py", "x = 1\n")
	writeFile(t, dir, "huge.py", strings.Repeat("# padding\n", 100))

	cfg := DefaultConfig()
	cfg.MaxFileSize = 64 // force huge.py over the cap

	sel, err := New(dir, cfg)
	require.NoError(t, err)

	files, err := sel.Select(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "small.py"))
}

func TestSelect_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.py", "x = 1\n")
	writeFile(t, dir, "lib.rb", "x = 1\n")

	cfg := DefaultConfig()
	cfg.Extensions = []string{".rb"}

	sel, err := New(dir, cfg)
	require.NoError(t, err)

	files, err := sel.Select(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "lib.rb"))
}

func TestShouldExclude_ComponentBoundaries(t *testing.T) {
	patterns := []string{"venv/", ".git/"}

	assert.True(t, shouldExclude("venv/x.py", patterns))
	assert.True(t, shouldExclude("src/venv/x.py", patterns))
	assert.True(t, shouldExclude(".git/config", patterns))
	assert.False(t, shouldExclude("myvenv/x.py", patterns))
	assert.False(t, shouldExclude("app.py", patterns))
}
