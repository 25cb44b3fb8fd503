package control

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, c.All())
}

func TestLoadAndDumpRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.json")
	c := New()
	c.Set("name", "hello")
	c.Set("version", "1.0")
	require.NoError(t, c.Dump(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", loaded.GetString("name"))
	assert.Equal(t, "1.0", loaded.GetString("version"))
}

func TestGetDefault(t *testing.T) {
	c := New()
	assert.Equal(t, "fallback", c.Get("missing", "fallback"))
}

func TestLoadLegacyFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control")
	content := "Package: hello\n" +
		"Version: 1.0\n" +
		"Platform: linux_x86\n" +
		"Description: first line\n" +
		" second line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := legacyParagraphFallback([]byte(content))
	assert.Equal(t, "hello", c.GetString("name"))
	assert.Equal(t, "1.0", c.GetString("version"))
	assert.Equal(t, "first line", c.GetString("summary"))
	assert.Equal(t, "second line", c.GetString("description"))
}

func TestLoadLegacyMissingFile(t *testing.T) {
	c := LoadLegacy(filepath.Join(t.TempDir(), "nope"))
	assert.Empty(t, c.All())
}
