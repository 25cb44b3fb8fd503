package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPackageFileFilesystemMiss(t *testing.T) {
	r := New(t.TempDir())
	pf, err := r.GetPackageFile("hello_1.0_linux")
	require.NoError(t, err)
	assert.Nil(t, pf)
}

func TestGetPackageFileFilesystemHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello_1.0_linux.ssm")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	r := New(dir)
	pf, err := r.GetPackageFile("hello_1.0_linux")
	require.NoError(t, err)
	require.NotNil(t, pf)
	assert.Equal(t, "hello_1.0_linux", pf.Name)
}

func TestGroupReturnsFirstMatch(t *testing.T) {
	emptyDir := t.TempDir()
	hitDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hitDir, "hello_1.0_linux.ssm"), []byte("x"), 0o644))

	g := NewGroup([]string{emptyDir, hitDir})
	pf, err := g.GetPackageFile("hello_1.0_linux")
	require.NoError(t, err)
	require.NotNil(t, pf)
	assert.Equal(t, hitDir, filepath.Dir(pf.Path))
}

func TestGroupMissEverywhere(t *testing.T) {
	g := NewGroup([]string{t.TempDir(), t.TempDir()})
	pf, err := g.GetPackageFile("hello_1.0_linux")
	require.NoError(t, err)
	assert.Nil(t, pf)
}
