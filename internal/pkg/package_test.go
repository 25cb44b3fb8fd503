package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePackageDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".ssm.d"), 0o755))
	return dir
}

func TestNewSplitsTriple(t *testing.T) {
	dir := makePackageDir(t, "hello_1.0_linux_x86")
	p, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Short)
	assert.Equal(t, "1.0", p.Version)
	assert.Equal(t, "linux_x86", p.Platform)
}

func TestPutAndGetControl(t *testing.T) {
	dir := makePackageDir(t, "hello_1.0_linux")
	p, err := New(dir)
	require.NoError(t, err)

	c, err := p.GetControl(false)
	require.NoError(t, err)
	c.Set("name", "hello")
	require.NoError(t, p.PutControl(c))

	assert.True(t, p.HasControl(false))
	loaded, err := p.GetControl(false)
	require.NoError(t, err)
	assert.Equal(t, "hello", loaded.GetString("name"))
}

func TestExecuteScriptMissingIsNoop(t *testing.T) {
	dir := makePackageDir(t, "hello_1.0_linux")
	p, err := New(dir)
	require.NoError(t, err)
	assert.NoError(t, p.ExecuteScript("post-install", dir))
}

func TestExecuteScriptNotExecutableFails(t *testing.T) {
	dir := makePackageDir(t, "hello_1.0_linux")
	p, err := New(dir)
	require.NoError(t, err)
	scriptPath := filepath.Join(dir, ".ssm.d/post-install")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\nexit 0\n"), 0o644))
	err = p.ExecuteScript("post-install", dir)
	require.Error(t, err)
}

func TestGetMembers(t *testing.T) {
	dir := makePackageDir(t, "hello_1.0_linux")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin/hello"), []byte("x"), 0o755))

	p, err := New(dir)
	require.NoError(t, err)
	members, err := p.GetMembers("")
	require.NoError(t, err)
	assert.Contains(t, members, "bin/hello")
}

func TestDeterminePlatformSubstitutesEnv(t *testing.T) {
	t.Setenv("SSM_PLATFORM", "linux_x86")
	dir := makePackageDir(t, "hello_1.0_all")
	p, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "linux_x86", DeterminePlatform(p))
}
