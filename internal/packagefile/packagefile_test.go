package packagefile

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ec-ssm/ssm/internal/pkg"
)

func writeTar(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	tw := tar.NewWriter(f)
	defer tw.Close()
	for name, content := range members {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
}

func TestIsValidAcceptsPrefixedMembers(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "hello_1.0_linux.ssm")
	writeTar(t, archive, map[string]string{
		"hello_1.0_linux/.ssm.d/control.json": `{"name":"hello","version":"1.0","platform":"linux"}`,
		"hello_1.0_linux/bin/hello":           "binary",
	})
	pf, err := New(archive)
	require.NoError(t, err)
	assert.True(t, pf.IsValid())
}

// P6: a member whose path escapes the package prefix is rejected.
func TestIsValidRejectsUnprefixedMembers(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "hello_1.0_linux.ssm")
	writeTar(t, archive, map[string]string{
		"../evil": "pwned",
	})
	pf, err := New(archive)
	require.NoError(t, err)
	assert.False(t, pf.IsValid())
}

func TestUnpackRejectsPathTraversal(t *testing.T) {
	srcDir := t.TempDir()
	archive := filepath.Join(srcDir, "hello_1.0_linux.ssm")
	// IsValid's prefix check alone wouldn't catch a traversal disguised
	// under the package's own name; Unpack's normalize-and-prefix-check
	// on the full join is the actual guard under test.
	writeTar(t, archive, map[string]string{
		"hello_1.0_linux/../../evil": "pwned",
	})
	pf, err := New(archive)
	require.NoError(t, err)

	dstDir := t.TempDir()
	err = pf.Unpack(dstDir)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dstDir), "evil"))
	assert.True(t, os.IsNotExist(statErr), "traversal member must not be written outside dstDir")
}

func TestUnpackUpgradesLegacyControl(t *testing.T) {
	srcDir := t.TempDir()
	archive := filepath.Join(srcDir, "hello_1.0_linux.ssm")
	legacy := "Package: hello\nVersion: 1.0\nPlatform: linux\nDescription: a tool\n"
	writeTar(t, archive, map[string]string{
		"hello_1.0_linux/.ssm.d/control": legacy,
	})
	pf, err := New(archive)
	require.NoError(t, err)

	dstDir := t.TempDir()
	require.NoError(t, pf.Unpack(dstDir))

	p, err := pkg.New(filepath.Join(dstDir, "hello_1.0_linux"))
	require.NoError(t, err)
	assert.True(t, p.HasControl(false))

	c, err := p.GetControl(false)
	require.NoError(t, err)
	assert.Equal(t, "hello", c.GetString("name"))
	assert.Equal(t, "a tool", c.GetString("summary"))
}

func TestUnpackRejectsControlTripleMismatch(t *testing.T) {
	srcDir := t.TempDir()
	archive := filepath.Join(srcDir, "hello_1.0_linux.ssm")
	legacy := "Package: hello\nVersion: 2.0\nPlatform: linux\n"
	writeTar(t, archive, map[string]string{
		"hello_1.0_linux/.ssm.d/control": legacy,
	})
	pf, err := New(archive)
	require.NoError(t, err)

	dstDir := t.TempDir()
	err = pf.Unpack(dstDir)
	require.Error(t, err)
}

func TestSkeletonUnpack(t *testing.T) {
	dstDir := t.TempDir()
	skel, err := NewSkeleton(filepath.Join(dstDir, "hello_1.0_linux.ssm"), nil)
	require.NoError(t, err)
	require.NoError(t, skel.Unpack(dstDir))

	p, err := pkg.New(filepath.Join(dstDir, "hello_1.0_linux"))
	require.NoError(t, err)
	assert.True(t, p.HasControl(false))
	for _, d := range pkg.PublishableDirs {
		assert.DirExists(t, filepath.Join(p.Path, d))
	}
}
