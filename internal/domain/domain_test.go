package domain

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ec-ssm/ssm/internal/packagefile"
	"github.com/ec-ssm/ssm/internal/pkg"
)

func writeArchive(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	tw := tar.NewWriter(f)
	defer tw.Close()
	for name, content := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
}

// S1.
func TestCreate(t *testing.T) {
	domPath := filepath.Join(t.TempDir(), "dom")
	d := New(domPath)
	require.NoError(t, d.Create(map[string]interface{}{"version": SSMVersion}, false))

	for _, p := range []string{"etc/ssm.d/broken", "etc/ssm.d/installed", "etc/ssm.d/published", "etc/ssm.d/self"} {
		_, err := os.Lstat(filepath.Join(domPath, p))
		assert.NoErrorf(t, err, "expected %s to exist", p)
	}
	meta, err := d.GetMeta()
	require.NoError(t, err)
	assert.Equal(t, SSMVersion, meta.GetString("version"))
}

func TestCreateAlreadyExistsWithoutForce(t *testing.T) {
	domPath := filepath.Join(t.TempDir(), "dom")
	d := New(domPath)
	require.NoError(t, d.Create(nil, false))
	err := d.Create(nil, false)
	require.Error(t, err)
}

func installHello(t *testing.T, d *Domain) *pkg.Package {
	t.Helper()
	archiveDir := t.TempDir()
	archive := filepath.Join(archiveDir, "hello_1.0_linux_x86.ssm")
	writeArchive(t, archive, map[string]string{
		"hello_1.0_linux_x86/.ssm.d/control.json": `{"name":"hello","version":"1.0","platform":"linux_x86"}`,
		"hello_1.0_linux_x86/bin/hello":           "binary",
	})
	pf, err := packagefile.New(archive)
	require.NoError(t, err)

	require.NoError(t, d.Install(pf, true, false))

	p, err := pkg.New(filepath.Join(d.Path, "hello_1.0_linux_x86"))
	require.NoError(t, err)
	return p
}

// S2.
func TestInstall(t *testing.T) {
	domPath := filepath.Join(t.TempDir(), "dom")
	d := New(domPath)
	require.NoError(t, d.Create(nil, false))

	p := installHello(t, d)
	assert.FileExists(t, filepath.Join(p.Path, ".ssm.d/control.json"))

	linkPath := filepath.Join(domPath, "etc/ssm.d/installed/linux_x86/hello_1.0_linux_x86")
	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, p.Path, target)
}

// S3 / S4 and P3: publish then unpublish leaves no trace.
func TestPublishUnpublishRoundtrip(t *testing.T) {
	domPath := filepath.Join(t.TempDir(), "dom")
	d := New(domPath)
	require.NoError(t, d.Create(nil, false))
	p := installHello(t, d)

	require.NoError(t, d.Publish(p, "linux_x86", false))

	linkPath := filepath.Join(domPath, "linux_x86/bin/hello")
	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Path, "bin/hello"), target)

	published, err := d.IsPublished(p, nil)
	require.NoError(t, err)
	assert.True(t, published)

	require.NoError(t, d.Unpublish(p, "linux_x86", false))

	_, err = os.Lstat(linkPath)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Lstat(filepath.Join(domPath, "etc/ssm.d/published/linux_x86/hello_1.0_linux_x86"))
	assert.True(t, os.IsNotExist(err))
}

// P8: uninstall fails while published.
func TestUninstallBlockedWhilePublished(t *testing.T) {
	domPath := filepath.Join(t.TempDir(), "dom")
	d := New(domPath)
	require.NoError(t, d.Create(nil, false))
	p := installHello(t, d)
	require.NoError(t, d.Publish(p, "linux_x86", false))

	err := d.Uninstall(p)
	require.Error(t, err)
}

// P7: two packages sharing a published path; unpublishing one leaves
// the other's symlink intact.
func TestUnpublishIsSurgical(t *testing.T) {
	domPath := filepath.Join(t.TempDir(), "dom")
	d := New(domPath)
	require.NoError(t, d.Create(nil, false))

	archiveDir := t.TempDir()

	archiveA := filepath.Join(archiveDir, "a_1.0_linux_x86.ssm")
	writeArchive(t, archiveA, map[string]string{
		"a_1.0_linux_x86/.ssm.d/control.json": `{"name":"a","version":"1.0","platform":"linux_x86"}`,
		"a_1.0_linux_x86/bin/tool":            "aaaa",
	})
	pfA, err := packagefile.New(archiveA)
	require.NoError(t, err)
	require.NoError(t, d.Install(pfA, true, false))
	pA, err := pkg.New(filepath.Join(d.Path, "a_1.0_linux_x86"))
	require.NoError(t, err)

	archiveB := filepath.Join(archiveDir, "b_1.0_linux_x86.ssm")
	writeArchive(t, archiveB, map[string]string{
		"b_1.0_linux_x86/.ssm.d/control.json": `{"name":"b","version":"1.0","platform":"linux_x86"}`,
		"b_1.0_linux_x86/bin/tool":            "bbbb",
	})
	pfB, err := packagefile.New(archiveB)
	require.NoError(t, err)
	require.NoError(t, d.Install(pfB, true, false))
	pB, err := pkg.New(filepath.Join(d.Path, "b_1.0_linux_x86"))
	require.NoError(t, err)

	require.NoError(t, d.Publish(pA, "linux_x86", false))
	require.NoError(t, d.Publish(pB, "linux_x86", true))

	require.NoError(t, d.Unpublish(pA, "linux_x86", false))

	linkPath := filepath.Join(domPath, "linux_x86/bin/tool")
	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(pB.Path, "bin/tool"), target)
}

// S6.
func TestUpgradeLegacy(t *testing.T) {
	domPath := filepath.Join(t.TempDir(), "dom")
	ssmdPath := filepath.Join(domPath, "etc/ssm.d")
	require.NoError(t, os.MkdirAll(filepath.Join(ssmdPath, "installed"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(ssmdPath, "published"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ssmdPath, "version"), []byte("10.0"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ssmdPath, "label"), []byte("foo"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ssmdPath, "sources.list"), []byte("url"), 0o644))

	pkgDir := filepath.Join(domPath, "hello_1.0_linux_x86")
	require.NoError(t, os.MkdirAll(filepath.Join(pkgDir, ".ssm.d"), 0o755))
	require.NoError(t, os.Symlink(pkgDir, filepath.Join(ssmdPath, "installed/hello_1.0_linux_x86")))

	require.NoError(t, UpgradeLegacy(domPath, nil))

	d := New(domPath)
	meta, err := d.GetMeta()
	require.NoError(t, err)
	assert.Equal(t, "foo", meta.GetString("label"))
	assert.Equal(t, "url", meta.GetString("repository"))
	assert.Equal(t, SSMVersion, meta.GetString("version"))

	_, err = os.Lstat(filepath.Join(domPath, "etc/ssm.d/installed/linux_x86/hello_1.0_linux_x86"))
	assert.NoError(t, err)

	_, err = os.Lstat(filepath.Join(ssmdPath, "self"))
	assert.NoError(t, err)

	for _, old := range []string{"version", "label", "sources.list"} {
		_, err := os.Lstat(filepath.Join(ssmdPath, old))
		assert.True(t, os.IsNotExist(err), "expected %s to be removed", old)
	}
}
