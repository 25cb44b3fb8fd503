package walker

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirWalkerSkip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a/inner"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))

	dw := NewDirWalker([]string{root}, true)
	var seen []string
	for {
		path, ok := dw.Next()
		if !ok {
			break
		}
		rel, _ := filepath.Rel(root, path)
		seen = append(seen, rel)
		if rel == "a" {
			dw.Skip()
		}
	}
	sort.Strings(seen)
	assert.Equal(t, []string{".", "a", "b"}, seen)
}

func TestColumnizeSingleColumn(t *testing.T) {
	lines := []string{"one", "two", "three"}
	out := Columnize(lines, 1, 2)
	assert.Equal(t, lines, out)
}

func TestColumnizeWideFitsMultiple(t *testing.T) {
	lines := []string{"aa", "bb", "cc", "dd"}
	out := Columnize(lines, 100, 2)
	assert.Len(t, out, 1)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	records := []Record{{DomainPath: "/dom", State: "IP", Platform: "linux_x86", Name: "hello_1.0_linux_x86"}}
	require.NoError(t, WriteCSV(&buf, records))
	assert.Equal(t, "/dom,IP,linux_x86,hello_1.0_linux_x86\n", buf.String())
}

func TestFindLocatesDomain(t *testing.T) {
	root := t.TempDir()
	domPath := filepath.Join(root, "dom")
	require.NoError(t, os.MkdirAll(filepath.Join(domPath, "etc/ssm.d/installed/linux_x86"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(domPath, "etc/ssm.d/published"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(domPath, "etc/ssm.d/meta.json"), []byte(`{"version":"11.7"}`), 0o644))

	pkgPath := filepath.Join(domPath, "hello_1.0_linux_x86")
	require.NoError(t, os.MkdirAll(pkgPath, 0o755))
	require.NoError(t, os.Symlink(pkgPath, filepath.Join(domPath, "etc/ssm.d/installed/linux_x86/hello_1.0_linux_x86")))

	recs := Find([]string{root}, FindOptions{Platforms: []string{"linux_x86"}})
	require.Len(t, recs, 2)

	var domRec, pkgRec *Record
	for i := range recs {
		if recs[i].Name == "" {
			domRec = &recs[i]
		} else {
			pkgRec = &recs[i]
		}
	}
	require.NotNil(t, domRec)
	require.NotNil(t, pkgRec)
	assert.Equal(t, domPath, domRec.DomainPath)
	assert.Equal(t, "hello_1.0_linux_x86", pkgRec.Name)
	assert.Equal(t, "I", pkgRec.State)
}

func TestFindSkipsMarkedDirectories(t *testing.T) {
	root := t.TempDir()
	skipped := filepath.Join(root, "skip-me")
	require.NoError(t, os.MkdirAll(filepath.Join(skipped, "etc/ssm.d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skipped, ".skip-ssm"), []byte(""), 0o644))

	var skippedPaths []string
	recs := Find([]string{root}, FindOptions{OnSkip: func(p string) { skippedPaths = append(skippedPaths, p) }})
	assert.Empty(t, recs)
	assert.Contains(t, skippedPaths, skipped)
}
