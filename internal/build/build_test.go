package build

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBssm(t *testing.T, path string, bcontrol string, script string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	tw := tar.NewWriter(f)
	defer tw.Close()

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "bcontrol.json", Mode: 0o644, Size: int64(len(bcontrol))}))
	_, err = tw.Write([]byte(bcontrol))
	require.NoError(t, err)

	if script != "" {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "build.sh", Mode: 0o755, Size: int64(len(script))}))
		_, err = tw.Write([]byte(script))
		require.NoError(t, err)
	}
}

func TestLoadBControl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.bssm")
	writeBssm(t, path, `{"name":"hello","version":"1.0","platform":"linux_x86","bh-script":"build.sh"}`, "#!/bin/sh\necho hi\n")

	bc, err := loadBControl(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", bc.Name)
	assert.Equal(t, "build.sh", bc.BHScript)
}

func TestUnpackBssmRejectsTraversal(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "evil.bssm")

	f, err := os.Create(path)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../../etc/passwd", Mode: 0o644, Size: 3}))
	_, err = tw.Write([]byte("hi\n"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	_, err = unpackBssm(workDir, path)
	require.Error(t, err)
}

func TestUnpackBssmExtracts(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "spec.bssm")
	writeBssm(t, path, `{"name":"hello","version":"1.0","platform":"linux_x86","bh-script":"build.sh"}`, "#!/bin/sh\necho hi\n")

	dir, err := unpackBssm(workDir, path)
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	assert.FileExists(t, filepath.Join(dir, "build.sh"))
	assert.FileExists(t, filepath.Join(dir, "bcontrol.json"))
}

func TestOrchestratorPrefersRepo(t *testing.T) {
	workDir := t.TempDir()
	repoDir := t.TempDir()

	path := filepath.Join(workDir, "spec.bssm")
	writeBssm(t, path, `{"name":"hello","version":"1.0","platform":"linux_x86","bh-script":"build.sh"}`, "#!/bin/sh\necho hi\n")

	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "hello_1.0_linux_x86.ssm"), []byte("prebuilt"), 0o644))

	o := &Orchestrator{Script: &ScriptBackend{}}
	result, err := o.Build(&Spec{WorkDir: workDir, BssmPath: path, RepoURL: repoDir, Platform: "linux_x86"})
	require.NoError(t, err)
	assert.Equal(t, "repo", result.Backend)
	assert.Equal(t, filepath.Join(repoDir, "hello_1.0_linux_x86.ssm"), result.PkgPath)
}

func TestScriptBackendRunsBuildScript(t *testing.T) {
	workDir := t.TempDir()
	domDir := t.TempDir()

	script := filepath.Join(t.TempDir(), "build.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	bc := &BControl{Name: "hello", Version: "1.0", Platform: "linux_x86", BHScript: "build.sh"}
	spec := &Spec{WorkDir: workDir, DomPath: domDir}

	backend := &ScriptBackend{}
	_, err := backend.Build(spec, bc, filepath.Dir(script))
	require.NoError(t, err)
}
