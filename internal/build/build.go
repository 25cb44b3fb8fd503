// Package build implements the build orchestrator: given a build
// specification archive (a "bssm" tarball carrying a build script and
// its bcontrol.json), it either fetches an already-built package from
// a repository or builds one from source, dispatching to a Backend.
package build

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// BControl is the decoded contents of a build spec's bcontrol.json.
type BControl struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Platform  string            `json:"platform"`
	Image     string            `json:"image"`
	BHScript  string            `json:"bh-script"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Requires  string            `json:"requires"`
	Provides  string            `json:"provides"`
	Conflicts string            `json:"conflicts"`
}

// Spec describes one build request, grounded on ssm/builder.py's
// Builder constructor arguments.
type Spec struct {
	WorkDir    string
	BssmPath   string
	SourcesURL string
	DomPath    string
	RepoURL    string
	Platform   string
	InitFile   string
	InitPkg    string
}

// Result is returned by Orchestrator.Build: the Python original
// returns a bare (pkgfpath, err) tuple; this adds backend/duration
// since that metadata already flows through the teacher's own build
// pipeline (steps.Build queries image age before rebuilding), just not
// through a return value.
type Result struct {
	PkgPath  string
	Backend  string
	Duration time.Duration
}

// Backend builds one package from an unpacked build spec.
type Backend interface {
	// Name identifies the backend for Result.Backend.
	Name() string
	// Build runs the build script inside whatever environment the
	// backend provides, returning the produced .ssm path.
	Build(spec *Spec, bc *BControl, bssmDir string) (string, error)
}

// Orchestrator selects a Backend per build and coordinates build-spec
// unpacking, matching ssm/builder.py's Builder.run: try the repository
// first, fall back to building from source.
type Orchestrator struct {
	Script Backend
	Docker Backend // may be nil when no Docker daemon is reachable
}

// NewOrchestrator wires the default ScriptBackend and, when a Docker
// daemon is reachable, a DockerBackend.
func NewOrchestrator() *Orchestrator {
	o := &Orchestrator{Script: &ScriptBackend{}}
	if docker, err := NewDockerBackend(); err == nil {
		o.Docker = docker
	}
	return o
}

// Build resolves spec to a package file path: a repository hit if
// available, else a from-source build via the backend bcontrol.json
// selects (DockerBackend when bcontrol carries an "image" and one is
// available, ScriptBackend otherwise).
func (o *Orchestrator) Build(spec *Spec) (*Result, error) {
	if path, err := fetchFromRepo(spec); err == nil {
		return &Result{PkgPath: path, Backend: "repo"}, nil
	}
	return o.buildFromSource(spec)
}

func fetchFromRepo(spec *Spec) (string, error) {
	if spec.RepoURL == "" {
		return "", ssmerr.New(ssmerr.KindNotFound, "no repository configured")
	}
	bc, err := loadBControl(spec.BssmPath)
	if err != nil {
		return "", err
	}
	platform := bc.Platform
	if platform == "" {
		platform = spec.Platform
	}
	name := bc.Name + "_" + bc.Version + "_" + platform
	path := filepath.Join(spec.RepoURL, name+".ssm")
	if _, err := os.Stat(path); err != nil {
		return "", ssmerr.New(ssmerr.KindNotFound, "cannot find %s in repository", name)
	}
	return path, nil
}

func (o *Orchestrator) buildFromSource(spec *Spec) (*Result, error) {
	bc, err := loadBControl(spec.BssmPath)
	if err != nil {
		return nil, err
	}
	if bc.Platform == "" {
		bc.Platform = spec.Platform
	}

	bssmDir, err := unpackBssm(spec.WorkDir, spec.BssmPath)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(bssmDir)

	backend := o.Script
	if bc.Image != "" && o.Docker != nil {
		backend = o.Docker
	}

	ssmlog.Info("building %s_%s_%s via %s", bc.Name, bc.Version, bc.Platform, backend.Name())
	start := time.Now()
	pkgPath, err := backend.Build(spec, bc, bssmDir)
	if err != nil {
		return nil, ssmlog.Failed(err)
	}
	ssmlog.Done()

	return &Result{PkgPath: pkgPath, Backend: backend.Name(), Duration: time.Since(start)}, nil
}

// LoadBControl extracts and decodes bcontrol.json from a build spec
// tarball, for callers (such as the build CLI command) that need to
// inspect a bssm file's metadata before handing it to Orchestrator.
func LoadBControl(bssmPath string) (*BControl, error) {
	return loadBControl(bssmPath)
}

// loadBControl extracts and decodes bcontrol.json from a build spec
// tarball without unpacking the whole archive.
func loadBControl(bssmPath string) (*BControl, error) {
	f, err := os.Open(bssmPath)
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "opening build spec %s", bssmPath)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ssmerr.Wrap(ssmerr.KindIO, err, "reading build spec %s", bssmPath)
		}
		if filepath.Base(hdr.Name) != "bcontrol.json" {
			continue
		}
		var bc BControl
		if err := json.NewDecoder(tr).Decode(&bc); err != nil {
			return nil, ssmerr.Wrap(ssmerr.KindValidation, err, "parsing bcontrol.json")
		}
		return &bc, nil
	}
	return nil, ssmerr.New(ssmerr.KindValidation, "build spec missing bcontrol.json")
}

// unpackBssm extracts bssmPath into a fresh temp directory under
// workDir, refusing any member whose normalized path escapes it
// (grounded on Builder.__unpackbssm's path-traversal guard).
func unpackBssm(workDir, bssmPath string) (string, error) {
	dir, err := os.MkdirTemp(workDir, "ssm-build-")
	if err != nil {
		return "", ssmerr.Wrap(ssmerr.KindIO, err, "creating build temp dir")
	}

	f, err := os.Open(bssmPath)
	if err != nil {
		os.RemoveAll(dir)
		return "", ssmerr.Wrap(ssmerr.KindIO, err, "opening build spec %s", bssmPath)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			os.RemoveAll(dir)
			return "", ssmerr.Wrap(ssmerr.KindIO, err, "reading build spec %s", bssmPath)
		}

		target := filepath.Join(dir, hdr.Name)
		cleaned := filepath.Clean(target)
		if cleaned != dir && !strings.HasPrefix(cleaned, dir+string(filepath.Separator)) {
			os.RemoveAll(dir)
			return "", ssmerr.New(ssmerr.KindUnpack, "refuse to unpack bad member path %q", hdr.Name)
		}

		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(cleaned, 0o755); err != nil {
				os.RemoveAll(dir)
				return "", ssmerr.Wrap(ssmerr.KindUnpack, err, "creating %s", hdr.Name)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
			os.RemoveAll(dir)
			return "", ssmerr.Wrap(ssmerr.KindUnpack, err, "creating parent of %s", hdr.Name)
		}
		out, err := os.OpenFile(cleaned, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)|0o600)
		if err != nil {
			os.RemoveAll(dir)
			return "", ssmerr.Wrap(ssmerr.KindUnpack, err, "creating %s", hdr.Name)
		}
		_, copyErr := io.Copy(out, tr)
		out.Close()
		if copyErr != nil {
			os.RemoveAll(dir)
			return "", ssmerr.Wrap(ssmerr.KindUnpack, copyErr, "writing %s", hdr.Name)
		}
	}

	return dir, nil
}
