// Package pkg models an installed package directory: its name triple,
// its control metadata, and its pre/post install scripts.
package pkg

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ec-ssm/ssm/internal/control"
	"github.com/ec-ssm/ssm/internal/naming"
	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// PublishableDirs lists the subtrees a package may contribute to a
// published platform tree.
var PublishableDirs = []string{"bin", "etc/profile.d", "include", "lib", "man", "share"}

// Package is an on-disk package directory.
type Package struct {
	Path     string
	Name     string
	Short    string
	Version  string
	Platform string

	controlPath string
}

// New loads a Package from an absolute directory path, deriving the
// name triple from its basename.
func New(path string) (*Package, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "resolving package path %s", path)
	}
	name := filepath.Base(abs)
	triple, err := naming.ParseTriple(name)
	if err != nil {
		return nil, err
	}
	return &Package{
		Path:        abs,
		Name:        name,
		Short:       triple.Short,
		Version:     triple.Version,
		Platform:    triple.Platform,
		controlPath: filepath.Join(abs, ".ssm.d/control.json"),
	}, nil
}

// Exists reports whether the package directory is present.
func (p *Package) Exists() bool {
	_, err := os.Stat(p.Path)
	return err == nil
}

// HasControl reports whether the current-format control file exists,
// or the legacy one when legacy is true.
func (p *Package) HasControl(legacy bool) bool {
	path := p.controlPath
	if legacy {
		path = filepath.Join(p.Path, ".ssm.d/control")
	}
	_, err := os.Stat(path)
	return err == nil
}

// GetControl loads the package's control, current format, or legacy
// when legacy is true.
func (p *Package) GetControl(legacy bool) (*control.Control, error) {
	if legacy {
		return control.LoadLegacy(filepath.Join(p.Path, ".ssm.d/control")), nil
	}
	return control.Load(p.controlPath)
}

// PutControl writes c to the package's current-format control path,
// creating .ssm.d if necessary.
func (p *Package) PutControl(c *control.Control) error {
	if err := os.MkdirAll(filepath.Dir(p.controlPath), 0o755); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "creating .ssm.d for %s", p.Name)
	}
	return c.Dump(p.controlPath)
}

// ExecuteScript runs a named hook script (post-install, pre-uninstall)
// if present, passing [scriptPath, domPath, packagePath] and the
// SSM_INSTALL_* environment. A missing script is a silent no-op; a
// present but non-executable script, or a nonzero exit, fails with
// ScriptFailed.
func (p *Package) ExecuteScript(name, domPath string) error {
	scriptPath := filepath.Join(p.Path, ".ssm.d", name)
	fi, err := os.Stat(scriptPath)
	if err != nil {
		return nil
	}
	if fi.Mode()&0o111 == 0 {
		return ssmerr.New(ssmerr.KindScriptFailed, "script (%s) is not executable", scriptPath)
	}

	args := []string{scriptPath, domPath, p.Path}
	if os.Getenv("SSM_OLD_PREPOST") != "" {
		args = append([]string{"/bin/sh"}, args...)
	}

	env := append(os.Environ(),
		"SSM_INSTALL_DOMAIN_HOME="+domPath,
		"SSM_INSTALL_PACKAGE_HOME="+p.Path,
		"SSM_INSTALL_PROFILE_PATH="+filepath.Join(p.Path, "etc/profile.d", p.Name+".sh"),
		"SSM_INSTALL_LOGIN_PATH="+filepath.Join(p.Path, "etc/profile.d", p.Name+".csh"),
	)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return ssmerr.Wrap(ssmerr.KindScriptFailed, err, "script (%s) failed", scriptPath)
	}
	return nil
}

// GetMembers returns every relative path under the package matching
// pattern (a regular expression over the relative path); an empty
// pattern matches everything.
func (p *Package) GetMembers(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = ".*"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindArgument, err, "bad member pattern %q", pattern)
	}
	return findPaths(p.Path, "", re)
}

func findPaths(basePath, relPath string, re *regexp.Regexp) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(basePath, relPath))
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "reading %s", relPath)
	}
	var members []string
	for _, e := range entries {
		rel := filepath.Join(relPath, e.Name())
		if !re.MatchString(rel) {
			continue
		}
		if e.IsDir() {
			sub, err := findPaths(basePath, rel, re)
			if err != nil {
				return nil, err
			}
			members = append(members, sub...)
		} else {
			members = append(members, rel)
		}
	}
	return members, nil
}

// DeterminePlatform resolves a package's effective platform: its own
// field unless that is "all"/"multi", in which case the environment's
// SSM_PLATFORM is substituted.
func DeterminePlatform(p *Package) string {
	platform := ""
	if p != nil {
		platform = p.Platform
	}
	if platform == "" || platform == "all" || platform == "multi" {
		return os.Getenv("SSM_PLATFORM")
	}
	return platform
}

// DeterminePlatforms returns the current multi-platform set from
// SSM_PLATFORMS, falling back to SSMUSE_PLATFORMS.
func DeterminePlatforms() []string {
	v := os.Getenv("SSM_PLATFORMS")
	if v == "" {
		v = os.Getenv("SSMUSE_PLATFORMS")
	}
	if v == "" {
		return nil
	}
	return strings.Fields(v)
}
