package packagefile

import (
	"os"
	"path/filepath"

	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// SkeletonComponents names the pieces a Skeleton can synthesize.
const (
	CompControl = "control"
	CompPubDirs = "pubdirs"
)

// Skeleton synthesizes a package without a tar archive: a minimal
// control file and, optionally, empty PUBLISHABLE_DIRS subtrees. It
// satisfies the same shape as PackageFile (Exists/IsValid/Unpack) so
// callers can treat it as a drop-in acquisition source for testing
// and for `ssm install --skeleton` / `ssm install -s`.
type Skeleton struct {
	PackageFile
	Components []string
}

// NewSkeleton builds a Skeleton wrapping the given archive-shaped
// path (only its basename/Name are used; no file needs to exist).
func NewSkeleton(path string, components []string) (*Skeleton, error) {
	pf, err := New(path)
	if err != nil {
		return nil, err
	}
	if components == nil {
		components = []string{CompControl, CompPubDirs}
	}
	return &Skeleton{PackageFile: *pf, Components: components}, nil
}

// Exists always reports true: a skeleton has no backing archive file.
func (s *Skeleton) Exists() bool { return true }

// IsValid always reports true for the same reason.
func (s *Skeleton) IsValid() bool { return true }

func (s *Skeleton) has(component string) bool {
	for _, c := range s.Components {
		if c == component {
			return true
		}
	}
	return false
}

// Unpack creates the package directory and, per s.Components, a
// minimal control.json and/or empty PUBLISHABLE_DIRS subtrees.
func (s *Skeleton) Unpack(dstDir string) error {
	pkgPath := filepath.Join(dstDir, s.Name)
	if err := os.MkdirAll(pkgPath, 0o755); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "creating skeleton package directory %s", pkgPath)
	}

	p, err := pkg.New(pkgPath)
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindValidation, err, "could not unpack skeleton package file")
	}

	if s.has(CompControl) {
		c, err := p.GetControl(false)
		if err != nil {
			return ssmerr.Wrap(ssmerr.KindValidation, err, "could not unpack skeleton package file")
		}
		c.Set("name", p.Short)
		c.Set("version", p.Version)
		c.Set("platform", p.Platform)
		c.Set("summary", s.Name)
		if err := p.PutControl(c); err != nil {
			return err
		}
	}

	if s.has(CompPubDirs) {
		for _, dir := range pkg.PublishableDirs {
			path := filepath.Join(p.Path, dir)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.MkdirAll(path, 0o755); err != nil {
					return ssmerr.Wrap(ssmerr.KindIO, err, "creating %s", path)
				}
			}
		}
	}

	return nil
}
