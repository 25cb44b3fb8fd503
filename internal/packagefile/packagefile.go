// Package packagefile validates and extracts ssm package archives
// (.ssm), and synthesizes skeleton packages without an archive.
package packagefile

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// PackageFile is a validated, on-disk package archive.
type PackageFile struct {
	Path     string
	Filename string
	Name     string
}

// New resolves path to an absolute PackageFile, deriving Name from
// Filename with the ".ssm" suffix stripped.
func New(path string) (*PackageFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "resolving package file path %s", path)
	}
	filename := filepath.Base(abs)
	name := strings.TrimSuffix(filename, ".ssm")
	return &PackageFile{Path: abs, Filename: filename, Name: name}, nil
}

// Exists reports whether the archive file is present.
func (f *PackageFile) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// openArchive opens f.Path as a tar reader, sniffing for gzip first
// and falling back to a plain tar stream, mirroring tarfile.open's
// auto-detection.
func openArchive(path string) (*os.File, *tar.Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var r io.Reader = file
	if gz, err := gzip.NewReader(file); err == nil {
		r = gz
	} else {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, err
		}
	}
	return file, tar.NewReader(r), nil
}

// IsValid opens the archive and confirms every member name is
// prefixed by f.Name, refusing extraction outside the package
// directory.
func (f *PackageFile) IsValid() bool {
	file, tr, err := openArchive(f.Path)
	if err != nil {
		return false
	}
	defer file.Close()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false
		}
		if !strings.HasPrefix(hdr.Name, f.Name) {
			return false
		}
	}
	return true
}

// Unpack extracts the archive into dstDir, then upgrades a legacy
// control file to current format if the package doesn't already have
// one. Every member path is normalized and checked to stay under
// dstDir before being written (P6: tar path safety).
func (f *PackageFile) Unpack(dstDir string) error {
	file, tr, err := openArchive(f.Path)
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindUnpack, err, "opening package file %s", f.Path)
	}
	defer file.Close()

	dstDirAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "resolving destination %s", dstDir)
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ssmerr.Wrap(ssmerr.KindUnpack, err, "reading package file %s", f.Path)
		}
		if err := extractMember(dstDirAbs, hdr, tr); err != nil {
			return err
		}
	}

	return f.upgradeLegacyControl(dstDirAbs)
}

// extractMember writes a single tar entry, refusing any path that
// normalizes outside dstDirAbs.
func extractMember(dstDirAbs string, hdr *tar.Header, tr *tar.Reader) error {
	target := filepath.Join(dstDirAbs, hdr.Name)
	cleaned := filepath.Clean(target)
	if cleaned != dstDirAbs && !strings.HasPrefix(cleaned, dstDirAbs+string(filepath.Separator)) {
		return ssmerr.New(ssmerr.KindUnpack, "archive member %q escapes extraction directory", hdr.Name)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(cleaned, os.FileMode(hdr.Mode)|0o700); err != nil {
			return ssmerr.Wrap(ssmerr.KindUnpack, err, "creating %s", hdr.Name)
		}
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
			return ssmerr.Wrap(ssmerr.KindUnpack, err, "creating parent of %s", hdr.Name)
		}
		if err := os.Symlink(hdr.Linkname, cleaned); err != nil && !os.IsExist(err) {
			return ssmerr.Wrap(ssmerr.KindUnpack, err, "symlinking %s", hdr.Name)
		}
	default:
		if err := os.MkdirAll(filepath.Dir(cleaned), 0o755); err != nil {
			return ssmerr.Wrap(ssmerr.KindUnpack, err, "creating parent of %s", hdr.Name)
		}
		out, err := os.OpenFile(cleaned, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)|0o600)
		if err != nil {
			return ssmerr.Wrap(ssmerr.KindUnpack, err, "creating %s", hdr.Name)
		}
		_, copyErr := io.Copy(out, tr)
		closeErr := out.Close()
		if copyErr != nil {
			return ssmerr.Wrap(ssmerr.KindUnpack, copyErr, "writing %s", hdr.Name)
		}
		if closeErr != nil {
			return ssmerr.Wrap(ssmerr.KindUnpack, closeErr, "closing %s", hdr.Name)
		}
	}
	return nil
}

// upgradeLegacyControl, run after a successful extraction, converts
// .ssm.d/control to .ssm.d/control.json when the latter is absent,
// enforcing that the control's (name, version, platform) triple
// matches the archive filename's triple character for character.
func (f *PackageFile) upgradeLegacyControl(dstDirAbs string) error {
	p, err := pkg.New(filepath.Join(dstDirAbs, f.Name))
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindValidation, err, "bad control file")
	}
	if p.HasControl(false) {
		return nil
	}

	c, err := p.GetControl(true)
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindValidation, err, "bad control file")
	}
	name := c.GetString("name")
	if name == "" {
		return ssmerr.New(ssmerr.KindValidation, "missing control file")
	}

	fields := strings.SplitN(f.Name, "_", 3)
	if len(fields) != 3 {
		return ssmerr.New(ssmerr.KindValidation, "bad archive name %q", f.Name)
	}
	if name != fields[0] {
		return ssmerr.New(ssmerr.KindValidation, "bad control file name mismatch (%s, %s)", name, fields[0])
	}
	if v := c.GetString("version"); v != fields[1] {
		return ssmerr.New(ssmerr.KindValidation, "bad control file version mismatch (%s, %s)", v, fields[1])
	}
	if pl := c.GetString("platform"); pl != fields[2] {
		return ssmerr.New(ssmerr.KindValidation, "bad control file platform mismatch (%s, %s)", pl, fields[2])
	}

	return p.PutControl(c)
}
