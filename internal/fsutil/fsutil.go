// Package fsutil provides the narrated filesystem primitives every
// mutating domain operation builds on: makedirs, symlink, remove,
// rmdir, each logging its action under --verbose and returning a
// structured error instead of raising.
package fsutil

import (
	"os"

	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// Makedirs creates path and any missing parents, mode 0755.
func Makedirs(path string) error {
	ssmlog.Action("makedirs", "%s", path)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "makedirs %s", path)
	}
	return nil
}

// Symlink creates linkname -> src, removing an existing entry at
// linkname first when force is set.
func Symlink(src, linkname string, force bool) error {
	if force {
		if _, err := os.Lstat(linkname); err == nil {
			if err := Remove(linkname); err != nil {
				return err
			}
		}
	}
	ssmlog.Action("symlink", "%s, %s", src, linkname)
	if err := os.Symlink(src, linkname); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "symlink %s -> %s", linkname, src)
	}
	return nil
}

// Remove deletes a single file or symlink.
func Remove(path string) error {
	ssmlog.Action("remove", "%s", path)
	if err := os.Remove(path); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "remove %s", path)
	}
	return nil
}

// RemoveDirs removes path and then each successive empty parent,
// stopping at the first non-empty one, mirroring os.removedirs.
func RemoveDirs(path string) error {
	ssmlog.Action("removedirs", "%s", path)
	for p := path; p != "." && p != "/"; {
		if err := os.Remove(p); err != nil {
			break
		}
		parent := parentDir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return nil
}

// Rmdir removes a single empty directory. Failure (non-empty, or
// shared with another publisher) is not an error to the caller of
// unpublish, so this returns bool, nil-error for "removed or not".
func Rmdir(path string) bool {
	ssmlog.Action("rmdir", "%s", path)
	return os.Remove(path) == nil
}

// RemoveTree recursively removes path.
func RemoveTree(path string) error {
	ssmlog.Action("rmtree", "%s", path)
	if err := os.RemoveAll(path); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "rmtree %s", path)
	}
	return nil
}

func parentDir(path string) string {
	i := len(path) - 1
	for i > 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// IsRealDir reports whether path is a directory and not a symlink.
func IsRealDir(path string) bool {
	fi, err := os.Lstat(path)
	return err == nil && fi.IsDir()
}
