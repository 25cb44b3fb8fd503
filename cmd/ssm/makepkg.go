package main

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/control"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// newMakepkgCmd grounds the "makepkg" verb on ssm_makepkg.py: tar+gzip
// a source directory into a SHORT_VERSION_PLATFORM.ssm archive,
// injecting a generated control.json when asked.
func newMakepkgCmd() *cobra.Command {
	var autoControl bool
	var pkgname string

	cmd := &cobra.Command{
		Use:   "makepkg [<options>] <dir>",
		Short: "Build a package archive from a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcdir := args[0]
			if pkgname != "" {
				autoControl = true
			}
			if _, err := os.Stat(srcdir); err != nil {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find directory")
			}
			if pkgname == "" {
				pkgname = filepath.Base(filepath.Clean(srcdir))
			}
			comps := strings.Split(pkgname, "_")
			if len(comps) != 3 {
				return ssmerr.New(ssmerr.KindValidation, "bad package name (%s)", pkgname)
			}

			controlPath := filepath.Join(srcdir, ".ssm.d/control.json")
			controlPathShort := filepath.Join(pkgname, ".ssm.d/control.json")
			c, _ := control.Load(controlPath)
			if c == nil {
				c = control.New()
			}
			if _, err := os.Stat(controlPath); err != nil && !autoControl {
				return ssmerr.New(ssmerr.KindValidation, "no control.json file (%s)", controlPath)
			}
			if autoControl {
				c = control.New()
				c.Set("name", comps[0])
				c.Set("version", comps[1])
				c.Set("platform", comps[2])
			}

			postInstall := filepath.Join(srcdir, ".ssm.d/post-install")
			preUninstall := filepath.Join(srcdir, ".ssm.d/pre-uninstall")
			if _, err := os.Stat(postInstall); err != nil {
				ssmlog.ExtraInfo("warning: no post-install script (%s)", postInstall)
			}
			if _, err := os.Stat(preUninstall); err != nil {
				ssmlog.ExtraInfo("warning: no pre-uninstall script (%s)", preUninstall)
			}
			shProfile := filepath.Join(srcdir, "etc/profile.d", pkgname+".sh")
			cshProfile := filepath.Join(srcdir, "etc/profile.d", pkgname+".csh")
			if _, err := os.Stat(shProfile); err != nil {
				ssmlog.ExtraInfo("warning: no sh profile script (%s)", shProfile)
			}
			if _, err := os.Stat(cshProfile); err != nil {
				ssmlog.ExtraInfo("warning: no csh profile script (%s)", cshProfile)
			}

			pkgfpath := pkgname + ".ssm"
			if err := writePackageArchive(pkgfpath, srcdir, pkgname, controlPathShort, c); err != nil {
				os.Remove(pkgfpath)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoControl, "auto-control", false, "generate minimal control.json, overriding any existing one")
	cmd.Flags().StringVarP(&pkgname, "package", "p", "", "alternate package name (implies --auto-control)")
	return cmd
}

func writePackageArchive(pkgfpath, srcdir, pkgname, controlPathShort string, c *control.Control) error {
	f, err := os.Create(pkgfpath)
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "creating %s", pkgfpath)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	uname, gname := ownerNames()

	excluded := map[string]bool{
		controlPathShort: true,
		strings.TrimSuffix(controlPathShort, ".json"): true,
	}

	err = filepath.WalkDir(srcdir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcdir, path)
		if err != nil {
			return err
		}
		name := pkgname
		if rel != "." {
			name = filepath.Join(pkgname, rel)
		}
		if excluded[name] {
			if d.IsDir() {
				return nil
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uname, hdr.Gname = uname, gname
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			data, err := os.Open(path)
			if err != nil {
				return err
			}
			defer data.Close()
			if _, err := io.Copy(tw, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "archiving %s", srcdir)
	}

	dumps, err := c.Dumps()
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:  controlPathShort,
		Mode:  0o644,
		Size:  int64(len(dumps)),
		Uname: uname,
		Gname: gname,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "writing control header")
	}
	if _, err := tw.Write([]byte(dumps)); err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "writing control.json")
	}
	return nil
}

func ownerNames() (string, string) {
	u, err := user.Current()
	if err != nil {
		return "", ""
	}
	uname := u.Username
	gname := strconv.Itoa(os.Getgid())
	if g, err := user.LookupGroupId(u.Gid); err == nil {
		gname = g.Name
	}
	return uname, gname
}
