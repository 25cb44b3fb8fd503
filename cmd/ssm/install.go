package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/packagefile"
	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/repository"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// newInstallCmd grounds the "install" verb on ssm_install.py: acquire
// a package from a file, a repository, a source directory, or a bare
// skeleton, then install it into the domain.
func newInstallCmd() *cobra.Command {
	var (
		dompath   string
		pkgfpath  string
		pkgname   string
		repourl   string
		names     string
		srcdir    string
		skeleton  bool
		reinstall bool
	)

	cmd := &cobra.Command{
		Use:   "install -d <dompath> (-f <pkgfile>|-p <pkgname>)",
		Short: "Install a package into a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dompath == "" || (pkgname == "" && pkgfpath == "") {
				return ssmerr.New(ssmerr.KindArgument, "missing -d and (-f or -p)")
			}

			dom := domain.New(dompath)
			if !dom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain")
			}
			meta, err := dom.GetMeta()
			if err != nil {
				return err
			}
			if meta.GetString("version") == "" {
				return ssmerr.New(ssmerr.KindLegacyUnsupported, "old domain not supported; you may want to upgrade")
			}

			switch {
			case pkgfpath != "":
				pf, err := packagefile.New(pkgfpath)
				if err != nil {
					return err
				}
				ssmlog.Action("installing", "package (%s)", pf.Name)
				if err := dom.Install(pf, cfg.Force, reinstall); err != nil {
					return ssmlog.Failed(err)
				}
				return ssmlog.Done()

			case skeleton:
				s, err := packagefile.NewSkeleton(pkgname+".ssm", nil)
				if err != nil {
					return err
				}
				ssmlog.Action("installing", "package skeleton (%s)", s.Name)
				if err := dom.InstallSkeleton(s, cfg.Force, reinstall); err != nil {
					return ssmlog.Failed(err)
				}
				return ssmlog.Done()

			case srcdir != "":
				p, err := pkg.New(dom.Path + "/" + pkgname)
				if err != nil {
					return err
				}
				if p.Exists() && !(reinstall && cfg.Force) {
					return ssmerr.New(ssmerr.KindAlreadyInstalled, "package is installed")
				}

				s, err := packagefile.NewSkeleton(p.Path+".ssm", []string{packagefile.CompControl})
				if err != nil {
					return err
				}

				var entries []string
				if names != "" {
					entries = strings.Split(names, ",")
				} else {
					des, err := os.ReadDir(srcdir)
					if err != nil {
						return ssmerr.Wrap(ssmerr.KindIO, err, "reading source directory %s", srcdir)
					}
					for _, de := range des {
						entries = append(entries, de.Name())
					}
				}
				if err := os.MkdirAll(p.Path, 0o755); err != nil {
					return ssmerr.Wrap(ssmerr.KindIO, err, "creating %s", p.Path)
				}
				for _, name := range entries {
					if strings.Contains(name, "/") {
						ssmlog.ExtraInfo("warning: name (%s) cannot be installed", name)
						continue
					}
					if err := os.Symlink(srcdir+"/"+name, p.Path+"/"+name); err != nil && !os.IsExist(err) {
						return ssmerr.Wrap(ssmerr.KindIO, err, "linking %s", name)
					}
				}

				ssmlog.Action("installing", "package (%s)", s.Name)
				if err := dom.InstallSkeleton(s, true, reinstall); err != nil {
					return ssmlog.Failed(err)
				}
				return ssmlog.Done()

			default:
				var repo *repository.Group
				if repourl != "" {
					repo = repository.NewGroup([]string{repourl})
				} else {
					repo, err = dom.GetRepository()
					if err != nil {
						return err
					}
					if repo == nil {
						return ssmerr.New(ssmerr.KindNotFound, "no repository")
					}
				}
				pf, err := repo.GetPackageFile(pkgname)
				if err != nil {
					return err
				}
				if pf == nil {
					return ssmerr.New(ssmerr.KindNotFound, "cannot find package")
				}
				ssmlog.Action("installing", "package (%s)", pf.Name)
				if err := dom.Install(pf, cfg.Force, reinstall); err != nil {
					return ssmlog.Failed(err)
				}
				return ssmlog.Done()
			}
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&pkgfpath, "file", "f", "", "package file")
	cmd.Flags().StringVarP(&pkgname, "package", "p", "", "package name")
	cmd.Flags().StringVarP(&repourl, "repository", "r", "", "repository URL")
	cmd.Flags().StringVar(&names, "names", "", "CSV list of top-level names to import (with -s)")
	cmd.Flags().StringVarP(&srcdir, "srcdir", "s", "", "source directory to install from")
	cmd.Flags().BoolVar(&skeleton, "skeleton", false, "install package skeleton only")
	cmd.Flags().BoolVar(&reinstall, "reinstall", false, "allow install over existing installation")
	return cmd
}
