package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	ssmbuild "github.com/ec-ssm/ssm/internal/build"
	"github.com/ec-ssm/ssm/internal/deps"
	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/packagefile"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// loadBuildOrder scans bssmdir for .bssm files, registers each with a
// dependency manager keyed by its bcontrol name, and returns the names
// to build in dependency order, matching ssm_build.py's load_builders.
func loadBuildOrder(bssmdir string, buildnames []string) ([]string, map[string]string, error) {
	dm := deps.NewManager()
	name2bssmpath := map[string]string{}

	entries, err := os.ReadDir(bssmdir)
	if err != nil {
		return nil, nil, ssmerr.Wrap(ssmerr.KindIO, err, "reading bssm directory %s", bssmdir)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".bssm") {
			continue
		}
		bssmpath := filepath.Join(bssmdir, e.Name())
		bc, err := ssmbuild.LoadBControl(bssmpath)
		if err != nil {
			return nil, nil, ssmerr.Wrap(ssmerr.KindValidation, err, "cannot load file (%s)", bssmpath)
		}
		name2bssmpath[bc.Name] = bssmpath
		if err := dm.Add(bc.Name, bc.Version, bc.Requires, bc.Provides, bc.Conflicts); err != nil {
			return nil, nil, err
		}
	}

	order, err := dm.Generate(buildnames)
	if err != nil {
		return nil, nil, err
	}
	// Generate lists every package before its requirements; reverse it
	// so that requirements are built first.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, name2bssmpath, nil
}

// newBuildCmd grounds the "build" verb on ssm_build.py: resolve build
// dependencies, build (or fetch) each package, then optionally install
// and publish it.
func newBuildCmd() *cobra.Command {
	var (
		bssmdir     string
		dompath     string
		platform    string
		sourcesurl  string
		repourl     string
		workdir     string
		initFile    string
		initPkg     string
		dry         bool
		doInstall   bool
		doPublish   bool
		showAll     bool
		showMissing bool
	)

	cmd := &cobra.Command{
		Use:   "build -b <bssmdir> -s <sourcesurl> -d <dompath> -p <platform> <pkgname>...",
		Short: "Build, install, and publish packages from build specs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bssmdir == "" || sourcesurl == "" || dompath == "" || platform == "" {
				return ssmerr.New(ssmerr.KindArgument, "missing -b/-s/-d/-p")
			}
			if workdir == "" {
				var err error
				workdir, err = os.Getwd()
				if err != nil {
					return ssmerr.Wrap(ssmerr.KindIO, err, "getting working directory")
				}
			}
			if err := os.MkdirAll(workdir, 0o755); err != nil {
				return ssmerr.Wrap(ssmerr.KindIO, err, "creating %s", workdir)
			}

			dom := domain.New(dompath)
			if !dom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain")
			}
			if repourl == "" {
				meta, err := dom.GetMeta()
				if err != nil {
					return err
				}
				repourl = meta.GetString("repository")
			}

			order, name2bssmpath, err := loadBuildOrder(bssmdir, args)
			if err != nil {
				return err
			}

			if showAll || showMissing {
				for _, name := range order {
					if showMissing {
						if p, _ := dom.GetInstalledPackage(name); p != nil {
							continue
						}
						if p, _ := dom.GetPublishedPackage(name, platform); p != nil {
							continue
						}
					}
					fmt.Println(name)
				}
			}
			if dry {
				return nil
			}

			orch := ssmbuild.NewOrchestrator()

			for _, name := range order {
				ssmlog.Info("buildname (%s)", name)

				if p, _ := dom.GetPublishedPackage(name, platform); p != nil {
					ssmlog.ExtraInfo("info: package (%s) already published", p.Name)
					continue
				}

				var pkgfpath string
				p, _ := dom.GetInstalledPackage(name)
				if p != nil {
					ssmlog.ExtraInfo("info: package (%s) already installed", p.Name)
				} else {
					if repourl != "" {
						pkgfpath = filepath.Join(repourl, name+".ssm")
					}
					if pkgfpath == "" || !fileExists(pkgfpath) {
						bssmpath, ok := name2bssmpath[name]
						if !ok {
							return ssmerr.New(ssmerr.KindNotFound, "no build spec for %s", name)
						}
						ssmlog.ExtraInfo("info: building package (%s)", name)
						result, err := orch.Build(&ssmbuild.Spec{
							WorkDir:    workdir,
							BssmPath:   bssmpath,
							SourcesURL: sourcesurl,
							DomPath:    dompath,
							RepoURL:    repourl,
							Platform:   platform,
							InitFile:   initFile,
							InitPkg:    initPkg,
						})
						if err != nil {
							return err
						}
						pkgfpath = result.PkgPath
					}

					pf, err := packagefile.New(pkgfpath)
					if err != nil {
						return err
					}
					if !pf.IsValid() {
						return ssmerr.New(ssmerr.KindValidation, "bad package file")
					}

					if doInstall || doPublish {
						ssmlog.Action("installing", "package file (%s)", pf.Name)
						if err := dom.Install(pf, cfg.Force, false); err != nil {
							return ssmlog.Failed(err)
						}
						ssmlog.Done()
					}
					p, err = dom.GetInstalledPackage(name)
					if err != nil {
						return err
					}
				}

				if doPublish && p != nil {
					published, err := dom.IsPublished(p, []string{platform})
					if err != nil {
						return err
					}
					if published {
						ssmlog.ExtraInfo("info: package (%s) already published", p.Name)
						continue
					}
					if err := dom.Prepublish(p, platform); err != nil {
						return err
					}
					ssmlog.Action("publishing", "package (%s) to platform (%s)", p.Name, platform)
					if err := dom.Publish(p, platform, cfg.Force); err != nil {
						return ssmlog.Failed(err)
					}
					ssmlog.Done()
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&bssmdir, "bssmdir", "b", "", "directory containing .bssm files")
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "platform to build for")
	cmd.Flags().StringVarP(&sourcesurl, "sources-url", "s", "", "source URL (BH_SOURCES_URL)")
	cmd.Flags().StringVarP(&repourl, "repository", "r", "", "repository URL")
	cmd.Flags().StringVarP(&workdir, "workdir", "w", "", "work directory, default current directory")
	cmd.Flags().StringVar(&initFile, "init-file", "", "file to load prior to building each package")
	cmd.Flags().StringVar(&initPkg, "init-pkg", "", "package to load prior to building each package")
	cmd.Flags().BoolVar(&dry, "dry", false, "dry run; do not build")
	cmd.Flags().BoolVar(&doInstall, "install", false, "install after successful build")
	cmd.Flags().BoolVar(&doPublish, "publish", false, "publish (and install) after successful build")
	cmd.Flags().BoolVar(&showAll, "show-all", false, "show the ordered list of all packages to build")
	cmd.Flags().BoolVar(&showMissing, "show-missing", false, "show the ordered list of missing packages to build")
	return cmd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
