package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/naming"
	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/repository"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// newClonedCmd grounds the "cloned" verb on ssm_cloned.py: create (if
// missing) a destination domain from a source domain's metadata, then
// reinstall and/or republish its packages into it.
func newClonedCmd() *cobra.Command {
	var (
		installed          bool
		installedOverwrite bool
		published          bool
		publishedSrc       bool
		label              string
		platformsCSV       string
		repourl            string
	)

	cmd := &cobra.Command{
		Use:   "cloned [<options>] <srcdom>... <dstdom>",
		Short: "Clone one or more domains into a destination domain",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !installed && !published && !publishedSrc {
				publishedSrc = true
			}

			srcdompaths := args[:len(args)-1]
			dstdompath := args[len(args)-1]

			var platforms []string
			if platformsCSV != "" {
				platforms = strings.Split(platformsCSV, ",")
			}

			for _, srcdompath := range srcdompaths {
				srcdom := domain.New(srcdompath)
				dstdom := domain.New(dstdompath)

				if !srcdom.Exists() {
					return ssmerr.New(ssmerr.KindNotFound, "no domain at srcdompath (%s)", srcdompath)
				}

				srcinv, err := srcdom.GetInventory()
				if err != nil {
					return err
				}
				thisRepourl := repourl
				if thisRepourl == "" {
					if r, ok := srcinv.Meta["repository"].(string); ok {
						thisRepourl = r
					}
				}
				thisLabel := label
				if thisLabel == "" {
					if l, ok := srcinv.Meta["label"].(string); ok {
						thisLabel = l
					}
				}
				repo := repository.New(thisRepourl)

				if !dstdom.Exists() {
					meta := map[string]interface{}{
						"label":      thisLabel,
						"repository": thisRepourl,
						"version":    domain.SSMVersion,
					}
					ssmlog.Action("creating", "dstdom (%s)", dstdom.Path)
					if err := dstdom.Create(meta, cfg.Force); err != nil {
						return ssmlog.Failed(err)
					}
					ssmlog.Done()
				}

				ssmlog.Info("source domain (%s)", srcdompath)

				if installed {
					if thisRepourl == "" {
						return ssmerr.New(ssmerr.KindNotFound, "no repository for installing packages")
					}
					for pkgname := range srcinv.Installed {
						p, err := dstdom.GetInstalledPackage(pkgname)
						if err != nil {
							return err
						}
						if p != nil && !installedOverwrite {
							continue
						}
						pf, err := repo.GetPackageFile(pkgname)
						if err != nil {
							return err
						}
						if pf == nil {
							return ssmerr.New(ssmerr.KindNotFound, "cannot find package (%s) in repository", pkgname)
						}
						ssmlog.Action("installing", "package (%s)", pf.Name)
						if err := dstdom.Install(pf, cfg.Force, false); err != nil {
							return ssmlog.Failed(err)
						}
						ssmlog.Done()
					}
				}

				if published || publishedSrc {
					splatforms := platforms
					if splatforms == nil {
						for plat := range srcinv.Published {
							splatforms = append(splatforms, plat)
						}
					}
					ssmlog.Info("platforms (%s)", strings.Join(splatforms, ","))
					for _, plat := range splatforms {
						for pkgname, target := range srcinv.Published[plat] {
							var pkgpath string
							if published {
								pkgpath = filepath.Join(dstdom.Path, pkgname)
							} else {
								pkgpath = target
							}

							triple, err := naming.ParseTriple(pkgname)
							if err != nil {
								return err
							}

							dpkg, err := dstdom.GetPublishedPackageShort(triple.Short, plat)
							if err != nil {
								return err
							}
							if dpkg != nil {
								ssmlog.Action("unpublishing", "package (%s)", dpkg.Name)
								if err := dstdom.Unpublish(dpkg, plat, cfg.Force); err != nil {
									return ssmlog.Failed(err)
								}
								ssmlog.Done()
							}

							srcKind := "source"
							if published {
								srcKind = "installed"
							}
							p, err := pkg.New(pkgpath)
							if err != nil {
								return err
							}
							ssmlog.Action("publishing", "package (%s) (%s)", p.Name, srcKind)
							if err := dstdom.Publish(p, plat, cfg.Force); err != nil {
								return ssmlog.Failed(err)
							}
							ssmlog.Done()
						}
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&installed, "installed", false, "clone installed packages")
	cmd.Flags().BoolVar(&installedOverwrite, "installed-overwrite", false, "overwrite existing installs")
	cmd.Flags().BoolVar(&published, "published", false, "clone published packages")
	cmd.Flags().BoolVar(&publishedSrc, "published-src", false, "publish from the source domain's package path")
	cmd.Flags().StringVarP(&label, "label", "L", "", "short label for domain")
	cmd.Flags().StringVar(&platformsCSV, "pp", "", "limit publishing to specific platforms")
	cmd.Flags().StringVarP(&repourl, "repository", "r", "", "alternate repository URL")
	return cmd
}
