package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/naming"
	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// newPublishCmd grounds the "publish" verb on ssm_publish.py:
// publishing an installed package into a platform tree, unpublishing
// any dependents of whatever it replaces first.
func newPublishCmd() *cobra.Command {
	var dompath, pkgname, pkgref, pubplat, pubdompath string

	cmd := &cobra.Command{
		Use:   "publish -d <dompath> -p <pkgname>",
		Short: "Publish a package into a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pkgref != "" {
				ref, err := naming.SplitPkgRef(pkgref)
				if err != nil {
					return err
				}
				dompath, pkgname = ref.DomPath, ref.Name
			}
			if dompath == "" || pkgname == "" {
				return ssmerr.New(ssmerr.KindArgument, "missing -d/-p or -x")
			}
			if pubdompath == "" {
				pubdompath = dompath
			}

			dom := domain.New(dompath)
			pubdom := domain.New(pubdompath)
			if !dom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain")
			}
			if meta, err := dom.GetMeta(); err != nil {
				return err
			} else if meta.GetString("version") == "" {
				return ssmerr.New(ssmerr.KindLegacyUnsupported, "old domain not supported; you may want to upgrade")
			}
			if !pubdom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find publish domain")
			}
			if meta, err := pubdom.GetMeta(); err != nil {
				return err
			} else if meta.GetString("version") == "" {
				return ssmerr.New(ssmerr.KindLegacyUnsupported, "old publish domain not supported; you may want to upgrade")
			}

			p, err := dom.GetInstalledPackage(pkgname)
			if err != nil {
				return err
			}
			if p == nil {
				return ssmerr.New(ssmerr.KindNotFound, "package not installed")
			}

			if pubplat == "" {
				pubplat = pkg.DeterminePlatform(p)
			}
			if pubplat == "" {
				return ssmerr.New(ssmerr.KindArgument, "cannot determine platform")
			}

			existing, err := pubdom.GetPublishedPackageShort(p.Short, pubplat)
			if err != nil {
				return err
			}
			if existing != nil {
				deppkgs, err := pubdom.GetDependents(existing, pubplat)
				if err != nil {
					return err
				}
				if len(deppkgs) > 1 && !cfg.Force {
					names := make([]string, len(deppkgs))
					for i, dp := range deppkgs {
						names[i] = dp.Name
					}
					fmt.Printf("found dependent packages: %s\n", strings.Join(names, " "))
					fmt.Print("unpublish all (y/n)? ")
					reply, _ := bufio.NewReader(os.Stdin).ReadString('\n')
					if strings.TrimSpace(reply) != "y" {
						return ssmerr.New(ssmerr.KindArgument, "aborting operation")
					}
				}
				for _, dp := range deppkgs {
					ssmlog.Action("unpublishing", "package (%s)", dp.Name)
					if err := pubdom.Unpublish(dp, pubplat, cfg.Force); err != nil {
						return ssmlog.Failed(err)
					}
					ssmlog.Done()
				}
			}

			if err := pubdom.Prepublish(p, pubplat); err != nil {
				return err
			}
			ssmlog.Action("publishing", "package (%s)", p.Name)
			if err := pubdom.Publish(p, pubplat, cfg.Force); err != nil {
				return ssmlog.Failed(err)
			}
			return ssmlog.Done()
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&pkgname, "package", "p", "", "package name")
	cmd.Flags().StringVar(&pubplat, "pp", "", "alternate platform to publish to")
	cmd.Flags().StringVarP(&pubdompath, "publish-to", "P", "", "alternate domain to publish to")
	cmd.Flags().StringVarP(&pkgref, "ref", "x", "", "domain-qualified package reference")
	return cmd
}
