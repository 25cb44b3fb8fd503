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

// newUnpublishCmd grounds the "unpublish" verb on ssm_unpublish.py:
// unpublishing a package and, unless forced, confirming before taking
// its dependents down with it.
func newUnpublishCmd() *cobra.Command {
	var dompath, pkgname, pkgref, pubplat string

	cmd := &cobra.Command{
		Use:   "unpublish -d <dompath> -p <pkgname>",
		Short: "Unpublish a package from a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			var dom *domain.Domain
			if pkgref != "" {
				ref, err := naming.SplitPkgRef(pkgref)
				if err != nil {
					return err
				}
				dompath, pubplat = ref.DomPath, ref.Platform
				dom = domain.New(dompath)
				p, err := dom.GetPublishedPackage(ref.Name, pubplat)
				if err != nil {
					return err
				}
				if p == nil {
					return ssmerr.New(ssmerr.KindNotFound, "package is not published")
				}
				pkgname = p.Name
			}
			if dompath == "" || pkgname == "" {
				return ssmerr.New(ssmerr.KindArgument, "missing -d/-p or -x")
			}
			if dom == nil {
				dom = domain.New(dompath)
			}

			if !dom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain")
			}
			if meta, err := dom.GetMeta(); err != nil {
				return err
			} else if meta.GetString("version") == "" {
				return ssmerr.New(ssmerr.KindLegacyUnsupported, "old domain not supported; you may want to upgrade")
			}

			if pubplat == "" {
				triple, err := naming.ParseTriple(pkgname)
				if err == nil {
					pubplat = pkg.DeterminePlatform(&pkg.Package{Platform: triple.Platform})
				}
			}
			if pubplat == "" {
				return ssmerr.New(ssmerr.KindArgument, "cannot determine platform")
			}

			p, err := dom.GetPublishedPackage(pkgname, pubplat)
			if err != nil {
				return err
			}
			if p == nil {
				return ssmerr.New(ssmerr.KindNotFound, "package is not published")
			}

			deppkgs, err := dom.GetDependents(p, pubplat)
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
				if err := dom.Unpublish(dp, pubplat, cfg.Force); err != nil {
					return ssmlog.Failed(err)
				}
				ssmlog.Done()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&pkgname, "package", "p", "", "package name")
	cmd.Flags().StringVar(&pubplat, "pp", "", "alternate platform to unpublish from")
	cmd.Flags().StringVarP(&pkgref, "ref", "x", "", "domain-qualified package reference")
	return cmd
}
