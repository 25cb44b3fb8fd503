package main

import (
	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/naming"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// newUninstallCmd grounds the "uninstall" verb on ssm_uninstall.py.
func newUninstallCmd() *cobra.Command {
	var dompath, pkgname, pkgref string

	cmd := &cobra.Command{
		Use:   "uninstall -d <dompath> -p <pkgname>",
		Short: "Uninstall a package from a domain",
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

			dom := domain.New(dompath)
			if !dom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain")
			}
			p, err := dom.GetInstalledPackage(pkgname)
			if err != nil {
				return err
			}
			if p == nil {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain/package")
			}
			meta, err := dom.GetMeta()
			if err != nil {
				return err
			}
			if meta.GetString("version") == "" {
				return ssmerr.New(ssmerr.KindLegacyUnsupported, "old domain not supported; you may want to upgrade")
			}

			ssmlog.Action("uninstalling", "package (%s)", p.Name)
			if err := dom.Uninstall(p); err != nil {
				return ssmlog.Failed(err)
			}
			return ssmlog.Done()
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&pkgname, "package", "p", "", "package name")
	cmd.Flags().StringVarP(&pkgref, "ref", "x", "", "domain-qualified package reference")
	return cmd
}
