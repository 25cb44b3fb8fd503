package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// newUpgradedCmd grounds the "upgraded" verb on ssm_upgraded.py:
// upgrade a legacy domain's on-disk layout, or bump a current domain's
// recorded version.
func newUpgradedCmd() *cobra.Command {
	var dompath, componentsCSV string
	var legacy bool

	cmd := &cobra.Command{
		Use:   "upgraded -d <dompath>",
		Short: "Upgrade a domain to the current version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dompath == "" {
				return ssmerr.New(ssmerr.KindArgument, "missing -d <dompath>")
			}

			dom := domain.New(dompath)
			if !dom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain")
			}

			if legacy || dom.IsLegacy() {
				var components []string
				if componentsCSV != "" {
					components = strings.Split(componentsCSV, ",")
				}
				return domain.UpgradeLegacy(dompath, components)
			}

			meta, err := dom.GetMeta()
			if err != nil {
				return err
			}
			if meta.GetString("version") == "" {
				return ssmerr.New(ssmerr.KindLegacyUnsupported, "domain reports no version; re-run with --legacy")
			}
			all := meta.All()
			all["version"] = domain.SSMVersion
			ssmlog.Action("upgrading", "domain metadata (%s)", dompath)
			if err := dom.PutMeta(all); err != nil {
				return ssmlog.Failed(err)
			}
			return ssmlog.Done()
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&componentsCSV, "components", "c", "", "CSV component names to upgrade")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "treat domain as legacy (v10 and before)")
	return cmd
}
