package main

import (
	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

// newCreatedCmd grounds the "created" verb on ssm_created.py: create a
// new domain at dompath with the given label/repository metadata.
func newCreatedCmd() *cobra.Command {
	var dompath, label, repourl string

	cmd := &cobra.Command{
		Use:   "created -d <dompath>",
		Short: "Create a new domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dompath == "" {
				return ssmerr.New(ssmerr.KindArgument, "missing -d <dompath>")
			}

			meta := map[string]interface{}{
				"label":      label,
				"repository": repourl,
				"version":    domain.SSMVersion,
			}

			ssmlog.Action("creating", "domain (%s)", dompath)
			if err := domain.New(dompath).Create(meta, cfg.Force); err != nil {
				return ssmlog.Failed(err)
			}
			return ssmlog.Done()
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&label, "label", "L", "", "short label for domain")
	cmd.Flags().StringVarP(&repourl, "repository", "r", "", "repository URL")
	return cmd
}
