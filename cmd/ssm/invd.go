package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// newInvdCmd grounds the "invd" verb on ssm_invd.py: dump a domain's
// inventory as a JSON object.
func newInvdCmd() *cobra.Command {
	var dompath string

	cmd := &cobra.Command{
		Use:   "invd -d <dompath>",
		Short: "Print a domain's inventory as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dompath == "" {
				return ssmerr.New(ssmerr.KindArgument, "missing -d <dompath>")
			}

			dom := domain.New(dompath)
			if !dom.Exists() {
				return ssmerr.New(ssmerr.KindNotFound, "cannot find domain (%s)", dompath)
			}
			meta, err := dom.GetMeta()
			if err != nil {
				return err
			}
			if meta.GetString("version") == "" {
				return ssmerr.New(ssmerr.KindLegacyUnsupported, "old domain not supported; you may want to upgrade")
			}

			inv, err := dom.GetInventory()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(inv, "", "  ")
			if err != nil {
				return ssmerr.Wrap(ssmerr.KindIO, err, "encoding inventory")
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	return cmd
}
