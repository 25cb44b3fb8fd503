package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/walker"
)

// newListdCmd grounds the "listd" verb on ssm_listd.py: list, per
// platform, the installed/published packages in a domain, columnized
// unless --long is given.
func newListdCmd() *cobra.Command {
	var dompath, pkgpatt, platpatt string
	var long bool

	cmd := &cobra.Command{
		Use:   "listd -d <dompath>",
		Short: "List packages in a domain",
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

			var platforms []string
			if platpatt == "" && !cfg.ListForAllPlatforms {
				platforms = pkg.DeterminePlatforms()
				if len(platforms) == 0 {
					return ssmerr.New(ssmerr.KindArgument, "cannot determine platforms")
				}
			} else {
				instPlats, err := dom.GetInstalledPlatforms()
				if err != nil {
					return err
				}
				pubPlats, err := dom.GetPublishedPlatforms()
				if err != nil {
					return err
				}
				seen := map[string]bool{}
				for _, p := range append(instPlats, pubPlats...) {
					seen[p] = true
				}
				pattern := platpatt
				if pattern == "" {
					pattern = "*"
				}
				for p := range seen {
					if ok, _ := filepath.Match(pattern, p); ok {
						platforms = append(platforms, p)
					}
				}
			}
			sort.Strings(platforms)

			first := true
			for _, platform := range platforms {
				ipkgs, err := dom.GetInstalledPackages([]string{platform})
				if err != nil {
					return err
				}
				ppkgs, err := dom.GetPublishedPackages([]string{platform})
				if err != nil {
					return err
				}

				name2i := map[string]*pkg.Package{}
				for _, p := range ipkgs {
					name2i[p.Name] = p
				}
				name2p := map[string]*pkg.Package{}
				for _, p := range ppkgs {
					name2p[p.Name] = p
				}
				names := map[string]bool{}
				for n := range name2i {
					names[n] = true
				}
				for n := range name2p {
					names[n] = true
				}
				if pkgpatt != "" {
					for n := range names {
						if ok, _ := filepath.Match(pkgpatt, n); !ok {
							delete(names, n)
						}
					}
				}
				if len(names) == 0 {
					continue
				}
				sorted := make([]string, 0, len(names))
				for n := range names {
					sorted = append(sorted, n)
				}
				sort.Strings(sorted)

				if !first {
					fmt.Println()
				}
				first = false
				fmt.Printf("----- platform (%s) -----\n", platform)

				var lines []string
				for _, name := range sorted {
					state := ""
					var p *pkg.Package
					if ip, ok := name2i[name]; ok {
						state += "I"
						p = ip
					}
					if pp, ok := name2p[name]; ok {
						if strings.Contains(state, "I") {
							state += "P"
						} else {
							state += "p"
						}
						p = pp
					}
					if long {
						lines = append(lines, fmt.Sprintf("%-4s  %-40s  %s", state, name, p.Path))
					} else {
						lines = append(lines, fmt.Sprintf("%-4s  %-40s", state, name))
					}
				}
				if long {
					fmt.Println(strings.Join(lines, "\n"))
				} else {
					cols := walker.Columnize(lines, walker.TerminalWidth(), 2)
					fmt.Println(strings.Join(cols, "\n"))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dompath, "dompath", "d", "", "domain path")
	cmd.Flags().StringVarP(&pkgpatt, "pkgpatt", "p", "", "package name pattern")
	cmd.Flags().StringVar(&platpatt, "pp", "", "platform pattern")
	cmd.Flags().BoolVar(&long, "long", false, "show full package paths")
	return cmd
}
