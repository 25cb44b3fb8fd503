package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/domain"
	"github.com/ec-ssm/ssm/internal/ssmerr"
)

var diffMarks = map[int]string{-1: "-", 0: "=", 1: "+"}

func diffValue(value string, lvalues, rvalues map[string]bool) int {
	d := 0
	if lvalues[value] {
		d--
	}
	if rvalues[value] {
		d++
	}
	return d
}

func stringSet(keys []string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func sortedUnion(a, b map[string]bool) []string {
	seen := map[string]bool{}
	var out []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// newDiffdCmd grounds the "diffd" verb on ssm_diffd.py: compare two
// domains' metadata, installed registry, and published registry.
func newDiffdCmd() *cobra.Command {
	var compareMeta, compareInstalled, comparePublished bool

	cmd := &cobra.Command{
		Use:   "diffd [<options>] <ldompath> <rdompath>",
		Short: "Compare two domains",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			compares := map[string]bool{"meta": compareMeta, "installed": compareInstalled, "published": comparePublished}
			if !compareMeta && !compareInstalled && !comparePublished {
				compares = map[string]bool{"installed": true, "published": true}
			}

			doms := []*domain.Domain{domain.New(args[0]), domain.New(args[1])}
			invs := make([]*domain.Inventory, 2)
			for i, dom := range doms {
				if !dom.Exists() {
					return ssmerr.New(ssmerr.KindNotFound, "cannot find domain (%s)", dom.Path)
				}
				meta, err := dom.GetMeta()
				if err != nil {
					return err
				}
				if meta.GetString("version") == "" {
					return ssmerr.New(ssmerr.KindLegacyUnsupported, "old domain (%s) not supported", dom.Path)
				}
				inv, err := dom.GetInventory()
				if err != nil {
					return err
				}
				invs[i] = inv
			}
			linv, rinv := invs[0], invs[1]

			if compares["meta"] {
				lnames := make([]string, 0, len(linv.Meta))
				for n := range linv.Meta {
					lnames = append(lnames, n)
				}
				rnames := make([]string, 0, len(rinv.Meta))
				for n := range rinv.Meta {
					rnames = append(rnames, n)
				}
				for _, name := range sortedUnion(stringSet(lnames), stringSet(rnames)) {
					lvalue, rvalue := linv.Meta[name], rinv.Meta[name]
					if lvalue == rvalue {
						fmt.Printf("%s M %s '%v'\n", diffMarks[0], name, lvalue)
					} else {
						fmt.Printf("%s M %s '%v'\n", diffMarks[-1], name, lvalue)
						fmt.Printf("%s M %s '%v'\n", diffMarks[1], name, rvalue)
					}
				}
			}

			if compares["installed"] {
				lnames := make([]string, 0, len(linv.Installed))
				for n := range linv.Installed {
					lnames = append(lnames, n)
				}
				rnames := make([]string, 0, len(rinv.Installed))
				for n := range rinv.Installed {
					rnames = append(rnames, n)
				}
				lset, rset := stringSet(lnames), stringSet(rnames)
				for _, name := range sortedUnion(lset, rset) {
					fmt.Printf("%s I %s\n", diffMarks[diffValue(name, lset, rset)], name)
				}
			}

			if compares["published"] {
				lplatforms := make([]string, 0, len(linv.Published))
				for p := range linv.Published {
					lplatforms = append(lplatforms, p)
				}
				rplatforms := make([]string, 0, len(rinv.Published))
				for p := range rinv.Published {
					rplatforms = append(rplatforms, p)
				}
				for _, platform := range sortedUnion(stringSet(lplatforms), stringSet(rplatforms)) {
					lplatpub := linv.Published[platform]
					rplatpub := rinv.Published[platform]
					lnames := make([]string, 0, len(lplatpub))
					for n := range lplatpub {
						lnames = append(lnames, n)
					}
					rnames := make([]string, 0, len(rplatpub))
					for n := range rplatpub {
						rnames = append(rnames, n)
					}
					lset, rset := stringSet(lnames), stringSet(rnames)
					for _, name := range sortedUnion(lset, rset) {
						fmt.Printf("%s P %s %s\n", diffMarks[diffValue(name, lset, rset)], platform, name)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&compareMeta, "meta", false, "compare meta information")
	cmd.Flags().BoolVar(&compareInstalled, "installed", false, "compare installed")
	cmd.Flags().BoolVar(&comparePublished, "published", false, "compare published")
	return cmd
}
