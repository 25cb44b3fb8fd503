package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/pkg"
	"github.com/ec-ssm/ssm/internal/walker"
)

func globMatcher(pattern string) func(string) bool {
	if pattern == "" {
		return nil
	}
	return func(s string) bool {
		ok, _ := filepath.Match(pattern, s)
		return ok
	}
}

// newFindCmd grounds the "find" verb on ssm_find.py: walk one or more
// starting paths looking for domains and, within them, installed or
// published packages matching the given glob patterns.
func newFindCmd() *cobra.Command {
	var (
		dompatt  string
		pkgpatt  string
		bothpatt string
		platpatt string
		types    string
		showSkip bool
	)

	cmd := &cobra.Command{
		Use:   "find [<options>] [<path>...]",
		Short: "Find domains and packages under a path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bothpatt != "" {
				dompatt, pkgpatt = bothpatt, bothpatt
			}

			paths := args
			if len(paths) == 0 {
				if v := os.Getenv("SSMUSE_PATH"); v != "" {
					paths = strings.Split(v, ":")
				}
			}

			opts := walker.FindOptions{
				DomainPattern:   globMatcher(dompatt),
				PackagePattern:  globMatcher(pkgpatt),
				PlatformPattern: globMatcher(platpatt),
				Platforms:       pkg.DeterminePlatforms(),
				DomainsOnly:     types == "domain",
			}
			if showSkip {
				opts.OnSkip = func(path string) {
					fmt.Fprintf(os.Stderr, "skipped path (%s)\n", path)
				}
			}

			records := walker.Find(paths, opts)
			for _, r := range records {
				if r.Name == "" {
					fmt.Printf("%-4s  %s\n", "d", r.DomainPath)
					continue
				}
				fmt.Printf("%-4s  %-26s  %s\n", r.State, r.Platform, filepath.Join(r.DomainPath, r.Name))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dompatt, "dompatt", "d", "", "domain path pattern")
	cmd.Flags().StringVarP(&pkgpatt, "pkgpatt", "p", "", "package name pattern")
	cmd.Flags().StringVarP(&bothpatt, "bothpatt", "P", "", "pattern for domain and package")
	cmd.Flags().StringVar(&platpatt, "pp", "", "platform pattern")
	cmd.Flags().StringVarP(&types, "types", "t", "domain,package", "CSV types to search (domain,package)")
	cmd.Flags().BoolVar(&showSkip, "show-skip", false, "show skipped paths")
	return cmd
}
