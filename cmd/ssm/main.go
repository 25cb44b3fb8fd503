// Command ssm is the CLI frontend: one cobra subcommand per verb,
// dispatching into the internal/domain, internal/build, and
// internal/walker packages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ec-ssm/ssm/internal/config"
	"github.com/ec-ssm/ssm/internal/ssmerr"
	"github.com/ec-ssm/ssm/internal/ssmlog"
)

const (
	programName = "ssm"
	version     = "11.7"
)

var (
	flagDebug   bool
	flagForce   bool
	flagVerbose bool

	cfg *config.Config
)

func main() {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Simple Software Manager",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ssmerr.Debug = flagDebug
			ssmlog.Debug = flagDebug
			ssmlog.Verbose = flagVerbose

			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			cfg.Debug = flagDebug
			cfg.Force = flagForce
			cfg.Verbose = flagVerbose
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debugging")
	root.PersistentFlags().BoolVar(&flagForce, "force", false, "force operation")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newCreatedCmd(),
		newClonedCmd(),
		newInstallCmd(),
		newUninstallCmd(),
		newPublishCmd(),
		newUnpublishCmd(),
		newFindCmd(),
		newListdCmd(),
		newInvdCmd(),
		newDiffdCmd(),
		newMakepkgCmd(),
		newUpgradedCmd(),
		newBuildCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the ssm version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		},
	)

	if err := root.Execute(); err != nil {
		ssmlog.Errorf("%v", err)
		if e, ok := err.(*ssmerr.Error); ok && ssmlog.Debug && e.Stack != "" {
			fmt.Fprint(os.Stderr, e.Stack)
		}
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if ssmerr.Is(err, ssmerr.KindArgument) {
		return 2
	}
	return 1
}
