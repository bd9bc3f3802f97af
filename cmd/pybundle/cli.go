package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	globals := &globalFlags{}
	bundleOpts := &bundleFlags{}

	root := &cobra.Command{
		Use:   "pybundle [target]",
		Short: "Bundle a Python project, or the code one function reaches, into a single text file",
		Long: `pybundle walks a Python project and writes its file tree and source into one
artifact. Given a target such as "pkg.module.function" it follows the calls
reachable from that function and bundles only the files that define them,
together with the dependency chain.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundle(cmd, globals, bundleOpts, args)
		},
	}
	globals.register(root)
	bundleOpts.register(root)

	root.AddCommand(
		newBundleCmd(globals),
		newChainCmd(globals),
		newFilesCmd(globals),
		newDefsCmd(globals),
	)
	return root
}
