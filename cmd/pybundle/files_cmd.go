package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pybundle/internal/files"
	"github.com/odvcencio/pybundle/pkg/lang/python"
)

func newFilesCmd(globals *globalFlags) *cobra.Command {
	var sortBy string
	var top int
	var minDefinitions int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "files [target]",
		Short: "List the files a bundle would include",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := globals.loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := newSession(cmd, cfg)
			if err != nil {
				return err
			}

			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			plan, err := s.runner.Plan(target)
			if err != nil {
				return err
			}

			loader := s.builder.Loader()
			indexes := make([]*python.Index, 0, len(plan.Files))
			for _, path := range plan.Files {
				idx, err := loader.Load(path)
				if err != nil {
					s.logger.Debug("skipping file", slog.String("path", loader.Rel(path)), slog.String("error", err.Error()))
					continue
				}
				indexes = append(indexes, idx)
			}

			report, err := files.Build(plan.Root, indexes, plan.Graph, files.Options{
				MinDefinitions: minDefinitions,
				SortBy:         sortBy,
				Top:            top,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return emitJSON(out, report)
			}

			fmt.Fprintf(out, "files: total=%d shown=%d root=%s\n", report.TotalFiles, report.ShownFiles, report.Root)
			for _, entry := range report.Entries {
				line := fmt.Sprintf("%s module=%s definitions=%d imports=%d size=%d",
					entry.Path,
					entry.Module,
					entry.Definitions,
					entry.Imports,
					entry.SizeBytes,
				)
				if plan.Graph != nil {
					line += fmt.Sprintf(" reachable=%d", entry.Reachable)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sortBy, "sort", "path", "sort by path|definitions|imports|size")
	cmd.Flags().IntVar(&top, "top", 50, "maximum number of files to show")
	cmd.Flags().IntVar(&minDefinitions, "min-definitions", 0, "only include files with at least N top-level definitions")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	return cmd
}
