package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pybundle/pkg/model"
)

type defsOutput struct {
	Path        string              `json:"path"`
	Module      string              `json:"module"`
	Definitions model.DefinitionMap `json:"definitions"`
	Aliases     []model.Import      `json:"aliases"`
}

func newDefsCmd(globals *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "defs <file>",
		Long:  "Print the definitions and import aliases of one Python file. Relative paths are resolved against --root.",
		Short: "Print the definitions and import aliases of one Python file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := globals.loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := newSession(cmd, cfg)
			if err != nil {
				return err
			}

			loader := s.builder.Loader()
			idx, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return emitJSON(out, defsOutput{
					Path:        loader.Rel(idx.Path),
					Module:      idx.Module,
					Definitions: idx.Definitions,
					Aliases:     idx.Aliases.Imports(),
				})
			}

			fmt.Fprintf(out, "module: %s (%s)\n", idx.Module, loader.Rel(idx.Path))
			for _, name := range idx.Definitions.Names() {
				def := idx.Definitions[name]
				fmt.Fprintf(out, "def %s kind=%s lines=%d-%d calls=%d\n", name, def.Kind, def.StartLine, def.EndLine, len(def.Calls))
			}
			for _, imp := range idx.Aliases.Imports() {
				if imp.FromImport() {
					fmt.Fprintf(out, "alias %s -> %s.%s\n", imp.Alias, imp.Module, imp.Member)
					continue
				}
				fmt.Fprintf(out, "alias %s -> %s\n", imp.Alias, imp.Module)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	return cmd
}
