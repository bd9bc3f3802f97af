package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pybundle/pkg/chain"
	"github.com/odvcencio/pybundle/pkg/xref"
)

type chainOutput struct {
	Target     string              `json:"target"`
	Lines      []string            `json:"lines"`
	Reachable  []string            `json:"reachable"`
	Unresolved []string            `json:"unresolved,omitempty"`
	Edges      map[string][]string `json:"edges"`
}

func newChainCmd(globals *globalFlags) *cobra.Command {
	var depth int
	var qualified bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "chain <target>",
		Short: "Print the dependency chain reachable from a function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := globals.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("depth") {
				cfg.ChainDepth = depth
			}
			s, err := newSession(cmd, cfg)
			if err != nil {
				return err
			}

			graph, err := xref.NewBuilder(s.builder.Loader(), s.logger).Query(args[0])
			if err != nil {
				return err
			}
			s.logger.Debug("call graph built",
				slog.String("target", graph.Root.String()),
				slog.Int("reachable", len(graph.Order)),
				slog.Int("edges", graph.EdgeCount()),
			)

			lines := chain.Lines(graph, chain.Options{MaxDepth: cfg.ChainDepth, Qualified: qualified})
			out := cmd.OutOrStdout()
			if !jsonOutput {
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				return nil
			}

			result := chainOutput{
				Target: graph.Root.String(),
				Lines:  lines,
				Edges:  make(map[string][]string, len(graph.Edges)),
			}
			for _, sym := range graph.Reachable() {
				result.Reachable = append(result.Reachable, sym.String())
			}
			for _, sym := range graph.Unresolved() {
				result.Unresolved = append(result.Unresolved, sym.String())
			}
			for caller, callees := range graph.Edges {
				targets := make([]string, 0, len(callees))
				for _, callee := range callees {
					targets = append(targets, callee.String())
				}
				result.Edges[caller.String()] = targets
			}
			return emitJSON(out, result)
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "maximum chain depth (0 = unlimited)")
	cmd.Flags().BoolVar(&qualified, "qualified", false, "print module-qualified names")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	return cmd
}
