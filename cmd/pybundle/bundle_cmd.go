package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pybundle/internal/bundle"
	"github.com/odvcencio/pybundle/internal/config"
	"github.com/odvcencio/pybundle/internal/watch"
)

type bundleFlags struct {
	output     string
	sliceLines bool
	chainDepth int
	watch      bool
	debounce   time.Duration
	check      bool
	jsonOutput bool
}

func (f *bundleFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.output, "out", "o", "output.txt", "artifact path")
	flags.BoolVar(&f.sliceLines, "slice-lines", false, "keep only the statements the target's call graph needs")
	flags.IntVar(&f.chainDepth, "chain-depth", 0, "limit the rendered dependency chain depth (0 = unlimited)")
	flags.BoolVar(&f.watch, "watch", false, "rebundle whenever a Python file changes")
	flags.DurationVar(&f.debounce, "debounce", watch.DefaultDebounce, "quiet period before a watch rebuild")
	flags.BoolVar(&f.check, "check", false, "exit 2 without writing when the artifact on disk is out of date")
	flags.BoolVar(&f.jsonOutput, "json", false, "print the run report as JSON")
	cmd.MarkFlagsMutuallyExclusive("watch", "check")
}

func (f *bundleFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Output = f.output
	}
	if flags.Changed("slice-lines") {
		cfg.SliceLines = f.sliceLines
	}
	if flags.Changed("chain-depth") {
		cfg.ChainDepth = f.chainDepth
	}
}

func newBundleCmd(globals *globalFlags) *cobra.Command {
	opts := &bundleFlags{}
	cmd := &cobra.Command{
		Use:   "bundle [target]",
		Short: "Write the bundle artifact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundle(cmd, globals, opts, args)
		},
	}
	opts.register(cmd)
	return cmd
}

func runBundle(cmd *cobra.Command, globals *globalFlags, opts *bundleFlags, args []string) error {
	cfg, err := globals.loadConfig(cmd)
	if err != nil {
		return err
	}
	opts.apply(cmd, &cfg)

	s, err := newSession(cmd, cfg)
	if err != nil {
		return err
	}

	runOpts := bundle.Options{
		Output:     cfg.Output,
		SliceLines: cfg.SliceLines,
		ChainDepth: cfg.ChainDepth,
	}
	if len(args) == 1 {
		runOpts.Target = args[0]
	}
	out := cmd.OutOrStdout()

	if opts.check {
		return checkBundle(cmd.Context(), s, runOpts, out, opts.jsonOutput)
	}

	report, err := s.runner.Run(cmd.Context(), runOpts)
	if err != nil {
		return err
	}
	if err := printBundleReport(out, report, opts.jsonOutput); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	outputPath, err := filepath.Abs(cfg.Output)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watch.Run(ctx, watch.Options{
		Root:        s.builder.Loader().Root(),
		Debounce:    opts.debounce,
		IgnoreFile:  s.ignorePath(),
		Ignore:      s.builder.Ignore,
		IgnorePaths: map[string]bool{outputPath: true},
		Logger:      s.logger,
	}, func(changed []string) {
		if slices.Contains(changed, s.ignorePath()) {
			if err := s.reloadIgnore(); err != nil {
				s.logger.Error("reload ignore file", slog.String("error", err.Error()))
				return
			}
		}
		report, err := s.runner.Run(ctx, runOpts)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("watch bundle failed", slog.String("error", err.Error()))
			}
			return
		}
		if err := printBundleReport(out, report, opts.jsonOutput); err != nil {
			s.logger.Error("print report", slog.String("error", err.Error()))
		}
	})
}

func checkBundle(ctx context.Context, s *session, opts bundle.Options, out io.Writer, jsonOutput bool) error {
	artifact, report, err := s.runner.Build(ctx, opts)
	if err != nil {
		return err
	}
	existing, err := os.ReadFile(opts.Output)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", opts.Output, err)
	}

	stale := err != nil || string(existing) != artifact
	if jsonOutput {
		if err := emitJSON(out, struct {
			bundle.Report
			Stale bool `json:"stale"`
		}{Report: report, Stale: stale}); err != nil {
			return err
		}
	}
	if stale {
		return exitCodeError{
			code: 2,
			err:  fmt.Errorf("%s is out of date", opts.Output),
		}
	}
	if !jsonOutput {
		fmt.Fprintf(out, "check: %s is up to date\n", opts.Output)
	}
	return nil
}

func printBundleReport(w io.Writer, report bundle.Report, jsonOutput bool) error {
	if jsonOutput {
		return emitJSON(w, report)
	}

	fmt.Fprintf(w, "bundle: files=%d bytes=%d tokens=%d (%s) output=%s\n",
		len(report.Files),
		report.Bytes,
		report.Tokens,
		report.TokenCounter,
		report.Output,
	)
	if report.Target != "" {
		fmt.Fprintf(w, "target: %s reachable=%d unresolved=%d\n", report.Target, len(report.Reachable), len(report.Unresolved))
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(w, "skipped: %s: %s\n", skipped.Path, skipped.Error)
	}
	return nil
}
