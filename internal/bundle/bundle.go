// Package bundle runs one bundling pass: collect files, optionally slice
// them to a target's call graph, render the artifact and write it.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/pybundle/internal/structure"
	"github.com/odvcencio/pybundle/internal/tokens"
	"github.com/odvcencio/pybundle/pkg/chain"
	"github.com/odvcencio/pybundle/pkg/index"
	"github.com/odvcencio/pybundle/pkg/model"
	"github.com/odvcencio/pybundle/pkg/slice"
	"github.com/odvcencio/pybundle/pkg/xref"
)

const (
	structureHeader = "### ===== File Structure ===== ###\n"
	chainHeader     = "\n### ===== Dependency Chain ===== ###\n"
	codeHeader      = "\n### ===== Combined Code ===== ###\n\n"
	moduleSeparator = "#######"
)

type Options struct {
	// Target is "dotted.module.function"; empty bundles every file.
	Target string
	// Output is the artifact path.
	Output string
	// SliceLines keeps only the statements the call graph needs.
	SliceLines bool
	// ChainDepth limits the rendered dependency chain when positive.
	ChainDepth int
}

// Plan is the analysis part of a run, before anything is rendered.
type Plan struct {
	Root  string
	Files []string
	Graph *model.CallGraph
	// Skipped lists files dropped while indexing or reading.
	Skipped []model.FileError
}

// Report summarizes a completed run.
type Report struct {
	Root         string            `json:"root"`
	Target       string            `json:"target,omitempty"`
	Output       string            `json:"output"`
	Files        []string          `json:"files"`
	Reachable    []string          `json:"reachable,omitempty"`
	Unresolved   []string          `json:"unresolved,omitempty"`
	Skipped      []model.FileError `json:"skipped,omitempty"`
	Bytes        int               `json:"bytes"`
	Tokens       int               `json:"tokens"`
	TokenCounter string            `json:"token_counter"`
	Elapsed      time.Duration     `json:"elapsed_ns"`
}

// Runner executes bundling passes over one project root.
type Runner struct {
	builder *index.Builder
	xref    *xref.Builder
	counter tokens.Counter
	logger  *slog.Logger
}

func NewRunner(builder *index.Builder, counter tokens.Counter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if counter == nil {
		counter = tokens.Estimator{}
	}
	return &Runner{
		builder: builder,
		xref:    xref.NewBuilder(builder.Loader(), logger),
		counter: counter,
		logger:  logger,
	}
}

func (r *Runner) loader() *index.Loader {
	return r.builder.Loader()
}

// Plan collects the candidate files and, with a target, narrows them to the
// files owning the target's reachable symbols.
func (r *Runner) Plan(target string) (*Plan, error) {
	files, err := r.builder.Collect()
	if err != nil {
		return nil, err
	}
	plan := &Plan{Root: r.loader().Root(), Files: files}

	target = strings.TrimSpace(target)
	if target == "" {
		if len(plan.Files) == 0 {
			return nil, model.ErrEmptyResult
		}
		return plan, nil
	}

	graph, err := r.xref.Query(target)
	if err != nil {
		return nil, err
	}
	plan.Graph = graph
	r.logger.Info("dependencies found",
		slog.String("target", target),
		slog.Int("reachable", len(graph.Order)),
		slog.Int("unresolved", len(graph.Unresolved())),
	)

	fsm, skipped := r.builder.IndexAllFiles(files)
	plan.Skipped = append(plan.Skipped, skipped...)
	plan.Files = slice.SelectFiles(graph.Reachable(), fsm)
	if len(plan.Files) == 0 {
		if path, ok := graph.Files[graph.Root]; ok && r.builder.Skip(path, false) {
			return nil, fmt.Errorf("target file %s is excluded by the ignore patterns: %w", r.loader().Rel(path), model.ErrEmptyResult)
		}
		return nil, model.ErrEmptyResult
	}
	return plan, nil
}

// Render produces the artifact text for plan and the combined code section.
// Files that cannot be read are dropped from plan.Files and recorded in
// plan.Skipped.
func (r *Runner) Render(plan *Plan, opts Options) (artifact string, code string, err error) {
	type module struct {
		rel     string
		content string
	}
	modules := make([]module, 0, len(plan.Files))
	kept := make([]string, 0, len(plan.Files))
	for _, path := range plan.Files {
		content, err := r.content(plan, path, opts.SliceLines)
		if err != nil {
			rel := r.loader().Rel(path)
			plan.Skipped = append(plan.Skipped, model.FileError{Path: rel, Error: err.Error()})
			r.logger.Warn("skipping unreadable file", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		modules = append(modules, module{rel: r.loader().Rel(path), content: content})
		kept = append(kept, path)
	}
	plan.Files = kept
	if len(modules) == 0 {
		return "", "", model.ErrEmptyResult
	}

	rels := make([]string, 0, len(modules))
	var codeBuilder strings.Builder
	for _, m := range modules {
		rels = append(rels, m.rel)
		fmt.Fprintf(&codeBuilder, "Module: %s.py\n\n%s\n\n%s\n", model.ModuleFromPath(m.rel), m.content, moduleSeparator)
	}
	code = codeBuilder.String()

	var b strings.Builder
	b.WriteString(structureHeader)
	b.WriteString(structure.Build(rels).String())
	if plan.Graph != nil {
		b.WriteString(chainHeader)
		b.WriteString(chain.String(plan.Graph, chain.Options{MaxDepth: opts.ChainDepth}))
	}
	b.WriteString(codeHeader)
	b.WriteString(code)
	return b.String(), code, nil
}

func (r *Runner) content(plan *Plan, path string, sliceLines bool) (string, error) {
	if !sliceLines || plan.Graph == nil {
		return r.loader().Read(path)
	}
	idx, err := r.loader().Load(path)
	if err != nil {
		return "", err
	}
	return slice.SliceFile(idx, slice.RequiredNames(plan.Graph, idx)), nil
}

// Build analyses and renders one pass without writing anything.
func (r *Runner) Build(ctx context.Context, opts Options) (string, Report, error) {
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return "", Report{}, err
	}

	plan, err := r.Plan(opts.Target)
	if err != nil {
		return "", Report{}, err
	}
	artifact, code, err := r.Render(plan, opts)
	if err != nil {
		return "", Report{}, err
	}

	report := Report{
		Root:         plan.Root,
		Target:       strings.TrimSpace(opts.Target),
		Output:       opts.Output,
		Skipped:      plan.Skipped,
		Bytes:        len(artifact),
		Tokens:       r.counter.Count(code),
		TokenCounter: r.counter.Name(),
	}
	for _, path := range plan.Files {
		report.Files = append(report.Files, r.loader().Rel(path))
	}
	if plan.Graph != nil {
		for _, sym := range plan.Graph.Reachable() {
			report.Reachable = append(report.Reachable, sym.String())
		}
		for _, sym := range plan.Graph.Unresolved() {
			report.Unresolved = append(report.Unresolved, sym.String())
		}
	}
	report.Elapsed = time.Since(started)
	return artifact, report, nil
}

// Run performs one full pass. The artifact is written only when every step
// before it succeeded.
func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	if strings.TrimSpace(opts.Output) == "" {
		return Report{}, errors.New("output path is empty")
	}
	artifact, report, err := r.Build(ctx, opts)
	if err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if err := WriteAtomic(opts.Output, []byte(artifact)); err != nil {
		return Report{}, err
	}

	r.logger.Info("bundle written",
		slog.String("output", opts.Output),
		slog.Int("files", len(report.Files)),
		slog.Int("bytes", report.Bytes),
	)
	r.logger.Info("number of tokens", slog.Int("tokens", report.Tokens), slog.String("counter", report.TokenCounter))
	return report, nil
}

// WriteAtomic writes data to a temporary file next to path and renames it
// into place.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
