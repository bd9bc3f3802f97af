// Package xref resolves Python call expressions to qualified symbols and
// computes the set of definitions a target function transitively calls.
package xref

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/odvcencio/pybundle/pkg/lang/python"
	"github.com/odvcencio/pybundle/pkg/model"
)

// Loader locates and parses module files. *index.Loader satisfies it.
type Loader interface {
	Resolve(module string) (string, bool)
	Load(path string) (*python.Index, error)
}

// Builder answers reachability queries over the files a Loader can reach.
type Builder struct {
	loader Loader
	logger *slog.Logger
}

func NewBuilder(loader Loader, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{loader: loader, logger: logger}
}

// ResolveCallTarget maps a call expression to the symbol it names, using the
// alias table of the file that contains the call.
//
//	f()      -> {"", f}, or {X, Y} when f is bound by "from X import Y as f"
//	b.f()    -> {module of b, f} when b is a known alias
//	a.b.f()  -> {a.b, f} with "import a.b", or {m.b, f} when a is an alias of m
//
// Anything else, such as self.f() or obj.f() on a local, is unresolved.
func ResolveCallTarget(call model.CallExpr, aliases model.AliasTable) (model.Symbol, bool) {
	if call.Name == "" {
		return model.Symbol{}, false
	}

	if call.Bare() {
		if imp, ok := aliases.Lookup(call.Name); ok && imp.FromImport() {
			return model.Symbol{Module: imp.Module, Name: imp.Member}, true
		}
		return model.Symbol{Name: call.Name}, true
	}

	if imp, ok := aliases.Lookup(call.Object); ok {
		return model.Symbol{Module: imp.Module, Name: call.Name}, true
	}

	// Longest aliased prefix of a dotted object chain.
	parts := strings.Split(call.Object, ".")
	for i := len(parts) - 1; i > 0; i-- {
		imp, ok := aliases.Lookup(strings.Join(parts[:i], "."))
		if !ok {
			continue
		}
		module := imp.Module
		if imp.FromImport() {
			module += "." + imp.Member
		}
		return model.Symbol{Module: module + "." + strings.Join(parts[i:], "."), Name: call.Name}, true
	}
	return model.Symbol{}, false
}

// Query computes the call graph reachable from target, a
// "dotted.module.path.functionName" specifier. A target whose module maps to
// no file fails with *model.MissingTargetError; a target file that cannot be
// decoded or parsed fails with that error. Problems in transitively reached
// files only prune the graph.
func (b *Builder) Query(target string) (*model.CallGraph, error) {
	root, err := model.ParseTarget(target)
	if err != nil {
		return nil, err
	}

	path, ok := b.loader.Resolve(root.Module)
	if !ok {
		return nil, &model.MissingTargetError{
			Target: target,
			Path:   filepath.ToSlash(filepath.Join(strings.Split(root.Module, ".")...)) + ".py",
		}
	}
	rootIndex, err := b.loader.Load(path)
	if err != nil {
		return nil, err
	}

	q := &query{
		builder: b,
		graph:   model.NewCallGraph(root),
		files:   map[string]*python.Index{root.Module: rootIndex},
	}
	q.visit(root)

	b.logger.Debug("call graph built",
		slog.String("target", root.String()),
		slog.Int("visited", len(q.graph.Order)),
		slog.Int("edges", q.graph.EdgeCount()),
		slog.Int("unresolved", len(q.graph.Unresolved())),
	)
	return q.graph, nil
}

// query holds the state of one Query call.
type query struct {
	builder *Builder
	graph   *model.CallGraph
	// files caches module lookups for the query; a nil entry marks a module
	// without a usable file.
	files map[string]*python.Index
}

func (q *query) visit(sym model.Symbol) {
	if q.graph.Visited(sym) {
		return
	}
	q.graph.Order = append(q.graph.Order, sym)
	q.graph.Edges[sym] = []model.Symbol{}

	owner := q.module(sym.Module)
	if owner == nil {
		return
	}
	def, ok := owner.Definitions[sym.Name]
	if !ok {
		return
	}
	q.graph.Defined[sym] = true
	q.graph.Files[sym] = owner.Path

	seen := map[model.Symbol]bool{}
	edges := make([]model.Symbol, 0, len(def.Calls))
	for _, call := range def.Calls {
		callee, ok := q.resolve(call, sym.Module, owner)
		if !ok || seen[callee] {
			continue
		}
		seen[callee] = true
		edges = append(edges, callee)
	}
	q.graph.Edges[sym] = edges

	for _, callee := range edges {
		q.visit(callee)
	}
}

// resolve turns a call found in owner into a module-qualified symbol. Bare
// names are anchored to the calling module.
func (q *query) resolve(call model.CallExpr, module string, owner *python.Index) (model.Symbol, bool) {
	callee, ok := ResolveCallTarget(call, owner.Aliases)
	if !ok {
		return model.Symbol{}, false
	}
	if callee.Module == "" {
		callee.Module = module
		return callee, true
	}

	// "from pkg import mod; mod.f()" names the submodule pkg.mod when it exists.
	if imp, found := owner.Aliases.Lookup(call.Object); found && imp.FromImport() {
		submodule := imp.Module + "." + imp.Member
		if q.module(submodule) != nil {
			callee.Module = submodule
		}
	}
	return callee, true
}

func (q *query) module(module string) *python.Index {
	if idx, ok := q.files[module]; ok {
		return idx
	}
	q.files[module] = nil

	path, ok := q.builder.loader.Resolve(module)
	if !ok {
		q.builder.logger.Debug("module has no file", slog.String("module", module))
		return nil
	}
	idx, err := q.builder.loader.Load(path)
	if err != nil {
		var decodeErr *model.DecodeError
		if errors.As(err, &decodeErr) {
			q.builder.logger.Warn("skipping undecodable module", slog.String("module", module), slog.String("path", path))
		} else {
			q.builder.logger.Debug("skipping module", slog.String("module", module), slog.String("error", err.Error()))
		}
		return nil
	}
	q.files[module] = idx
	return idx
}
