// Package chain renders a call graph as an indented dependency chain.
package chain

import (
	"iter"
	"slices"
	"strings"

	"github.com/odvcencio/pybundle/pkg/model"
)

const (
	// Indent is prepended once per nesting level.
	Indent = "    "
	// RecursiveSuffix marks a symbol that is already on the current path.
	RecursiveSuffix = " (recursive call)"
)

// Options controls rendering.
type Options struct {
	// MaxDepth stops descending below this depth when positive.
	MaxDepth int
	// Qualified prints module.name instead of the bare name.
	Qualified bool
}

func (o Options) label(sym model.Symbol) string {
	if o.Qualified {
		return sym.String()
	}
	return sym.Name
}

// Render yields one line per node of a depth-first walk from root. A symbol
// already on the path from root is emitted with RecursiveSuffix and not
// descended into, so every walk terminates. The sequence may be iterated
// more than once.
func Render(graph *model.CallGraph, root model.Symbol, opts Options) iter.Seq[string] {
	return func(yield func(string) bool) {
		if graph == nil {
			return
		}
		onPath := map[model.Symbol]bool{}

		var walk func(sym model.Symbol, depth int) bool
		walk = func(sym model.Symbol, depth int) bool {
			line := strings.Repeat(Indent, depth) + opts.label(sym)
			if onPath[sym] {
				return yield(line + RecursiveSuffix)
			}
			if !yield(line) {
				return false
			}
			if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
				return true
			}

			onPath[sym] = true
			defer delete(onPath, sym)
			for _, callee := range graph.Edges[sym] {
				if !walk(callee, depth+1) {
					return false
				}
			}
			return true
		}
		walk(root, 0)
	}
}

// Lines collects Render into a slice.
func Lines(graph *model.CallGraph, opts Options) []string {
	if graph == nil {
		return nil
	}
	return slices.Collect(Render(graph, graph.Root, opts))
}

// String renders the chain as newline-terminated text.
func String(graph *model.CallGraph, opts Options) string {
	var b strings.Builder
	for _, line := range Lines(graph, opts) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
