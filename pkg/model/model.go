// Package model defines the core data types for call-graph slicing: Symbol, AliasTable, DefinitionMap, CallGraph and FileSymbolMap.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// Symbol identifies a function, class or module-level name across file
// boundaries. An empty Module means "the same file as the referencing symbol".
type Symbol struct {
	Module string `json:"module,omitempty"`
	Name   string `json:"name"`
}

// String returns the dotted form of the symbol.
func (s Symbol) String() string {
	if s.Module == "" {
		return s.Name
	}
	return s.Module + "." + s.Name
}

// ParseTarget splits a "dotted.module.path.functionName" specifier.
func ParseTarget(spec string) (Symbol, error) {
	spec = strings.TrimSpace(spec)
	idx := strings.LastIndex(spec, ".")
	if idx <= 0 || idx == len(spec)-1 {
		return Symbol{}, &MissingTargetError{Target: spec, Reason: "expected module.function"}
	}
	return Symbol{Module: spec[:idx], Name: spec[idx+1:]}, nil
}

// Import is one alias binding introduced by an import statement.
type Import struct {
	Alias  string `json:"alias"`
	Module string `json:"module"`
	// Member is the imported name for "from X import Y"; empty for "import X".
	Member string `json:"member,omitempty"`
	Line   int    `json:"line"`
}

// FromImport reports whether the binding came from a "from X import Y" statement.
func (i Import) FromImport() bool {
	return i.Member != ""
}

// AliasTable maps in-file aliases to the modules they resolve to.
// It is built once per parsed file and never mutated afterwards.
type AliasTable struct {
	entries map[string]Import
}

// NewAliasTable builds a table from imports in source order. Later bindings
// of the same alias replace earlier ones, as they do at runtime.
func NewAliasTable(imports []Import) AliasTable {
	entries := make(map[string]Import, len(imports))
	for _, imp := range imports {
		if imp.Alias == "" {
			continue
		}
		entries[imp.Alias] = imp
	}
	return AliasTable{entries: entries}
}

// Lookup returns the import bound to alias.
func (t AliasTable) Lookup(alias string) (Import, bool) {
	imp, ok := t.entries[alias]
	return imp, ok
}

func (t AliasTable) Len() int {
	return len(t.entries)
}

// Imports returns every binding sorted by line, then alias.
func (t AliasTable) Imports() []Import {
	out := make([]Import, 0, len(t.entries))
	for _, imp := range t.entries {
		out = append(out, imp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line == out[j].Line {
			return out[i].Alias < out[j].Alias
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// Definition kinds.
const (
	KindFunction = "function"
	KindClass    = "class"
	KindMethod   = "method"
	KindVariable = "variable"
)

// CallExpr is a call expression found inside a definition body.
// Object holds the dotted receiver text for attribute calls ("u" in u.helper()),
// empty for bare-name calls. Name is empty when the callee is neither a name
// nor an attribute on a chain of names; Text then holds the callee source.
type CallExpr struct {
	Object string `json:"object,omitempty"`
	Name   string `json:"name,omitempty"`
	Text   string `json:"text,omitempty"`
	Line   int    `json:"line"`
}

// Bare reports whether the call has the form f(...).
func (c CallExpr) Bare() bool {
	return c.Object == "" && c.Name != ""
}

// Definition is a named top-level construct of one file.
type Definition struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Class     string     `json:"class,omitempty"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Calls     []CallExpr `json:"calls,omitempty"`
}

// DefinitionMap maps bare names to their definition within one file.
type DefinitionMap map[string]Definition

// Names returns the map keys sorted.
func (m DefinitionMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileSymbolMap maps module-qualified symbols to the file that defines them.
type FileSymbolMap map[Symbol]string

// Add records path for sym unless an earlier file already claimed it.
func (m FileSymbolMap) Add(sym Symbol, path string) bool {
	if _, exists := m[sym]; exists {
		return false
	}
	m[sym] = path
	return true
}

// CallGraph is the result of one reachability query.
type CallGraph struct {
	Root Symbol `json:"root"`
	// Order lists every visited symbol in pre-order; it is the query's VisitedSet.
	Order   []Symbol            `json:"order"`
	Edges   map[Symbol][]Symbol `json:"-"`
	Defined map[Symbol]bool     `json:"-"`
	Files   map[Symbol]string   `json:"-"`
}

func NewCallGraph(root Symbol) *CallGraph {
	return &CallGraph{
		Root:    root,
		Edges:   map[Symbol][]Symbol{},
		Defined: map[Symbol]bool{},
		Files:   map[Symbol]string{},
	}
}

// Visited reports whether sym was expanded during the query.
func (g *CallGraph) Visited(sym Symbol) bool {
	if g == nil {
		return false
	}
	_, ok := g.Edges[sym]
	return ok
}

// Reachable returns the visited symbols in visit order.
func (g *CallGraph) Reachable() []Symbol {
	if g == nil {
		return nil
	}
	return append([]Symbol(nil), g.Order...)
}

// Unresolved returns visited symbols whose definition could not be located.
func (g *CallGraph) Unresolved() []Symbol {
	if g == nil {
		return nil
	}
	var out []Symbol
	for _, sym := range g.Order {
		if !g.Defined[sym] {
			out = append(out, sym)
		}
	}
	return out
}

// EdgeCount returns the total number of recorded edges.
func (g *CallGraph) EdgeCount() int {
	if g == nil {
		return 0
	}
	total := 0
	for _, edges := range g.Edges {
		total += len(edges)
	}
	return total
}

// ModuleFromPath converts a slash-separated path relative to the project root
// into a dotted module path: "pkg/util.py" becomes "pkg.util".
func ModuleFromPath(relPath string) string {
	relPath = strings.TrimPrefix(strings.ReplaceAll(relPath, "\\", "/"), "./")
	relPath = strings.TrimSuffix(relPath, ".py")
	return strings.Trim(strings.ReplaceAll(relPath, "/", "."), ".")
}

// PackageOf returns the package a module lives in. For "pkg.__init__" the
// package is "pkg" itself.
func PackageOf(module string) string {
	if trimmed, ok := strings.CutSuffix(module, ".__init__"); ok {
		return trimmed
	}
	if module == "__init__" {
		return ""
	}
	idx := strings.LastIndex(module, ".")
	if idx < 0 {
		return ""
	}
	return module[:idx]
}

// ResolveRelative turns a relative module reference such as "..util" into an
// absolute dotted path as seen from module. Absolute references are returned
// unchanged.
func ResolveRelative(module, ref string) (string, error) {
	if !strings.HasPrefix(ref, ".") {
		return ref, nil
	}
	dots := len(ref) - len(strings.TrimLeft(ref, "."))
	rest := ref[dots:]

	pkg := PackageOf(module)
	for i := 1; i < dots; i++ {
		if pkg == "" {
			return "", fmt.Errorf("relative import %q escapes the project root from %q", ref, module)
		}
		pkg = PackageOf(pkg)
	}

	switch {
	case pkg == "" && rest == "":
		return "", fmt.Errorf("relative import %q from top-level module %q", ref, module)
	case pkg == "":
		return rest, nil
	case rest == "":
		return pkg, nil
	default:
		return pkg + "." + rest, nil
	}
}
