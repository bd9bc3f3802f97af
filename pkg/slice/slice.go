// Package slice narrows a bundle to the files, and optionally the lines, that
// a call graph reaches.
package slice

import (
	"sort"
	"strings"

	"github.com/odvcencio/pybundle/pkg/lang/python"
	"github.com/odvcencio/pybundle/pkg/model"
)

// SelectFiles returns the sorted, de-duplicated files owning the reachable
// symbols. Symbols missing from fsm contribute nothing.
func SelectFiles(reachable []model.Symbol, fsm model.FileSymbolMap) []string {
	seen := map[string]bool{}
	files := make([]string, 0, len(reachable))
	for _, sym := range reachable {
		path, ok := fsm[sym]
		if !ok || seen[path] {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// Required is the set of names a single file must keep in line-slice mode.
type Required struct {
	Names   map[string]bool
	Modules map[string]bool
}

// Has reports whether name is required.
func (r Required) Has(name string) bool {
	return r.Names[name]
}

// RequiredNames derives what idx must keep for graph: the reachable symbols
// it defines, the aliases through which reachable symbols are imported, and
// every module a reachable symbol lives in.
func RequiredNames(graph *model.CallGraph, idx *python.Index) Required {
	req := Required{Names: map[string]bool{}, Modules: map[string]bool{}}
	if graph == nil || idx == nil {
		return req
	}

	modules := []string{idx.Module}
	if pkg, ok := strings.CutSuffix(idx.Module, ".__init__"); ok {
		modules = append(modules, pkg)
	}

	for _, sym := range graph.Order {
		req.Modules[sym.Module] = true
		for _, module := range modules {
			if sym.Module == module {
				req.Names[sym.Name] = true
			}
		}
	}

	for _, imp := range idx.Aliases.Imports() {
		if !imp.FromImport() {
			continue
		}
		if graph.Visited(model.Symbol{Module: imp.Module, Name: imp.Member}) || req.Modules[imp.Module+"."+imp.Member] {
			req.Names[imp.Alias] = true
		}
	}
	return req
}

// SliceFile keeps the top-level statements of idx that bind or mention a
// required name, plus imports of reachable modules. Kept spans appear in
// their original order; non-adjacent spans are separated by one blank line.
func SliceFile(idx *python.Index, req Required) string {
	if idx == nil {
		return ""
	}
	lines := idx.Lines()

	var b strings.Builder
	lastEnd := 0
	for _, stmt := range idx.Statements {
		if !keep(stmt, req) {
			continue
		}
		start, end := stmt.StartLine, stmt.EndLine
		if start < 1 || end > len(lines) || start > end {
			continue
		}
		if lastEnd > 0 && start > lastEnd+1 {
			b.WriteString("\n")
		}
		for _, line := range lines[start-1 : end] {
			b.WriteString(line)
			b.WriteString("\n")
		}
		lastEnd = end
	}
	return b.String()
}

func keep(stmt python.Statement, req Required) bool {
	switch stmt.Kind {
	case python.StmtImport:
		for _, module := range stmt.Modules {
			if req.Modules[module] {
				return true
			}
		}
	case python.StmtFunction, python.StmtClass, python.StmtAssignment, python.StmtName:
	default:
		return false
	}
	for _, name := range stmt.Names {
		if req.Names[name] {
			return true
		}
	}
	return false
}
