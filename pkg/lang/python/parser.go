// Package python indexes Python source files with tree-sitter: top-level
// definitions, import aliases, call expressions and statement spans.
package python

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/odvcencio/pybundle/pkg/model"
)

// Statement kinds recorded for top-level statements.
const (
	StmtImport     = "import"
	StmtFunction   = "function"
	StmtClass      = "class"
	StmtAssignment = "assignment"
	StmtName       = "name"
	StmtOther      = "other"
)

// Statement is a top-level statement with the names it binds or mentions.
type Statement struct {
	Kind      string   `json:"kind"`
	Names     []string `json:"names,omitempty"`
	Modules   []string `json:"modules,omitempty"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
}

// Index is the structural summary of one parsed file.
type Index struct {
	Path        string              `json:"path"`
	Module      string              `json:"module"`
	Source      string              `json:"-"`
	Definitions model.DefinitionMap `json:"definitions"`
	Aliases     model.AliasTable    `json:"-"`
	Statements  []Statement         `json:"statements,omitempty"`
}

// Lines returns the source split into lines without trailing newlines.
func (idx *Index) Lines() []string {
	if idx == nil || idx.Source == "" {
		return nil
	}
	lines := strings.Split(idx.Source, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Tree is a parsed syntax tree together with the source it was parsed from.
type Tree struct {
	path string
	src  []byte
	tree *sitter.Tree
}

// Root returns the module node.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
	}
}

// Parser parses Python sources. A fresh tree-sitter parser is created per
// call, so a Parser is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// ParseTree parses src into a syntax tree. Source with syntax errors fails
// with *model.ParseError.
func (p *Parser) ParseTree(path string, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, &model.ParseError{Path: path, Err: err.Error()}
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, &model.ParseError{Path: path, Err: "empty syntax tree"}
	}
	if root.HasError() {
		line := firstErrorLine(root)
		tree.Close()
		return nil, &model.ParseError{Path: path, Line: line, Err: "invalid syntax"}
	}
	return &Tree{path: path, src: src, tree: tree}, nil
}

// Parse parses src and extracts its definitions, alias table and top-level
// statements. module is the dotted module path of the file; it anchors
// relative imports.
func (p *Parser) Parse(path, module string, src []byte) (*Index, error) {
	if len(src) == 0 {
		return &Index{Path: path, Module: module, Definitions: model.DefinitionMap{}}, nil
	}

	tree, err := p.ParseTree(path, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	return &Index{
		Path:        path,
		Module:      module,
		Source:      string(src),
		Definitions: ExtractDefinitions(tree),
		Aliases:     ExtractAliasTable(tree, module),
		Statements:  ExtractStatements(tree, module),
	}, nil
}

// ExtractDefinitions indexes top-level functions, classes, the methods of
// top-level classes and module-level assignment targets. Top-level names win
// over method names; otherwise the first definition in source order wins.
func ExtractDefinitions(tree *Tree) model.DefinitionMap {
	defs := model.DefinitionMap{}
	var methods []model.Definition

	root := tree.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		node, inner := unwrapDecorated(stmt)
		if inner == nil {
			for _, name := range assignmentTargets(node, tree.src) {
				addDefinition(defs, newDefinition(name, model.KindVariable, "", stmt, tree.src))
			}
			continue
		}

		name := fieldText(inner, "name", tree.src)
		if name == "" {
			continue
		}
		switch inner.Type() {
		case "function_definition":
			addDefinition(defs, newDefinition(name, model.KindFunction, "", stmt, tree.src))
		case "class_definition":
			addDefinition(defs, newDefinition(name, model.KindClass, "", stmt, tree.src))
			for _, method := range classMethods(inner, tree.src) {
				methods = append(methods, newDefinition(method.name, model.KindMethod, name, method.node, tree.src))
			}
		}
	}

	for _, method := range methods {
		addDefinition(defs, method)
	}
	return defs
}

// ExtractAliasTable collects every import binding in the file, including
// imports nested in function bodies.
func ExtractAliasTable(tree *Tree, module string) model.AliasTable {
	var imports []model.Import
	walk(tree.Root(), func(node *sitter.Node) bool {
		switch node.Type() {
		case "import_statement", "import_from_statement":
			imports = append(imports, importBindings(node, module, tree.src)...)
			return false
		}
		return true
	})
	return model.NewAliasTable(imports)
}

// ExtractStatements summarizes each top-level statement.
func ExtractStatements(tree *Tree, module string) []Statement {
	root := tree.Root()
	statements := make([]Statement, 0, root.NamedChildCount())
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		start, end := lineSpan(stmt)
		entry := Statement{Kind: StmtOther, StartLine: start, EndLine: end}

		node, inner := unwrapDecorated(stmt)
		switch {
		case inner != nil && inner.Type() == "function_definition":
			entry.Kind = StmtFunction
			entry.Names = []string{fieldText(inner, "name", tree.src)}
		case inner != nil && inner.Type() == "class_definition":
			entry.Kind = StmtClass
			entry.Names = []string{fieldText(inner, "name", tree.src)}
			for _, method := range classMethods(inner, tree.src) {
				entry.Names = append(entry.Names, method.name)
			}
		case node.Type() == "import_statement" || node.Type() == "import_from_statement":
			entry.Kind = StmtImport
			for _, imp := range importBindings(node, module, tree.src) {
				entry.Names = append(entry.Names, imp.Alias)
				entry.Modules = append(entry.Modules, imp.Module)
			}
		default:
			if targets := assignmentTargets(node, tree.src); len(targets) > 0 {
				entry.Kind = StmtAssignment
				entry.Names = targets
			} else if name := bareName(node, tree.src); name != "" {
				entry.Kind = StmtName
				entry.Names = []string{name}
			}
		}
		statements = append(statements, entry)
	}
	return statements
}

func newDefinition(name, kind, class string, node *sitter.Node, src []byte) model.Definition {
	start, end := lineSpan(node)
	target := node
	if kind == model.KindVariable && node.Type() == "expression_statement" && node.NamedChildCount() > 0 {
		target = node.NamedChild(0).ChildByFieldName("right")
	}
	return model.Definition{
		Name:      name,
		Kind:      kind,
		Class:     class,
		StartLine: start,
		EndLine:   end,
		Calls:     extractCalls(target, src),
	}
}

func addDefinition(defs model.DefinitionMap, def model.Definition) {
	if _, exists := defs[def.Name]; exists {
		return
	}
	defs[def.Name] = def
}

// unwrapDecorated returns the statement and, for function and class
// definitions, the definition node itself.
func unwrapDecorated(stmt *sitter.Node) (*sitter.Node, *sitter.Node) {
	switch stmt.Type() {
	case "function_definition", "class_definition":
		return stmt, stmt
	case "decorated_definition":
		if def := stmt.ChildByFieldName("definition"); def != nil {
			return stmt, def
		}
	}
	return stmt, nil
}

type namedNode struct {
	name string
	node *sitter.Node
}

func classMethods(class *sitter.Node, src []byte) []namedNode {
	body := class.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var methods []namedNode
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		_, inner := unwrapDecorated(stmt)
		if inner == nil || inner.Type() != "function_definition" {
			continue
		}
		if name := fieldText(inner, "name", src); name != "" {
			methods = append(methods, namedNode{name: name, node: stmt})
		}
	}
	return methods
}

// assignmentTargets returns the names bound by a module-level assignment
// statement, including chained and tuple targets.
func assignmentTargets(stmt *sitter.Node, src []byte) []string {
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return nil
	}
	var names []string
	assign := stmt.NamedChild(0)
	for assign != nil && assign.Type() == "assignment" {
		names = append(names, identifiers(assign.ChildByFieldName("left"), src)...)
		assign = assign.ChildByFieldName("right")
	}
	return names
}

func identifiers(node *sitter.Node, src []byte) []string {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "identifier":
		return []string{node.Content(src)}
	case "pattern_list", "tuple_pattern", "list_pattern", "expression_list", "tuple", "list":
		var names []string
		for i := 0; i < int(node.NamedChildCount()); i++ {
			names = append(names, identifiers(node.NamedChild(i), src)...)
		}
		return names
	}
	return nil
}

func bareName(stmt *sitter.Node, src []byte) string {
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return ""
	}
	child := stmt.NamedChild(0)
	if child.Type() != "identifier" {
		return ""
	}
	return child.Content(src)
}

func importBindings(node *sitter.Node, module string, src []byte) []model.Import {
	line := int(node.StartPoint().Row) + 1
	var imports []model.Import

	if node.Type() == "import_statement" {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				name := child.Content(src)
				imports = append(imports, model.Import{Alias: name, Module: name, Line: line})
			case "aliased_import":
				name := fieldText(child, "name", src)
				alias := fieldText(child, "alias", src)
				if name != "" && alias != "" {
					imports = append(imports, model.Import{Alias: alias, Module: name, Line: line})
				}
			}
		}
		return imports
	}

	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return nil
	}
	from, err := model.ResolveRelative(module, strings.Join(strings.Fields(moduleNode.Content(src)), ""))
	if err != nil {
		return nil
	}

	sawImport := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "dotted_name":
			if !sawImport {
				continue
			}
			name := child.Content(src)
			imports = append(imports, model.Import{Alias: name, Module: from, Member: name, Line: line})
		case "aliased_import":
			name := fieldText(child, "name", src)
			alias := fieldText(child, "alias", src)
			if name != "" && alias != "" {
				imports = append(imports, model.Import{Alias: alias, Module: from, Member: name, Line: line})
			}
		}
	}
	return imports
}

// extractCalls lists every call expression below node in source order.
func extractCalls(node *sitter.Node, src []byte) []model.CallExpr {
	if node == nil {
		return nil
	}
	var calls []model.CallExpr
	walk(node, func(n *sitter.Node) bool {
		if n.Type() == "call" {
			calls = append(calls, callExpr(n, src))
		}
		return true
	})
	return calls
}

func callExpr(call *sitter.Node, src []byte) model.CallExpr {
	expr := model.CallExpr{Line: int(call.StartPoint().Row) + 1}
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return expr
	}

	switch fn.Type() {
	case "identifier":
		expr.Name = fn.Content(src)
	case "attribute":
		object := dottedName(fn.ChildByFieldName("object"), src)
		attr := fieldText(fn, "attribute", src)
		if object != "" && attr != "" {
			expr.Object = object
			expr.Name = attr
		}
	}
	if expr.Name == "" {
		expr.Text = compactText(fn.Content(src))
	}
	return expr
}

// dottedName returns "a.b.c" for an identifier or attribute chain of
// identifiers, and "" for any other expression.
func dottedName(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "identifier":
		return node.Content(src)
	case "attribute":
		object := dottedName(node.ChildByFieldName("object"), src)
		attr := fieldText(node, "attribute", src)
		if object == "" || attr == "" {
			return ""
		}
		return object + "." + attr
	}
	return ""
}

// walk visits node and its descendants in pre-order; visit returns false to
// skip a node's children.
func walk(node *sitter.Node, visit func(*sitter.Node) bool) {
	stack := []*sitter.Node{node}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == nil || !visit(current) {
			continue
		}
		for i := int(current.ChildCount()) - 1; i >= 0; i-- {
			if child := current.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

func firstErrorLine(root *sitter.Node) int {
	line := 0
	walk(root, func(n *sitter.Node) bool {
		if line > 0 {
			return false
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			line = int(n.StartPoint().Row) + 1
			return false
		}
		return n.HasError()
	})
	return line
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content(src)
}

// lineSpan returns 1-based inclusive start and end lines of node.
func lineSpan(node *sitter.Node) (int, int) {
	start := int(node.StartPoint().Row) + 1
	endPoint := node.EndPoint()
	end := int(endPoint.Row) + 1
	if endPoint.Column == 0 && end > start {
		end--
	}
	return start, end
}

func compactText(text string) string {
	trimmed := strings.Join(strings.Fields(text), " ")
	const maxLen = 80
	if len(trimmed) <= maxLen {
		return trimmed
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "..."
}

// String renders a short description of the index for diagnostics.
func (idx *Index) String() string {
	if idx == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s): %d definitions, %d aliases", idx.Path, idx.Module, len(idx.Definitions), idx.Aliases.Len())
}
