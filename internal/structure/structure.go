// Package structure renders the directory tree of the files in a bundle.
package structure

import (
	"path"
	"strings"
)

// Indent is prepended once per directory level.
const Indent = "    "

type node struct {
	name     string
	children []*node
	byName   map[string]*node
	file     bool
}

func (n *node) child(name string, file bool) *node {
	if existing, ok := n.byName[name]; ok {
		return existing
	}
	c := &node{name: name, file: file, byName: map[string]*node{}}
	n.byName[name] = c
	n.children = append(n.children, c)
	return c
}

// Tree is an ordered directory tree. Entries keep the order in which they
// were first added.
type Tree struct {
	root *node
}

func New() *Tree {
	return &Tree{root: &node{byName: map[string]*node{}}}
}

// Build creates a tree from slash-separated relative paths.
func Build(relPaths []string) *Tree {
	t := New()
	for _, rel := range relPaths {
		t.Add(rel)
	}
	return t
}

// Add inserts a file path relative to the bundle root.
func (t *Tree) Add(relPath string) {
	relPath = strings.TrimPrefix(path.Clean(strings.ReplaceAll(relPath, "\\", "/")), "./")
	if relPath == "." || relPath == "" {
		return
	}
	dir, file := path.Split(relPath)
	current := t.root
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		current = current.child(part, false)
	}
	current.child(file, true)
}

// Lines renders the tree: directories carry a trailing "/" and each level is
// indented by Indent.
func (t *Tree) Lines() []string {
	var lines []string
	var walk func(n *node, depth int)
	walk = func(n *node, depth int) {
		for _, c := range n.children {
			prefix := strings.Repeat(Indent, depth)
			if c.file {
				lines = append(lines, prefix+c.name)
				continue
			}
			lines = append(lines, prefix+c.name+"/")
			walk(c, depth+1)
		}
	}
	walk(t.root, 0)
	return lines
}

// String renders the tree as newline-terminated text.
func (t *Tree) String() string {
	var b strings.Builder
	for _, line := range t.Lines() {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
