// Package files summarizes the Python files selected for a bundle by
// definition count, import count and size.
package files

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/pybundle/pkg/lang/python"
	"github.com/odvcencio/pybundle/pkg/model"
)

type Options struct {
	MinDefinitions int
	SortBy         string
	Top            int
}

type Entry struct {
	Path        string `json:"path"`
	Module      string `json:"module"`
	Definitions int    `json:"definitions"`
	Imports     int    `json:"imports"`
	Reachable   int    `json:"reachable,omitempty"`
	SizeBytes   int    `json:"size_bytes"`
}

type Report struct {
	Root       string  `json:"root"`
	Target     string  `json:"target,omitempty"`
	TotalFiles int     `json:"total_files"`
	ShownFiles int     `json:"shown_files"`
	Entries    []Entry `json:"entries,omitempty"`
}

// Build summarizes indexes. With a graph, Reachable counts the visited
// symbols each file defines.
func Build(root string, indexes []*python.Index, graph *model.CallGraph, opts Options) (Report, error) {
	if opts.MinDefinitions < 0 {
		opts.MinDefinitions = 0
	}
	if opts.Top <= 0 {
		opts.Top = 50
	}
	sortBy := strings.ToLower(strings.TrimSpace(opts.SortBy))
	if sortBy == "" {
		sortBy = "path"
	}
	switch sortBy {
	case "definitions", "imports", "size", "path":
	default:
		return Report{}, fmt.Errorf("unsupported sort %q", opts.SortBy)
	}

	reachableByFile := map[string]int{}
	report := Report{Root: root}
	if graph != nil {
		report.Target = graph.Root.String()
		for _, sym := range graph.Order {
			if path, ok := graph.Files[sym]; ok {
				reachableByFile[path]++
			}
		}
	}

	entries := make([]Entry, 0, len(indexes))
	for _, idx := range indexes {
		if idx == nil {
			continue
		}
		if len(idx.Definitions) < opts.MinDefinitions {
			continue
		}
		rel := idx.Path
		if r, err := filepath.Rel(root, idx.Path); err == nil {
			rel = filepath.ToSlash(r)
		}
		entries = append(entries, Entry{
			Path:        rel,
			Module:      idx.Module,
			Definitions: len(idx.Definitions),
			Imports:     idx.Aliases.Len(),
			Reachable:   reachableByFile[idx.Path],
			SizeBytes:   len(idx.Source),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		switch sortBy {
		case "definitions":
			if entries[i].Definitions == entries[j].Definitions {
				return entries[i].Path < entries[j].Path
			}
			return entries[i].Definitions > entries[j].Definitions
		case "imports":
			if entries[i].Imports == entries[j].Imports {
				return entries[i].Path < entries[j].Path
			}
			return entries[i].Imports > entries[j].Imports
		case "size":
			if entries[i].SizeBytes == entries[j].SizeBytes {
				return entries[i].Path < entries[j].Path
			}
			return entries[i].SizeBytes > entries[j].SizeBytes
		default:
			return entries[i].Path < entries[j].Path
		}
	})

	report.TotalFiles = len(indexes)
	if opts.Top < len(entries) {
		entries = entries[:opts.Top]
	}
	report.ShownFiles = len(entries)
	report.Entries = entries
	return report, nil
}
