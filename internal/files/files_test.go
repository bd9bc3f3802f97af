package files

import (
	"testing"

	"github.com/odvcencio/pybundle/pkg/lang/python"
	"github.com/odvcencio/pybundle/pkg/model"
)

func indexOf(path, module string, defs []string, imports []model.Import, size int) *python.Index {
	definitions := model.DefinitionMap{}
	for _, name := range defs {
		definitions[name] = model.Definition{Name: name, Kind: model.KindFunction}
	}
	source := make([]byte, size)
	return &python.Index{
		Path:        path,
		Module:      module,
		Source:      string(source),
		Definitions: definitions,
		Aliases:     model.NewAliasTable(imports),
	}
}

func TestBuildFiltersAndSorts(t *testing.T) {
	indexes := []*python.Index{
		indexOf("/repo/a.py", "a", []string{"a", "T"}, []model.Import{{Alias: "os", Module: "os"}, {Alias: "re", Module: "re"}}, 100),
		indexOf("/repo/pkg/b.py", "pkg.b", []string{"b"}, []model.Import{{Alias: "os", Module: "os"}}, 200),
		indexOf("/repo/c.py", "c", nil, nil, 300),
	}

	report, err := Build("/repo", indexes, nil, Options{
		MinDefinitions: 1,
		SortBy:         "imports",
		Top:            10,
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if report.TotalFiles != 3 || report.ShownFiles != 2 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Entries[0].Path != "a.py" || report.Entries[1].Path != "pkg/b.py" {
		t.Fatalf("expected a.py first by imports, got %+v", report.Entries)
	}
	if report.Entries[1].Module != "pkg.b" || report.Entries[1].SizeBytes != 200 {
		t.Fatalf("unexpected entry %+v", report.Entries[1])
	}
}

func TestBuildSortByPathAndTop(t *testing.T) {
	indexes := []*python.Index{
		indexOf("/repo/z.py", "z", nil, nil, 0),
		indexOf("/repo/a.py", "a", nil, nil, 0),
		indexOf("/repo/m.py", "m", nil, nil, 0),
	}
	report, err := Build("/repo", indexes, nil, Options{Top: 2})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(report.Entries) != 2 || report.Entries[0].Path != "a.py" || report.Entries[1].Path != "m.py" {
		t.Fatalf("unexpected entries: %+v", report.Entries)
	}
}

func TestBuildCountsReachable(t *testing.T) {
	indexes := []*python.Index{
		indexOf("/repo/app.py", "app", []string{"run", "other"}, nil, 10),
		indexOf("/repo/util.py", "util", []string{"helper"}, nil, 10),
	}
	graph := model.NewCallGraph(model.Symbol{Module: "app", Name: "run"})
	graph.Order = []model.Symbol{{Module: "app", Name: "run"}, {Module: "util", Name: "helper"}, {Module: "app", Name: "print"}}
	graph.Files[graph.Order[0]] = "/repo/app.py"
	graph.Files[graph.Order[1]] = "/repo/util.py"

	report, err := Build("/repo", indexes, graph, Options{SortBy: "definitions"})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if report.Target != "app.run" {
		t.Fatalf("unexpected target %q", report.Target)
	}
	if report.Entries[0].Path != "app.py" || report.Entries[0].Reachable != 1 || report.Entries[1].Reachable != 1 {
		t.Fatalf("unexpected entries: %+v", report.Entries)
	}
}

func TestBuildInvalidSort(t *testing.T) {
	_, err := Build("/repo", nil, nil, Options{SortBy: "bad"})
	if err == nil {
		t.Fatal("expected invalid sort to fail")
	}
}
