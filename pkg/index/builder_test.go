package index

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/odvcencio/pybundle/pkg/ignore"
	"github.com/odvcencio/pybundle/pkg/model"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll %s failed: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile %s failed: %v", name, err)
		}
	}
}

func newTestBuilder(t *testing.T, root string) *Builder {
	t.Helper()
	cache, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}
	loader, err := NewLoader(root, LoaderOptions{Cache: cache})
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}
	return NewBuilder(loader, nil)
}

func relPaths(b *Builder, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		out = append(out, b.loader.Rel(path))
	}
	return out
}

func TestCollect_PrunesAndSorts(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"main.py":                      "def main():\n    pass\n",
		"README.md":                    "docs",
		"pkg/__init__.py":              "",
		"pkg/util.py":                  "def helper():\n    pass\n",
		"pkg/__pycache__/util.py":      "",
		".venv/lib/site.py":            "",
		".git/hooks/pre-commit.py":     "",
		"node_modules/x/setup.py":      "",
		"build/generated.py":           "",
		"tests/test_util.py":           "def test_helper():\n    pass\n",
		"tests/fixtures/data/input.py": "",
	})

	builder := newTestBuilder(t, tmpDir)
	builder.SetIgnore(ignore.ParsePatterns(append(append([]string(nil), ignore.DefaultPatterns...), "build/", "tests/fixtures")))

	files, err := builder.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}

	want := []string{"main.py", "pkg/__init__.py", "pkg/util.py", "tests/test_util.py"}
	if got := relPaths(builder, files); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected files: got %v want %v", got, want)
	}
}

func TestCollect_DefaultPatterns(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"a.py":                  "",
		"__pycache__/b.py":      "",
		"vendor/lib.py":         "",
		".tools/gen.py":         "",
		"pkg/node_modules/c.py": "",
	})

	builder := newTestBuilder(t, tmpDir)
	files, err := builder.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if got := relPaths(builder, files); !reflect.DeepEqual(got, []string{"a.py"}) {
		t.Fatalf("unexpected files with default patterns: %v", got)
	}
}

func TestCollect_ReincludesDefaultPrunedDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"a.py":          "",
		"vendor/lib.py": "def a():\n    pass\n",
		".tools/gen.py": "",
		".git/hook.py":  "",
		ignore.FileName: "!vendor\n!.tools/\n",
	})

	matcher, err := ignore.LoadOrDefault(filepath.Join(tmpDir, ignore.FileName))
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	builder := newTestBuilder(t, tmpDir)
	builder.SetIgnore(matcher)

	files, err := builder.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	want := []string{".tools/gen.py", "a.py", "vendor/lib.py"}
	if got := relPaths(builder, files); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected files: got %v want %v", got, want)
	}

	fsm, _ := builder.IndexAllFiles(files)
	path, ok := fsm[model.Symbol{Module: "vendor.lib", Name: "a"}]
	if got := builder.loader.Rel(path); !ok || got != "vendor/lib.py" {
		t.Fatalf("vendor.lib.a not indexed, got %q", got)
	}
}

func TestCollect_NoIgnoreMatcher(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"a.py":             "",
		"__pycache__/b.py": "",
		".venv/c.py":       "",
	})

	builder := newTestBuilder(t, tmpDir)
	builder.SetIgnore(nil)
	files, err := builder.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files without a matcher, got %v", relPaths(builder, files))
	}
}

func TestIndexAllFiles_FirstOccurrenceWins(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"app.py":          "from pkg import util\n\ndef run():\n    return util.helper()\n",
		"pkg/__init__.py": "VERSION = '1'\n\ndef setup():\n    pass\n",
		"pkg/util.py":     "def helper():\n    pass\n\nclass Box:\n    def open(self):\n        pass\n",
		"broken.py":       "def broken(:\n",
	})

	builder := newTestBuilder(t, tmpDir)
	files, err := builder.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}

	symbols, skipped := builder.IndexAllFiles(files)

	expect := map[model.Symbol]string{
		{Module: "app", Name: "run"}:            "app.py",
		{Module: "pkg.util", Name: "helper"}:    "pkg/util.py",
		{Module: "pkg.util", Name: "Box"}:       "pkg/util.py",
		{Module: "pkg.util", Name: "open"}:      "pkg/util.py",
		{Module: "pkg.__init__", Name: "setup"}: "pkg/__init__.py",
		{Module: "pkg", Name: "setup"}:          "pkg/__init__.py",
		{Module: "pkg", Name: "VERSION"}:        "pkg/__init__.py",
	}
	for sym, rel := range expect {
		path, ok := symbols[sym]
		if !ok {
			t.Fatalf("missing symbol %s", sym)
		}
		if got := builder.loader.Rel(path); got != rel {
			t.Fatalf("symbol %s mapped to %q, want %q", sym, got, rel)
		}
	}

	if len(skipped) != 1 || skipped[0].Path != "broken.py" {
		t.Fatalf("expected broken.py to be skipped, got %+v", skipped)
	}
	stats := builder.Stats()
	if stats.CandidateFiles != 4 || stats.ParsedFiles != 3 || stats.SkippedFiles != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Symbols != len(symbols) {
		t.Fatalf("stats counted %d symbols, map holds %d", stats.Symbols, len(symbols))
	}
}

func TestIndexAllFiles_SkipsUndecodableFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"ok.py":  "def ok():\n    pass\n",
		"bad.py": "x = '\xff'\n",
	})

	loader, err := NewLoader(tmpDir, LoaderOptions{Encodings: []string{"utf-8"}})
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}
	builder := NewBuilder(loader, nil)
	files, err := builder.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}

	symbols, skipped := builder.IndexAllFiles(files)
	if len(skipped) != 1 || skipped[0].Path != "bad.py" {
		t.Fatalf("expected bad.py to be skipped, got %+v", skipped)
	}
	if _, ok := symbols[model.Symbol{Module: "ok", Name: "ok"}]; !ok {
		t.Fatalf("expected ok.ok to be indexed, got %v", symbols)
	}
}
