package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/pybundle/pkg/model"
)

func TestLoaderLoad_ReusesUnchangedFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"pkg/util.py": "def helper():\n    pass\n"})

	builder := newTestBuilder(t, tmpDir)
	loader := builder.Loader()

	first, err := loader.Load("pkg/util.py")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if first.Module != "pkg.util" {
		t.Fatalf("expected module pkg.util, got %q", first.Module)
	}
	if first.Path != filepath.Join(loader.Root(), "pkg", "util.py") {
		t.Fatalf("expected absolute path, got %q", first.Path)
	}

	second, err := loader.Load(filepath.Join(tmpDir, "pkg", "util.py"))
	if err != nil {
		t.Fatalf("second Load returned error: %v", err)
	}
	if first != second {
		t.Fatal("expected cached index to be reused")
	}
	if loader.cache.Len() != 1 {
		t.Fatalf("expected 1 cached file, got %d", loader.cache.Len())
	}
}

func TestLoaderLoad_ReparsesChangedFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "a.py")
	writeTree(t, tmpDir, map[string]string{"a.py": "def a():\n    pass\n"})

	loader := newTestBuilder(t, tmpDir).Loader()
	first, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if err := os.WriteFile(path, []byte("def a():\n    pass\n\ndef b():\n    pass\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	second, err := loader.Load(path)
	if err != nil {
		t.Fatalf("second Load returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected changed file to be parsed again")
	}
	if _, ok := second.Definitions["b"]; !ok {
		t.Fatalf("expected new definition b, got %v", second.Definitions.Names())
	}
}

func TestLoaderLoad_CachesParseError(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"broken.py": "def broken(:\n"})

	loader := newTestBuilder(t, tmpDir).Loader()
	for i := 0; i < 2; i++ {
		_, err := loader.Load("broken.py")
		var parseErr *model.ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("attempt %d: expected ParseError, got %v", i, err)
		}
		if parseErr.Path != "broken.py" {
			t.Fatalf("expected relative path in error, got %q", parseErr.Path)
		}
	}
	if loader.cache.Len() != 1 {
		t.Fatalf("expected parse failure to be cached, got %d entries", loader.cache.Len())
	}
}

func TestLoaderLoad_MissingFile(t *testing.T) {
	loader := newTestBuilder(t, t.TempDir()).Loader()
	if _, err := loader.Load("missing.py"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoaderResolve(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"app.py":              "",
		"pkg/__init__.py":     "",
		"pkg/util.py":         "",
		"pkg/sub/__init__.py": "",
	})
	loader := newTestBuilder(t, tmpDir).Loader()

	tests := []struct {
		module string
		want   string
		ok     bool
	}{
		{module: "app", want: "app.py", ok: true},
		{module: "pkg.util", want: "pkg/util.py", ok: true},
		{module: "pkg", want: "pkg/__init__.py", ok: true},
		{module: "pkg.sub", want: "pkg/sub/__init__.py", ok: true},
		{module: "pkg.missing", ok: false},
		{module: "", ok: false},
	}
	for _, tt := range tests {
		path, ok := loader.Resolve(tt.module)
		if ok != tt.ok {
			t.Fatalf("Resolve(%q) ok=%v, want %v", tt.module, ok, tt.ok)
		}
		if ok && loader.Rel(path) != tt.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tt.module, loader.Rel(path), tt.want)
		}
	}
}

func TestNewLoader_Validation(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"a.py": ""})

	if _, err := NewLoader(filepath.Join(tmpDir, "a.py"), LoaderOptions{}); err == nil {
		t.Fatal("expected error for file root")
	}
	if _, err := NewLoader(tmpDir, LoaderOptions{Encodings: []string{"ebcdic"}}); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}
