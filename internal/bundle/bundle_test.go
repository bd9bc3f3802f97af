package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/odvcencio/pybundle/internal/tokens"
	"github.com/odvcencio/pybundle/pkg/ignore"
	"github.com/odvcencio/pybundle/pkg/index"
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

func newRunner(t *testing.T, root string, encodings []string) *Runner {
	t.Helper()
	loader, err := index.NewLoader(root, index.LoaderOptions{Encodings: encodings})
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}
	builder := index.NewBuilder(loader, nil)
	builder.SetIgnore(ignore.ParsePatterns(append(append([]string(nil), ignore.DefaultPatterns...), "skipme")))
	return NewRunner(builder, tokens.Estimator{}, nil)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile %s failed: %v", path, err)
	}
	return string(data)
}

func TestRunWholeProject(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":                 "A = 1\n",
		"pkg/b.py":             "def b():\n    pass\n",
		"skipme/c.py":          "C = 3\n",
		"pkg/__pycache__/b.py": "",
	})
	out := filepath.Join(t.TempDir(), "output.txt")

	report, err := newRunner(t, root, nil).Run(context.Background(), Options{Output: out})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := "### ===== File Structure ===== ###\n" +
		"a.py\n" +
		"pkg/\n" +
		"    b.py\n" +
		"\n### ===== Combined Code ===== ###\n\n" +
		"Module: a.py\n\nA = 1\n\n\n#######\n" +
		"Module: pkg.b.py\n\ndef b():\n    pass\n\n\n#######\n"
	if got := readFile(t, out); got != want {
		t.Fatalf("unexpected artifact:\n%s\nwant:\n%s", got, want)
	}
	if !reflect.DeepEqual(report.Files, []string{"a.py", "pkg/b.py"}) {
		t.Fatalf("unexpected files %v", report.Files)
	}
	if report.Tokens <= 0 || report.TokenCounter != "estimate" {
		t.Fatalf("unexpected token report %d %q", report.Tokens, report.TokenCounter)
	}
	if report.Bytes != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), report.Bytes)
	}
}

func TestRunWithTarget(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":       "import utilmod as u\n\ndef run():\n    return u.helper()\n",
		"utilmod.py":   "def helper():\n    return helper_inner()\n\ndef helper_inner():\n    return run_again()\n\ndef run_again():\n    return helper()\n",
		"unrelated.py": "def noise():\n    pass\n",
	})
	out := filepath.Join(t.TempDir(), "output.txt")

	report, err := newRunner(t, root, nil).Run(context.Background(), Options{Target: "app.run", Output: out})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !reflect.DeepEqual(report.Files, []string{"app.py", "utilmod.py"}) {
		t.Fatalf("unexpected files %v", report.Files)
	}
	wantReachable := []string{"app.run", "utilmod.helper", "utilmod.helper_inner", "utilmod.run_again"}
	if !reflect.DeepEqual(report.Reachable, wantReachable) {
		t.Fatalf("unexpected reachable %v", report.Reachable)
	}

	artifact := readFile(t, out)
	wantChain := "\n### ===== Dependency Chain ===== ###\n" +
		"run\n" +
		"    helper\n" +
		"        helper_inner\n" +
		"            run_again\n" +
		"                helper (recursive call)\n" +
		"\n### ===== Combined Code ===== ###\n\n"
	if !strings.Contains(artifact, wantChain) {
		t.Fatalf("artifact missing dependency chain:\n%s", artifact)
	}
	if strings.Contains(artifact, "noise") {
		t.Fatal("unrelated file should not be bundled")
	}
	if !strings.HasPrefix(artifact, "### ===== File Structure ===== ###\napp.py\nutilmod.py\n") {
		t.Fatalf("unexpected structure section:\n%s", artifact)
	}
}

func TestRunSliceLines(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":     "import os\nfrom utilmod import helper\n\ndef run():\n    return helper()\n\ndef unused():\n    return os.getcwd()\n",
		"utilmod.py": "def helper():\n    pass\n\ndef other():\n    pass\n",
	})
	out := filepath.Join(t.TempDir(), "output.txt")

	if _, err := newRunner(t, root, nil).Run(context.Background(), Options{Target: "app.run", Output: out, SliceLines: true}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	artifact := readFile(t, out)
	for _, unwanted := range []string{"def unused", "import os", "def other"} {
		if strings.Contains(artifact, unwanted) {
			t.Fatalf("sliced artifact should not contain %q:\n%s", unwanted, artifact)
		}
	}
	if !strings.Contains(artifact, "Module: app.py\n\nfrom utilmod import helper\n\ndef run():\n    return helper()\n") {
		t.Fatalf("sliced artifact missing app.run:\n%s", artifact)
	}
}

func TestRunFailuresWriteNothing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":    "def run():\n    pass\n",
		"broken.py": "def broken(:\n",
	})

	tests := []struct {
		name   string
		target string
		check  func(error) bool
	}{
		{name: "missing module", target: "missing.run", check: func(err error) bool {
			var target *model.MissingTargetError
			return errors.As(err, &target)
		}},
		{name: "malformed target", target: "run", check: func(err error) bool {
			var target *model.MissingTargetError
			return errors.As(err, &target)
		}},
		{name: "target parse error", target: "broken.broken", check: func(err error) bool {
			var parseErr *model.ParseError
			return errors.As(err, &parseErr)
		}},
		{name: "undefined target", target: "app.nothing", check: func(err error) bool {
			return errors.Is(err, model.ErrEmptyResult)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "output.txt")
			_, err := newRunner(t, root, nil).Run(context.Background(), Options{Target: tt.target, Output: out})
			if !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
				t.Fatalf("artifact should not exist, stat err=%v", statErr)
			}
		})
	}
}

func TestRunTargetInIgnoredDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.py":        "A = 1\n",
		"vendor/lib.py": "def a():\n    return b()\n\ndef b():\n    pass\n",
	})
	out := filepath.Join(t.TempDir(), "output.txt")

	runner := newRunner(t, root, nil)
	_, err := runner.Run(context.Background(), Options{Target: "vendor.lib.a", Output: out})
	if !errors.Is(err, model.ErrEmptyResult) || !strings.Contains(err.Error(), "vendor/lib.py is excluded") {
		t.Fatalf("expected excluded-target error, got %v", err)
	}

	runner.builder.SetIgnore(ignore.ParsePatterns(append(append([]string(nil), ignore.DefaultPatterns...), "!vendor")))
	report, err := runner.Run(context.Background(), Options{Target: "vendor.lib.a", Output: out})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !reflect.DeepEqual(report.Files, []string{"vendor/lib.py"}) {
		t.Fatalf("unexpected files %v", report.Files)
	}
	if !strings.Contains(readFile(t, out), "Module: vendor.lib.py") {
		t.Fatal("re-included vendor module missing from artifact")
	}
}

func TestRunEmptyProject(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"README.md": "docs", "skipme/a.py": ""})
	out := filepath.Join(t.TempDir(), "output.txt")

	_, err := newRunner(t, root, nil).Run(context.Background(), Options{Output: out})
	if !errors.Is(err, model.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("artifact should not be written")
	}
}

func TestRunSkipsUndecodableFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"good.py": "X = 1\n",
		"bad.py":  "X = '\xff'\n",
	})
	out := filepath.Join(t.TempDir(), "output.txt")

	report, err := newRunner(t, root, []string{"utf-8"}).Run(context.Background(), Options{Output: out})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !reflect.DeepEqual(report.Files, []string{"good.py"}) {
		t.Fatalf("unexpected bundled files %v", report.Files)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Path != "bad.py" {
		t.Fatalf("expected bad.py to be skipped, got %+v", report.Skipped)
	}
	if strings.Contains(readFile(t, out), "Module: bad.py") {
		t.Fatal("undecodable file should not be bundled")
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "output.txt")
	if _, err := newRunner(t, root, nil).Run(ctx, Options{Output: out}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriteAtomicReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")
	if err := WriteAtomic(path, []byte("first")); err != nil {
		t.Fatalf("WriteAtomic returned error: %v", err)
	}
	if err := WriteAtomic(path, []byte("second")); err != nil {
		t.Fatalf("WriteAtomic returned error: %v", err)
	}
	if got := readFile(t, path); got != "second" {
		t.Fatalf("expected second, got %q", got)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}
