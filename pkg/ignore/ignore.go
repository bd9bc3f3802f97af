// Package ignore implements .bundleignore pattern matching for filtering file paths.
package ignore

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up at the project root.
const FileName = ".bundleignore"

// DefaultPatterns are always active, before any ignore-file patterns, so an
// ignore file can re-include them with "!name".
var DefaultPatterns = []string{"__pycache__", ".*/", "node_modules/", "vendor/"}

type pattern struct {
	raw      string
	negated  bool
	dirOnly  bool
	anchored bool
	glob     string
}

// Matcher evaluates file paths against a set of glob patterns.
type Matcher struct {
	patterns []pattern
}

// Load reads patterns from a file, one per line, after DefaultPatterns.
func Load(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := append([]string(nil), DefaultPatterns...)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ParsePatterns(lines), nil
}

// LoadOrDefault is Load, falling back to DefaultPatterns when the file does
// not exist.
func LoadOrDefault(path string) (*Matcher, error) {
	m, err := Load(path)
	if err == nil {
		return m, nil
	}
	if os.IsNotExist(err) {
		return ParsePatterns(DefaultPatterns), nil
	}
	return nil, err
}

// ParsePatterns builds a Matcher from raw pattern lines.
func ParsePatterns(lines []string) *Matcher {
	m := &Matcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p := pattern{raw: line}

		if strings.HasPrefix(line, "!") {
			p.negated = true
			line = line[1:]
		}

		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}

		line = path.Clean(filepath.ToSlash(line))
		p.anchored = strings.Contains(line, "/")
		line = strings.TrimPrefix(line, "/")
		if line == "" || line == "." {
			continue
		}
		if !doublestar.ValidatePattern(line) {
			continue
		}

		p.glob = line
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Patterns returns the active patterns as written.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p.raw)
	}
	return out
}

// Match returns true if the given path should be ignored.
// The path should be relative to the project root; it is normalized to
// slash-separated form before matching. isDir indicates whether the path
// refers to a directory.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	relPath = strings.TrimPrefix(path.Clean(filepath.ToSlash(relPath)), "./")
	if relPath == "." || relPath == "" {
		return false
	}
	ignored := false

	for _, p := range m.patterns {
		if matchPattern(p, relPath, isDir) {
			ignored = !p.negated
		}
	}
	return ignored
}

// matchPattern checks whether a pattern matches the given path, the way
// gitignore does: patterns without a slash match any path component, so
// "build" ignores every directory named build. Patterns with a slash,
// including a leading one, are anchored at the root and match the full path
// or any path below it.
func matchPattern(p pattern, relPath string, isDir bool) bool {
	parts := strings.Split(relPath, "/")
	if p.dirOnly && !isDir {
		parts = parts[:len(parts)-1]
	}

	if p.anchored {
		for i := len(parts); i > 0; i-- {
			if matched, _ := doublestar.Match(p.glob, strings.Join(parts[:i], "/")); matched {
				return true
			}
		}
		return false
	}

	for _, part := range parts {
		if matched, _ := doublestar.Match(p.glob, part); matched {
			return true
		}
	}
	return false
}
