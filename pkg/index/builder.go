// Package index discovers Python files below a project root, parses them and
// maps qualified symbols to the files that define them.
package index

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/pybundle/pkg/ignore"
	"github.com/odvcencio/pybundle/pkg/model"
)

// BuildStats summarizes one IndexAllFiles pass.
type BuildStats struct {
	CandidateFiles int `json:"candidate_files"`
	ParsedFiles    int `json:"parsed_files"`
	SkippedFiles   int `json:"skipped_files"`
	Symbols        int `json:"symbols"`
}

// Builder walks a project root and indexes the Python files it finds.
type Builder struct {
	loader *Loader
	ignore *ignore.Matcher
	logger *slog.Logger
	stats  BuildStats
}

func NewBuilder(loader *Loader, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		loader: loader,
		ignore: ignore.ParsePatterns(ignore.DefaultPatterns),
		logger: logger,
	}
}

// SetIgnore replaces the matcher used to skip paths during the walk. The
// builder starts with ignore.DefaultPatterns; nil disables all pruning.
func (b *Builder) SetIgnore(m *ignore.Matcher) {
	b.ignore = m
}

// Ignore returns the current ignore matcher, nil when pruning is disabled.
func (b *Builder) Ignore() *ignore.Matcher {
	return b.ignore
}

// Loader returns the loader used to read and parse files.
func (b *Builder) Loader() *Loader {
	return b.loader
}

// Stats returns the statistics of the last IndexAllFiles call.
func (b *Builder) Stats() BuildStats {
	return b.stats
}

// Collect returns the absolute paths of every non-ignored .py file below the
// root, sorted. Directories matched by the ignore matcher are not entered.
func (b *Builder) Collect() ([]string, error) {
	root := b.loader.Root()
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is empty")
	}

	files := make([]string, 0, 128)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if entry.IsDir() {
			if path == root {
				return nil
			}
			if b.Skip(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(path), ".py") {
			return nil
		}
		if b.Skip(path, false) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	b.logger.Debug("collected files", slog.String("root", root), slog.Int("files", len(files)))
	return files, nil
}

// Skip reports whether path is excluded by the ignore matcher.
func (b *Builder) Skip(path string, isDir bool) bool {
	if b.ignore == nil {
		return false
	}
	relPath, err := filepath.Rel(b.loader.Root(), path)
	if err != nil {
		return false
	}
	return b.ignore.Match(filepath.ToSlash(relPath), isDir)
}

// IndexAllFiles parses every file once and maps each module-qualified
// definition to its file. The first file to define a symbol keeps it.
// Package __init__.py files are also keyed by the package module itself.
// Files that cannot be decoded or parsed are skipped and reported.
func (b *Builder) IndexAllFiles(files []string) (model.FileSymbolMap, []model.FileError) {
	stats := BuildStats{CandidateFiles: len(files)}
	symbols := model.FileSymbolMap{}
	var skipped []model.FileError

	for _, path := range files {
		idx, err := b.loader.Load(path)
		if err != nil {
			stats.SkippedFiles++
			skipped = append(skipped, model.FileError{Path: b.loader.Rel(path), Error: err.Error()})
			b.logFileError(path, err)
			continue
		}
		stats.ParsedFiles++

		modules := []string{idx.Module}
		if pkg, ok := strings.CutSuffix(idx.Module, ".__init__"); ok {
			modules = append(modules, pkg)
		}
		for _, name := range idx.Definitions.Names() {
			for _, module := range modules {
				if symbols.Add(model.Symbol{Module: module, Name: name}, idx.Path) {
					stats.Symbols++
				}
			}
		}
	}

	b.stats = stats
	b.logger.Debug("indexed files",
		slog.Int("parsed", stats.ParsedFiles),
		slog.Int("skipped", stats.SkippedFiles),
		slog.Int("symbols", stats.Symbols),
	)
	return symbols, skipped
}

func (b *Builder) logFileError(path string, err error) {
	var decodeErr *model.DecodeError
	if errors.As(err, &decodeErr) {
		b.logger.Warn("skipping undecodable file", slog.String("path", b.loader.Rel(path)), slog.Any("encodings", decodeErr.Encodings))
		return
	}
	b.logger.Debug("skipping file", slog.String("path", b.loader.Rel(path)), slog.String("error", err.Error()))
}
