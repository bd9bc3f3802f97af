package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/pybundle/pkg/lang/python"
	"github.com/odvcencio/pybundle/pkg/model"
	"github.com/odvcencio/pybundle/pkg/source"
)

// DefaultCacheSize is the number of parsed files kept by a Cache.
const DefaultCacheSize = 512

// Cache keeps parsed files keyed by absolute path. An entry is reused only
// while the file's size and modification time are unchanged.
type Cache struct {
	entries *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	SizeBytes       int64
	ModTimeUnixNano int64
	Index           *python.Index
	Err             error
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

func (c *Cache) get(path string, info fs.FileInfo) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	entry, ok := c.entries.Get(path)
	if !ok {
		return cacheEntry{}, false
	}
	if entry.SizeBytes != info.Size() || entry.ModTimeUnixNano != info.ModTime().UnixNano() {
		c.entries.Remove(path)
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) put(path string, info fs.FileInfo, idx *python.Index, err error) {
	if c == nil {
		return
	}
	c.entries.Add(path, cacheEntry{
		SizeBytes:       info.Size(),
		ModTimeUnixNano: info.ModTime().UnixNano(),
		Index:           idx,
		Err:             err,
	})
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Encodings []string
	Cache     *Cache
	Logger    *slog.Logger
}

// Loader reads and parses Python files below one project root.
type Loader struct {
	root      string
	encodings []string
	parser    *python.Parser
	cache     *Cache
	logger    *slog.Logger
}

func NewLoader(root string, opts LoaderOptions) (*Loader, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	if err := source.ValidateEncodings(opts.Encodings); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		root:      filepath.Clean(abs),
		encodings: opts.Encodings,
		parser:    python.NewParser(),
		cache:     opts.Cache,
		logger:    logger,
	}, nil
}

// Root returns the absolute project root.
func (l *Loader) Root() string {
	return l.root
}

// Rel returns path relative to the root in slash form.
func (l *Loader) Rel(path string) string {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Module returns the dotted module name of a file below the root.
func (l *Loader) Module(path string) string {
	return model.ModuleFromPath(l.Rel(path))
}

// Resolve maps a dotted module path to its file: <root>/a/b.py, falling back
// to the package file <root>/a/b/__init__.py.
func (l *Loader) Resolve(module string) (string, bool) {
	module = strings.Trim(module, ".")
	if module == "" {
		return "", false
	}
	base := filepath.Join(append([]string{l.root}, strings.Split(module, ".")...)...)
	for _, candidate := range []string{base + ".py", filepath.Join(base, "__init__.py")} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Read returns the decoded content of path.
func (l *Loader) Read(path string) (string, error) {
	return source.ReadFile(path, l.encodings)
}

// Load reads and parses path. Parse results are served from the cache while
// the file is unchanged.
func (l *Loader) Load(path string) (*python.Index, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if entry, ok := l.cache.get(path, info); ok {
		return entry.Index, entry.Err
	}

	idx, err := l.load(path)
	var decodeErr *model.DecodeError
	var parseErr *model.ParseError
	if err == nil || errors.As(err, &decodeErr) || errors.As(err, &parseErr) {
		l.cache.put(path, info, idx, err)
	}
	return idx, err
}

func (l *Loader) load(path string) (*python.Index, error) {
	text, err := l.Read(path)
	if err != nil {
		return nil, err
	}
	rel := l.Rel(path)
	idx, err := l.parser.Parse(rel, l.Module(path), []byte(text))
	if err != nil {
		return nil, err
	}
	idx.Path = path
	l.logger.Debug("parsed file",
		slog.String("path", rel),
		slog.Int("definitions", len(idx.Definitions)),
		slog.Int("imports", idx.Aliases.Len()),
	)
	return idx, nil
}
