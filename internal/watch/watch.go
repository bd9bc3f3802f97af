// Package watch re-runs a callback after debounced file-system changes to
// the Python sources below a root.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/odvcencio/pybundle/pkg/ignore"
)

// DefaultDebounce is used when Options.Debounce is not positive.
const DefaultDebounce = 250 * time.Millisecond

type Options struct {
	Root     string
	Debounce time.Duration
	// IgnoreFile is the ignore file, relative to Root unless absolute;
	// ignore.FileName when empty. Its events are always reported.
	IgnoreFile string
	// Ignore returns the matcher that prunes directories and files like the
	// bundle walk does. It is consulted on every event, so a matcher swapped
	// in by onChange applies to the next event. Nil ignores nothing.
	Ignore func() *ignore.Matcher
	// IgnorePaths are absolute paths whose events are dropped, such as the
	// artifact the callback writes.
	IgnorePaths map[string]bool
	Logger      *slog.Logger
}

// Run watches opts.Root until ctx is cancelled and calls onChange with the
// sorted set of changed paths once events stop arriving for the debounce
// interval. onChange runs on the calling goroutine.
func Run(ctx context.Context, opts Options, onChange func(changed []string)) error {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return err
	}
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ignoreFile := opts.IgnoreFile
	if strings.TrimSpace(ignoreFile) == "" {
		ignoreFile = ignore.FileName
	}
	if !filepath.IsAbs(ignoreFile) {
		ignoreFile = filepath.Join(root, ignoreFile)
	}
	ignoreFile = filepath.Clean(ignoreFile)

	matcher := func() *ignore.Matcher {
		if opts.Ignore == nil {
			return nil
		}
		return opts.Ignore()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, root, root, matcher()); err != nil {
		return err
	}
	// The ignore file may live outside the root or in a pruned directory.
	if err := watcher.Add(filepath.Dir(ignoreFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	pending := false
	pendingPaths := map[string]bool{}

	resetDebounce := func(path string) {
		if path != "" {
			pendingPaths[path] = true
		}
		if pending {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		timer.Reset(debounce)
		pending = true
	}

	logger.Info("watching", slog.String("root", root), slog.Duration("debounce", debounce))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			eventPath := filepath.Clean(event.Name)
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(eventPath); statErr == nil && info.IsDir() {
					if within(root, eventPath) && !shouldSkipDir(root, eventPath, matcher()) {
						_ = addWatchRecursive(watcher, eventPath, root, matcher())
						resetDebounce(eventPath)
					}
					continue
				}
			}

			if !relevant(eventPath, root, ignoreFile, opts.IgnorePaths, matcher()) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("change detected", slog.String("path", eventPath), slog.String("op", event.Op.String()))
			resetDebounce(eventPath)
		case <-timer.C:
			if pending {
				pending = false
				changed := make([]string, 0, len(pendingPaths))
				for path := range pendingPaths {
					changed = append(changed, path)
				}
				sort.Strings(changed)
				pendingPaths = map[string]bool{}
				onChange(changed)

				// Directories a reloaded matcher no longer prunes need watches.
				if slices.Contains(changed, ignoreFile) {
					if err := addWatchRecursive(watcher, root, root, matcher()); err != nil {
						logger.Warn("rescan watch set", slog.String("error", err.Error()))
					}
				}
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return watchErr
		}
	}
}

func addWatchRecursive(watcher *fsnotify.Watcher, dir string, root string, matcher *ignore.Matcher) error {
	dir = filepath.Clean(dir)
	return filepath.WalkDir(dir, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() {
			return nil
		}
		if shouldSkipDir(root, path, matcher) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func shouldSkipDir(root, path string, matcher *ignore.Matcher) bool {
	if path == root {
		return false
	}
	if matcher != nil {
		if relPath, err := filepath.Rel(root, path); err == nil {
			if matcher.Match(filepath.ToSlash(relPath), true) {
				return true
			}
		}
	}
	return false
}

// relevant reports whether an event on path can change the bundle: a Python
// source below root that is not ignored, or the ignore file itself.
func relevant(path, root, ignoreFile string, ignorePaths map[string]bool, matcher *ignore.Matcher) bool {
	if ignorePaths[path] {
		return false
	}
	if path == ignoreFile {
		return true
	}
	if !within(root, path) {
		return false
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, ".#") || !strings.EqualFold(filepath.Ext(base), ".py") {
		return false
	}
	if matcher != nil {
		if relPath, err := filepath.Rel(root, path); err == nil {
			if matcher.Match(filepath.ToSlash(relPath), false) {
				return false
			}
		}
	}
	return true
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
