// Package selector enumerates candidate source files for analysis. It is a
// read-only traversal: exclusion rules and size limits decide which files
// the engine ever sees.
package selector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidRoot indicates the project root does not exist or is not a
// directory. This is fatal to the run; no partial work is attempted.
var ErrInvalidRoot = errors.New("invalid project root")

// DefaultMaxFileSize is the size cap above which files are skipped (1 MiB).
const DefaultMaxFileSize = 1 << 20

// Config controls file selection
type Config struct {
	// Extensions to include (default: [".py"])
	Extensions []string

	// ExcludePatterns for files/directories to skip. Matched at path
	// component boundaries, the same way health scanners exclude
	// vendor trees and VCS internals.
	ExcludePatterns []string

	// MaxFileSize in bytes. Oversized files are skipped with a warning,
	// never a failure.
	MaxFileSize int64
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Extensions: []string{".py"},
		ExcludePatterns: []string{
			".git/",
			".hg/",
			".svn/",
			"venv/",
			".venv/",
			"env/",
			"__pycache__/",
			"node_modules/",
			"vendor/",
			"build/",
			"dist/",
			".tox/",
			".eggs/",
			".mypy_cache/",
		},
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Selector walks a project root and produces an ordered, deduplicated
// sequence of candidate file paths.
type Selector struct {
	root string
	cfg  Config
}

// New creates a selector for the given project root. The root must exist
// and be a directory.
func New(root string, cfg Config) (*Selector, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidRoot, root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}

	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultConfig().Extensions
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	return &Selector{root: absRoot, cfg: cfg}, nil
}

// Root returns the absolute project root.
func (s *Selector) Root() string {
	return s.root
}

// Select walks the tree and returns candidate paths in stable lexical
// order with no duplicates. Traversal is read-only.
func (s *Selector) Select(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}

		if shouldExclude(relPath, s.cfg.ExcludePatterns) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if !hasExtension(path, s.cfg.Extensions) {
			return nil
		}

		if info.Size() > s.cfg.MaxFileSize {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %d bytes exceeds limit of %d\n",
				relPath, info.Size(), s.cfg.MaxFileSize)
			return nil
		}

		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}

	// filepath.Walk is already lexical, but sort anyway so order never
	// depends on traversal details
	sort.Strings(files)

	return files, nil
}

// shouldExclude checks a relative path against exclude patterns at path
// component boundaries. "venv/" matches "venv/x.py" and "src/venv/x.py"
// but not "myvenv/x.py".
func shouldExclude(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasPrefix(relPath, pattern) {
			return true
		}
		if strings.Contains(relPath, "/"+pattern) {
			return true
		}
		if strings.HasSuffix(relPath, pattern) {
			return true
		}
	}
	return false
}

func hasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
