package app

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"pyscan/internal/shared/util"
)

// Scanner expands analysis roots into the Python files to analyze.
// Exclude patterns are gobwas globs matched against base names.
type Scanner struct {
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
}

func NewScanner(excludeDirs, excludeFiles []string) (*Scanner, error) {
	dirs, err := compileGlobs("dir", excludeDirs)
	if err != nil {
		return nil, err
	}
	files, err := compileGlobs("file", excludeFiles)
	if err != nil {
		return nil, err
	}
	return &Scanner{excludeDirs: dirs, excludeFiles: files}, nil
}

func compileGlobs(kind string, patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude %s pattern %q: %w", kind, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Scan walks every root and returns the sorted, de-duplicated list of
// Python sources. A root that is itself a file is returned as long as it
// is a Python source, even when an exclude pattern matches it.
func (s *Scanner) Scan(roots []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if util.IsPythonSource(root) {
				add(root)
			}
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && s.skipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if util.IsPythonSource(path) && !s.skipFile(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Scanner) skipDir(path string) bool {
	return matchAny(s.excludeDirs, filepath.Base(path))
}

func (s *Scanner) skipFile(path string) bool {
	return matchAny(s.excludeFiles, filepath.Base(path))
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
