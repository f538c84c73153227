package mcpsurface

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
)

// IgnoreMatcher evaluates project://{path}/structure's .claudeignore
// exclusions: a gitignore-format file (blank lines and '#' comments
// skipped, negation unsupported) matched with doublestar globs.
//
// Grounded on fyrsmithlabs-contextd/internal/ignore/ignore.go, the
// pack's only gitignore-style parser, adapted from its
// multi-ignore-file/fallback-pattern Parser down to the single
// `.claudeignore` file spec.md §6 names.
type IgnoreMatcher struct {
	patterns []string
}

// LoadClaudeignore reads root's .claudeignore, or returns an empty
// (never-matches) IgnoreMatcher if the file doesn't exist.
func LoadClaudeignore(root string) (*IgnoreMatcher, error) {
	f, err := os.Open(filepath.Join(root, ".claudeignore"))
	if os.IsNotExist(err) {
		return &IgnoreMatcher{}, nil
	}
	if err != nil {
		return nil, errorkinds.NewIoFailure(root, err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if p := parseIgnoreLine(scanner.Text()); p != "" {
			patterns = append(patterns, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errorkinds.NewIoFailure(root, err)
	}
	return &IgnoreMatcher{patterns: patterns}, nil
}

// parseIgnoreLine returns "" for comments/blank lines/negations, else a
// doublestar glob pattern equivalent to the gitignore line.
func parseIgnoreLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

func toGlobPattern(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "/")
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "*") {
		pattern = "**/" + pattern
	}
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}
	return pattern
}

// Match reports whether relPath (slash-separated, project-relative)
// is excluded by any loaded pattern.
func (m *IgnoreMatcher) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}
