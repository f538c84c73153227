// Package storagelayout resolves on-disk paths for a project, per
// spec.md §4.1. It has no mutable state: every function is pure given a
// project root and an environment snapshot. Grounded on the teacher's
// internal/config project-root resolution plus pkg/pathutil.
package storagelayout

import (
	"os"
	"path/filepath"

	"github.com/codeforge/retrieval-core/internal/types"
)

const (
	projectLocalDir = "var/storage"
	globalDirName   = ".mcptools"

	// EnvForceScope forces a scope regardless of <project>/var's existence.
	EnvForceScope = "RETRIEVAL_FORCE_SCOPE"
)

// Layout resolves storage paths for one project root.
type Layout struct {
	ProjectRoot string
	HomeDir     string
}

// New builds a Layout for projectRoot, resolving the user's home
// directory once (failures fall back to "" so global-scope lookups
// simply miss rather than panic).
func New(projectRoot string) *Layout {
	home, _ := os.UserHomeDir()
	return &Layout{ProjectRoot: projectRoot, HomeDir: home}
}

// ResolveScope implements the deterministic selection rule of spec.md
// §4.1: if <project>/var exists, project-local; otherwise global; an
// environment override forces either.
func (l *Layout) ResolveScope() types.Scope {
	switch os.Getenv(EnvForceScope) {
	case "project":
		return types.ScopeProjectLocal
	case "global":
		return types.ScopeGlobal
	}
	if info, err := os.Stat(filepath.Join(l.ProjectRoot, "var")); err == nil && info.IsDir() {
		return types.ScopeProjectLocal
	}
	return types.ScopeGlobal
}

// BasePath returns the root storage directory for scope.
func (l *Layout) BasePath(scope types.Scope) string {
	if scope == types.ScopeGlobal {
		return filepath.Join(l.HomeDir, globalDirName)
	}
	return filepath.Join(l.ProjectRoot, projectLocalDir)
}

// VectorStorePath returns the directory for one named Collection.
func (l *Layout) VectorStorePath(scope types.Scope, collection string) string {
	return filepath.Join(l.BasePath(scope), "vector", collection)
}

// RelationalPath returns the path to a named Badger database directory.
func (l *Layout) RelationalPath(scope types.Scope, dbName string) string {
	return filepath.Join(l.BasePath(scope), "db", dbName)
}

// EmbeddingConfigPath returns the path to embedding_config.json.
func (l *Layout) EmbeddingConfigPath(scope types.Scope) string {
	return filepath.Join(l.BasePath(scope), "embedding_config.json")
}

// SearchPaths returns the scope base paths in read order, project-local
// before global, so a reader can fall back to an older global store even
// after a project-local one exists. It takes no kind argument: the
// entries are scope roots, and callers append the "vector" or "db"
// sub-path themselves.
func (l *Layout) SearchPaths() []string {
	return []string{
		l.BasePath(types.ScopeProjectLocal),
		l.BasePath(types.ScopeGlobal),
	}
}

// EnsureDir lazily creates dir; creation failures are reported, never
// swallowed, per spec.md §4.1.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
