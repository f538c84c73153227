package storagelayout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codeforge/retrieval-core/internal/types"
	"github.com/stretchr/testify/require"
)

func TestResolveScopeDefaultsToGlobalWithoutVarDir(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	require.Equal(t, types.ScopeGlobal, l.ResolveScope())
}

func TestResolveScopePrefersProjectLocalWhenVarExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "var"), 0o755))
	l := New(dir)
	require.Equal(t, types.ScopeProjectLocal, l.ResolveScope())
}

func TestResolveScopeEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvForceScope, "global")
	l := New(dir)
	require.Equal(t, types.ScopeGlobal, l.ResolveScope())

	t.Setenv(EnvForceScope, "project")
	require.Equal(t, types.ScopeProjectLocal, l.ResolveScope())
}

func TestSearchPathsLeavesFirst(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	paths := l.SearchPaths()
	require.Len(t, paths, 2)
	require.Equal(t, l.BasePath(types.ScopeProjectLocal), paths[0])
	require.Equal(t, l.BasePath(types.ScopeGlobal), paths[1])
}
