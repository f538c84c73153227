package mcpsurface

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProjectStructureExcludesClaudeignoreAndExcludeGlobs(t *testing.T) {
	s := newTestSurface(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".claudeignore"), []byte("node_modules\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.key"), []byte("x"), 0o644))

	tree, err := s.ProjectStructure(dir, 0, []string{"*.key"})
	require.NoError(t, err)

	var names []string
	for _, c := range tree.Children {
		names = append(names, c.Name)
	}
	require.Contains(t, names, "main.go")
	require.NotContains(t, names, "node_modules")
	require.NotContains(t, names, "secret.key")
}

func TestProjectStructureRespectsMaxDepth(t *testing.T) {
	s := newTestSurface(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "deep.go"), []byte("x"), 0o644))

	tree, err := s.ProjectStructure(dir, 1, nil)
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	require.Equal(t, "a", tree.Children[0].Name)
	require.Empty(t, tree.Children[0].Children)
}

func TestProjectSummaryReadsReadmeAndPackageInfo(t *testing.T) {
	s := newTestSurface(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/demo\n\ngo 1.22\n"), 0o644))

	summary, err := s.ProjectSummary(context.Background(), dir, SummaryOptions{
		IncludeReadme:      true,
		IncludePackageInfo: true,
	})
	require.NoError(t, err)
	require.Equal(t, "# Hello", summary.Readme)
	require.Equal(t, "example.com/demo", summary.PackageInfo["module"])
	require.Equal(t, "1.22", summary.PackageInfo["go_version"])
	require.Nil(t, summary.GitInfo)
}

func TestProjectSummaryGitInfoDegradesOutsideRepo(t *testing.T) {
	s := newTestSurface(t)
	dir := t.TempDir()

	summary, err := s.ProjectSummary(context.Background(), dir, SummaryOptions{IncludeGitInfo: true})
	require.NoError(t, err)
	require.Empty(t, summary.GitInfo)
}
