package mcpsurface

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
)

// TreeNode is one entry of project://{path}/structure's answer.
type TreeNode struct {
	Name     string
	Path     string // project-relative, slash-separated
	IsDir    bool
	Children []TreeNode
}

// ProjectStructure answers project://{path}/structure: a directory tree
// rooted at root, pruned by maxDepth, .claudeignore and the caller's
// own exclude globs. maxDepth <= 0 means unbounded.
func (s *Surface) ProjectStructure(root string, maxDepth int, exclude []string) (TreeNode, error) {
	ignore, err := LoadClaudeignore(root)
	if err != nil {
		return TreeNode{}, err
	}
	name := filepath.Base(root)
	children, err := walkDir(root, root, maxDepth, 1, ignore, exclude)
	if err != nil {
		return TreeNode{}, err
	}
	return TreeNode{Name: name, Path: ".", IsDir: true, Children: children}, nil
}

func walkDir(root, dir string, maxDepth, depth int, ignore *IgnoreMatcher, exclude []string) ([]TreeNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errorkinds.NewIoFailure(dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []TreeNode
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(root, full)
		if err != nil {
			rel = e.Name()
		}
		rel = filepath.ToSlash(rel)
		if ignore.Match(rel) || matchesAny(exclude, rel) {
			continue
		}
		node := TreeNode{Name: e.Name(), Path: rel, IsDir: e.IsDir()}
		if e.IsDir() {
			if maxDepth > 0 && depth >= maxDepth {
				out = append(out, node)
				continue
			}
			children, err := walkDir(root, full, maxDepth, depth+1, ignore, exclude)
			if err != nil {
				return nil, err
			}
			node.Children = children
		}
		out = append(out, node)
	}
	return out, nil
}

func matchesAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

// Summary is project://{path}/summary's answer.
type Summary struct {
	Readme      string
	PackageInfo map[string]string
	GitInfo     map[string]string
}

// SummaryOptions are project://{path}/summary's query parameters.
type SummaryOptions struct {
	IncludeReadme      bool
	IncludePackageInfo bool
	IncludeGitInfo     bool
}

// ProjectSummary answers project://{path}/summary per spec.md §6.
func (s *Surface) ProjectSummary(ctx context.Context, root string, opts SummaryOptions) (Summary, error) {
	var out Summary
	if opts.IncludeReadme {
		out.Readme = readReadme(root)
	}
	if opts.IncludePackageInfo {
		out.PackageInfo = readPackageInfo(root)
	}
	if opts.IncludeGitInfo {
		out.GitInfo = readGitInfo(ctx, root)
	}
	return out, nil
}

var readmeCandidates = []string{"README.md", "README", "Readme.md", "readme.md"}

func readReadme(root string) string {
	for _, name := range readmeCandidates {
		raw, err := os.ReadFile(filepath.Join(root, name))
		if err == nil {
			return string(raw)
		}
	}
	return ""
}

// readPackageInfo extracts the module/package name and declared Go
// version from go.mod, the one manifest format every repo in this
// module's own domain carries; other ecosystems' manifests are out of
// scope per SPEC_FULL.md's Go-native framing.
func readPackageInfo(root string) map[string]string {
	raw, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil
	}
	info := make(map[string]string)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "module "):
			info["module"] = strings.TrimSpace(strings.TrimPrefix(line, "module "))
		case strings.HasPrefix(line, "go "):
			info["go_version"] = strings.TrimSpace(strings.TrimPrefix(line, "go "))
		}
	}
	return info
}

// readGitInfo shells out to the git CLI, grounded on the teacher's
// internal/git/provider.go pattern of exec.CommandContext("git", ...)
// rather than a vendored git implementation. Best-effort: a non-git
// directory yields an empty map, not an error.
func readGitInfo(ctx context.Context, root string) map[string]string {
	info := make(map[string]string)
	branch, err := runGit(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return info
	}
	info["branch"] = branch
	if commit, err := runGit(ctx, root, "rev-parse", "HEAD"); err == nil {
		info["commit"] = commit
	}
	if subject, err := runGit(ctx, root, "log", "-1", "--pretty=%s"); err == nil {
		info["last_commit_subject"] = subject
	}
	return info
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
