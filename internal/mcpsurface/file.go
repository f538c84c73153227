package mcpsurface

import (
	"fmt"
	"strings"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
	"github.com/codeforge/retrieval-core/internal/parser"
	"github.com/codeforge/retrieval-core/internal/types"
)

// parseFile re-derives a file's current parse Result on demand: the
// relational store keeps Symbols/Imports (spec.md §3's durable record),
// but the compact AST and semantic hash are cheap to recompute and
// aren't worth persisting per spec.md §4.3.
func (s *Surface) parseFile(path string) (types.Hash, parser.Result, error) {
	hash, raw, _, err := s.deps.Content.Read(path)
	if err != nil {
		return "", parser.Result{}, err
	}
	res, err := s.deps.Parser.ParseFile(path, raw)
	if err != nil {
		return hash, parser.Result{}, err
	}
	return hash, res, nil
}

// FileSymbols answers file://{path}/symbols from the durable record if
// the file has been indexed, falling back to a fresh parse otherwise so
// the resource still answers for a file reindex_knowledge_base hasn't
// reached yet.
func (s *Surface) FileSymbols(path string) ([]types.Symbol, error) {
	if s.deps.Metadata != nil {
		if f, ok, err := s.deps.Metadata.GetFile(path); err != nil {
			return nil, err
		} else if ok {
			return s.deps.Metadata.SymbolsForFile(f.Hash)
		}
	}
	_, res, err := s.parseFile(path)
	if err != nil {
		return nil, err
	}
	return res.Symbols, nil
}

// FileImports answers file://{path}/imports, same fallback as FileSymbols.
func (s *Surface) FileImports(path string) ([]types.Import, error) {
	if s.deps.Metadata != nil {
		if f, ok, err := s.deps.Metadata.GetFile(path); err != nil {
			return nil, err
		} else if ok {
			return s.deps.Metadata.ImportsForFile(f.Hash)
		}
	}
	_, res, err := s.parseFile(path)
	if err != nil {
		return nil, err
	}
	return res.Imports, nil
}

// FileExports answers file://{path}/exports: the names of exported
// symbols, per spec.md §6.
func (s *Surface) FileExports(path string) ([]string, error) {
	symbols, err := s.FileSymbols(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, sym := range symbols {
		if sym.Exported {
			names = append(names, sym.Name)
		}
	}
	return names, nil
}

// FileDiagnostics answers file://{path}/diagnostics: the parse errors
// recorded for the file's current version, per spec.md §4.3's
// ParseFailure-is-always-locally-recovered policy — a parse error never
// aborts indexing, it surfaces here instead.
func (s *Surface) FileDiagnostics(path string) ([]string, error) {
	if s.deps.Metadata != nil {
		if f, ok, err := s.deps.Metadata.GetFile(path); err != nil {
			return nil, err
		} else if ok {
			return f.ParseErrors, nil
		}
	}
	_, res, err := s.parseFile(path)
	if err != nil {
		return nil, err
	}
	return res.ParseErrors, nil
}

// FileStructure answers file://{path}/structure: a Markdown outline of
// the file's symbols, ordered per spec.md §3 invariant (iv).
func (s *Surface) FileStructure(path string) (string, error) {
	symbols, err := s.FileSymbols(path)
	if err != nil {
		return "", err
	}
	return renderStructure(path, symbols), nil
}

func renderStructure(path string, symbols []types.Symbol) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", path)
	for _, sym := range symbols {
		indent := ""
		if sym.Enclosing != nil {
			indent = "  "
		}
		marker := "-"
		if sym.Exported {
			marker = "+"
		}
		fmt.Fprintf(&b, "%s%s %s `%s` (%d-%d)\n", indent, marker, sym.Kind, sym.Name, sym.Start.Line, sym.End.Line)
	}
	return b.String()
}

// ASTOptions are file://{path}/ast's query parameters, per spec.md §6.
type ASTOptions struct {
	Compact             bool
	UseSymbolTable      bool
	MaxDepth            int
	IncludeSemanticHash bool
	OmitRedundantText   bool
}

// ASTResult is file://{path}/ast's answer.
type ASTResult struct {
	Tree         parser.CompactNode
	SemanticHash string
	Symbols      []types.Symbol
}

// FileAST answers file://{path}/ast. Compact and OmitRedundantText are
// accepted but are no-ops against CompactNode: the tree it builds never
// carries raw token text in the first place (only Kind/Start/End), so
// there is no redundant text to omit — the options exist for forward
// parity with spec.md §6's query contract, not because this tree needs
// trimming.
func (s *Surface) FileAST(path string, opts ASTOptions) (ASTResult, error) {
	_, res, err := s.parseFile(path)
	if err != nil {
		return ASTResult{}, err
	}
	tree := res.CompactTree
	if opts.MaxDepth > 0 {
		tree = truncateDepth(tree, opts.MaxDepth)
	}
	out := ASTResult{Tree: tree}
	if opts.IncludeSemanticHash {
		out.SemanticHash = res.SemanticHash
	}
	if opts.UseSymbolTable {
		out.Symbols = res.Symbols
	}
	return out, nil
}

func truncateDepth(n parser.CompactNode, maxDepth int) parser.CompactNode {
	return truncateAt(n, maxDepth, 0)
}

func truncateAt(n parser.CompactNode, maxDepth, depth int) parser.CompactNode {
	out := parser.CompactNode{Kind: n.Kind, Start: n.Start, End: n.End}
	if depth >= maxDepth {
		return out
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, truncateAt(c, maxDepth, depth+1))
	}
	return out
}

// requireNonEmpty is the shared guard every tool/resource handler opens
// with: spec.md §7 classifies a missing required argument as
// InvalidArgument, never a panic or a silent zero-value.
func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errorkinds.NewInvalidArgument(field, "must not be empty")
	}
	return nil
}
