package parser

import (
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
	"github.com/codeforge/retrieval-core/internal/types"
)

var symbolKindByCapture = map[string]types.SymbolKind{
	"function":  types.KindFunction,
	"method":    types.KindMethod,
	"class":     types.KindClass,
	"interface": types.KindInterface,
	"type":      types.KindTypeAlias,
	"enum":      types.KindEnum,
	"struct":    types.KindStruct,
	"variable":  types.KindVariable,
	"constant":  types.KindConstant,
}

// maxSignatureLen caps the Signature field stored per spec.md §4.3 (first
// line of the declaration, trimmed).
const maxSignatureLen = 200

// Result is one file's parse output.
type Result struct {
	ParseSuccess bool
	ParseErrors  []string
	Symbols      []types.Symbol
	Imports      []types.Import
	Exported     []string // names of exported symbols, for the boosted-term set
	CompactTree  CompactNode
	SemanticHash string
}

// Parser extracts Result from a file's canonical bytes. Stateless beyond
// a per-instance tree-sitter Parser cache; neither that cache map nor
// tree_sitter.Parser is goroutine-safe, so a Parser is not safe for
// concurrent use and callers construct one Parser per worker goroutine.
type parserEntry struct {
	parser   *tree_sitter.Parser
	language *tree_sitter.Language
}

type Parser struct {
	instances map[string]*parserEntry
}

// New returns a Parser ready to extract any registered language.
func New() *Parser {
	return &Parser{instances: make(map[string]*parserEntry)}
}

// SupportsExt reports whether ext (with leading dot, any case) has a
// registered language.
func SupportsExt(ext string) bool {
	_, ok := registry[strings.ToLower(ext)]
	return ok
}

// ParseFile extracts Result for path given its canonical content. An
// unregistered extension returns a zero-value Result with
// ParseSuccess=false and a nil error: spec.md §4.3 treats this as a
// non-event, not a failure.
func (p *Parser) ParseFile(path string, content []byte) (Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	spec, ok := registry[ext]
	if !ok {
		return Result{ParseSuccess: false}, nil
	}

	entry, err := p.entryFor(ext, spec)
	if err != nil {
		return Result{ParseSuccess: false}, errorkinds.NewParseFailure(path, 0, 0, err)
	}

	tree := entry.parser.Parse(content, nil)
	if tree == nil {
		return Result{ParseSuccess: false}, errorkinds.NewParseFailure(path, 0, 0, nil)
	}
	defer tree.Close()
	root := tree.RootNode()

	result := Result{ParseSuccess: true}
	if root.HasError() {
		result.ParseSuccess = false
		for _, pos := range collectErrorPositions(root) {
			result.ParseErrors = append(result.ParseErrors, errorkinds.NewParseFailure(path, pos.Line, pos.Column, nil).Error())
		}
	}

	if spec.query != "" {
		query, qErr := tree_sitter.NewQuery(entry.language, spec.query)
		if qErr == nil && query != nil {
			defer query.Close()
			symbols, imports := extractMatches(query, root, content, path, spec)
			result.Symbols = symbols
			result.Imports = imports
			for _, s := range symbols {
				if s.Exported {
					result.Exported = append(result.Exported, s.Name)
				}
			}
		}
	}

	result.CompactTree = BuildCompactTree(&root, spec.significant, 0)
	result.SemanticHash = SemanticHash(result.CompactTree)
	return result, nil
}

func (p *Parser) entryFor(ext string, spec *languageSpec) (*parserEntry, error) {
	if existing, ok := p.instances[ext]; ok {
		return existing, nil
	}
	tsParser := tree_sitter.NewParser()
	language := tree_sitter.NewLanguage(spec.language())
	if err := tsParser.SetLanguage(language); err != nil {
		return nil, err
	}
	entry := &parserEntry{parser: tsParser, language: language}
	p.instances[ext] = entry
	return entry, nil
}

type errPos struct{ Line, Column int }

// collectErrorPositions walks the tree for ERROR/MISSING nodes so a
// syntax error in one subtree is recorded without discarding symbols
// extracted from sibling subtrees (spec.md §8's parser-robustness
// property).
func collectErrorPositions(node tree_sitter.Node) []errPos {
	var out []errPos
	var walk func(n tree_sitter.Node)
	walk = func(n tree_sitter.Node) {
		if n.IsError() || n.IsMissing() {
			out = append(out, errPos{Line: int(n.StartPosition().Row) + 1, Column: int(n.StartPosition().Column) + 1})
			return // don't descend into the broken subtree further
		}
		count := int(n.ChildCount())
		for i := 0; i < count; i++ {
			child := n.Child(uint(i))
			if child != nil {
				walk(*child)
			}
		}
	}
	walk(node)
	return out
}

func extractMatches(query *tree_sitter.Query, root tree_sitter.Node, content []byte, path string, spec *languageSpec) ([]types.Symbol, []types.Import) {
	captureNames := query.CaptureNames()
	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()
	matches := cursor.Matches(query, root, content)

	var symbols []types.Symbol
	var imports []types.Import

	for {
		match := matches.Next()
		if match == nil {
			break
		}

		names := make(map[string]string, 4)
		for _, c := range match.Captures {
			cn := captureNames[c.Index]
			if strings.HasSuffix(cn, ".name") || strings.HasSuffix(cn, ".source") || strings.HasSuffix(cn, ".path") {
				names[cn] = text(content, c.Node)
			}
		}
		// Ruby's import query matches any call with one string argument;
		// only `require`/`require_relative` actually denote an import edge.
		if callee := names["import.name"]; callee != "" && callee != "require" && callee != "require_relative" {
			continue
		}

		for _, c := range match.Captures {
			cn := captureNames[c.Index]
			if strings.Contains(cn, ".") {
				continue // a sub-capture, already consumed above
			}

			node := c.Node
			if cn == "import" {
				importSpec := firstNonEmpty(names["import.source"], names["import.path"])
				imports = append(imports, types.Import{
					FilePath: path,
					Spec:     trimQuotes(importSpec),
				})
				continue
			}

			kind, ok := symbolKindByCapture[cn]
			if !ok {
				continue // e.g. "module"/"export": not a standalone symbol kind
			}
			name := names[cn+".name"]
			if name == "" {
				continue
			}
			declText := text(content, node)
			sym := types.Symbol{
				FilePath:  path,
				Kind:      kind,
				Name:      name,
				Start:     types.Position{Line: int(node.StartPosition().Row) + 1, Column: int(node.StartPosition().Column) + 1},
				End:       types.Position{Line: int(node.EndPosition().Row) + 1, Column: int(node.EndPosition().Column) + 1},
				Exported:  spec.exported(kind, name, declText),
				Signature: firstLine(declText, maxSignatureLen),
			}
			symbols = append(symbols, sym)
		}
	}
	return symbols, imports
}

func text(content []byte, node tree_sitter.Node) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint(len(content)) || start > end {
		return ""
	}
	return string(content[start:end])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return s
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max]
	}
	return s
}
