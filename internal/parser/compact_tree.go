package parser

import (
	"crypto/sha256"
	"encoding/hex"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// CompactNode is one node of the pruned AST spec.md §4.3's file://{path}/ast
// resource returns. Node kinds absent from a language's significant set are
// folded into a synthetic "group" node so the tree stays legible without
// every punctuation/literal leaf tree-sitter produces.
type CompactNode struct {
	Kind     string
	Start    int // 0-based line
	End      int
	Children []CompactNode
}

var (
	goSignificantKinds = map[string]bool{
		"source_file": true, "function_declaration": true, "method_declaration": true,
		"type_declaration": true, "type_spec": true, "struct_type": true, "interface_type": true,
		"const_declaration": true, "var_declaration": true, "import_declaration": true, "import_spec": true,
		"block": true, "if_statement": true, "for_statement": true, "return_statement": true,
	}
	jsLikeSignificantKinds = map[string]bool{
		"program": true, "function_declaration": true, "class_declaration": true, "method_definition": true,
		"interface_declaration": true, "type_alias_declaration": true, "enum_declaration": true,
		"variable_declarator": true, "import_statement": true, "export_statement": true,
		"statement_block": true, "if_statement": true, "for_statement": true, "arrow_function": true,
	}
	pySignificantKinds = map[string]bool{
		"module": true, "function_definition": true, "class_definition": true,
		"import_statement": true, "import_from_statement": true, "block": true,
		"if_statement": true, "for_statement": true, "return_statement": true,
	}
	cLikeSignificantKinds = map[string]bool{
		"translation_unit": true, "program": true, "function_definition": true, "function_declaration": true,
		"method_declaration": true, "class_declaration": true, "class_specifier": true, "struct_specifier": true,
		"interface_declaration": true, "enum_declaration": true, "enum_specifier": true,
		"import_declaration": true, "using_declaration": true, "namespace_declaration": true,
		"compound_statement": true, "block": true, "if_statement": true, "for_statement": true,
	}
	markupSignificantKinds = map[string]bool{
		"document": true, "object": true, "array": true, "pair": true, "block_mapping": true,
		"block_mapping_pair": true, "table": true, "rule_set": true, "element": true,
	}
)

// BuildCompactTree walks node, collapsing any child whose kind is not in
// significant into a "group" node whose children are that child's
// significant descendants (nested insignificant levels flattened), so an unrecognised grammar still yields a bounded-fanout
// tree rather than tree-sitter's full concrete syntax tree.
func BuildCompactTree(node *tree_sitter.Node, significant map[string]bool, maxDepth int) CompactNode {
	return buildCompact(node, significant, maxDepth, 0)
}

func buildCompact(node *tree_sitter.Node, significant map[string]bool, maxDepth, depth int) CompactNode {
	kind := node.Kind()
	out := CompactNode{
		Kind:  kind,
		Start: int(node.StartPosition().Row),
		End:   int(node.EndPosition().Row),
	}
	if maxDepth > 0 && depth >= maxDepth {
		return out
	}
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(uint(i))
		if child == nil || !child.IsNamed() {
			continue
		}
		if significant[child.Kind()] {
			out.Children = append(out.Children, buildCompact(child, significant, maxDepth, depth+1))
			continue
		}
		// Insignificant: replace it with a synthetic "group" node that
		// forwards its significant descendants; a subtree with none is
		// dropped.
		forwarded := collapseInsignificant(child, significant, maxDepth, depth+2)
		if len(forwarded) == 0 {
			continue
		}
		group := CompactNode{Kind: "group", Start: int(child.StartPosition().Row), End: int(child.EndPosition().Row)}
		if maxDepth <= 0 || depth+1 < maxDepth {
			group.Children = forwarded
		}
		out.Children = append(out.Children, group)
	}
	return out
}

func collapseInsignificant(node *tree_sitter.Node, significant map[string]bool, maxDepth, depth int) []CompactNode {
	var found []CompactNode
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(uint(i))
		if child == nil || !child.IsNamed() {
			continue
		}
		if significant[child.Kind()] {
			found = append(found, buildCompact(child, significant, maxDepth, depth))
			continue
		}
		found = append(found, collapseInsignificant(child, significant, maxDepth, depth)...)
	}
	return found
}

// SemanticHash hashes a CompactNode tree over kinds and structure only,
// deliberately ignoring Start/End so two files differing only in
// formatting or comments hash identically (Testable Property: semantic
// hash stability under whitespace-only edits).
func SemanticHash(root CompactNode) string {
	h := sha256.New()
	var walk func(n CompactNode)
	walk = func(n CompactNode) {
		h.Write([]byte(n.Kind))
		h.Write([]byte{0})
		for _, c := range n.Children {
			walk(c)
		}
		h.Write([]byte{1})
	}
	walk(root)
	return hex.EncodeToString(h.Sum(nil))
}
