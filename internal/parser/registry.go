// Package parser implements the multi-language extractor of spec.md §4.3:
// given a file's canonical bytes it produces the file's Symbol list,
// Import list, exported-name set, a pruned "compact tree" and a
// position-independent semantic hash.
//
// Grounded on the teacher's internal/parser/parser_language_setup.go for
// the per-extension tree_sitter.NewParser/SetLanguage/NewQuery wiring
// pattern, and on internal/parser/parser.go's extractBasicSymbolsStringRef
// for the QueryCursor.Matches/CaptureNames capture-resolution pattern.
// Unlike the teacher's UnifiedExtractor this package does not track
// side effects, cyclomatic complexity or performance anti-patterns: that
// is out of scope for spec.md §4.3's extraction contract.
package parser

import (
	tree_sitter_bash "github.com/tree-sitter-grammars/tree-sitter-bash/bindings/go"
	tree_sitter_css "github.com/tree-sitter-grammars/tree-sitter-css/bindings/go"
	tree_sitter_dart "github.com/tree-sitter-grammars/tree-sitter-dart/bindings/go"
	tree_sitter_kotlin "github.com/tree-sitter-grammars/tree-sitter-kotlin/bindings/go"
	tree_sitter_toml "github.com/tree-sitter-grammars/tree-sitter-toml/bindings/go"
	tree_sitter_yaml "github.com/tree-sitter-grammars/tree-sitter-yaml/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_json "github.com/tree-sitter/tree-sitter-json/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/codeforge/retrieval-core/internal/types"
)

// exportRule decides whether a symbol of kind, named name, whose raw
// declaration text is text, counts as exported in its language.
type exportRule func(kind types.SymbolKind, name, text string) bool

// languageSpec is one entry in the extension registry. query is a
// tree-sitter S-expression string; captures named "<kind>" delimit a
// symbol/import's full range, "<kind>.name" captures its identifier.
type languageSpec struct {
	name        string
	language    func() *tree_sitter.Language
	query       string
	exported    exportRule
	significant map[string]bool // node kinds kept (not collapsed) by the compact tree
}

// lang adapts a grammar binding's raw Language()/LanguageX() constructor
// (each returns its own package-local pointer type) into the
// tree_sitter.Language the parser actually wants, mirroring the
// teacher's two-step `languagePtr := tree_sitter_x.Language();
// language := tree_sitter.NewLanguage(languagePtr)`.
func lang[T any](ctor func() T) func() *tree_sitter.Language {
	return func() *tree_sitter.Language {
		return tree_sitter.NewLanguage(ctor())
	}
}

func alwaysExported(types.SymbolKind, string, string) bool { return true }

func exportedIfUppercase(_ types.SymbolKind, name, _ string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

func exportedIfNotUnderscorePrefixed(_ types.SymbolKind, name, _ string) bool {
	return name != "" && name[0] != '_'
}

func exportedIfModifierPresent(modifiers ...string) exportRule {
	return func(_ types.SymbolKind, _, text string) bool {
		for _, m := range modifiers {
			if containsWord(text, m) {
				return true
			}
		}
		return false
	}
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		pos := indexFrom(haystack, word, idx)
		if pos < 0 {
			return false
		}
		before := pos == 0 || !isIdentByte(haystack[pos-1])
		after := pos+len(word) >= len(haystack) || !isIdentByte(haystack[pos+len(word)])
		if before && after {
			return true
		}
		idx = pos + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func indexFrom(haystack, needle string, from int) int {
	if from >= len(haystack) {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

var jsExportRule exportRule = func(_ types.SymbolKind, _ string, text string) bool {
	return containsWord(text, "export")
}

// registry maps a lowercase file extension (with leading dot) to its
// languageSpec. Extensions absent from this map yield parse_success=false
// without error, per spec.md §4.3's unknown-extension rule.
var registry = map[string]*languageSpec{}

func register(spec *languageSpec, exts ...string) {
	for _, ext := range exts {
		registry[ext] = spec
	}
}

func init() {
	register(&languageSpec{
		name:     "go",
		language: lang(tree_sitter_go.Language),
		exported: exportedIfUppercase,
		query: `
        (function_declaration name: (identifier) @function.name) @function
        (method_declaration
            receiver: (parameter_list) @method.receiver
            name: (field_identifier) @method.name) @method
        (type_declaration
            (type_spec name: (type_identifier) @type.name
                type: (struct_type))) @struct
        (type_declaration
            (type_spec name: (type_identifier) @type.name
                type: (interface_type))) @interface
        (type_declaration
            (type_spec name: (type_identifier) @type.name)) @type
        (const_declaration (const_spec name: (identifier) @constant.name)) @constant
        (var_declaration (var_spec name: (identifier) @variable.name)) @variable
        (import_spec path: (interpreted_string_literal) @import.path) @import
    `,
		significant: goSignificantKinds,
	}, ".go")

	register(&languageSpec{
		name:     "typescript",
		language: lang(tree_sitter_typescript.LanguageTypescript),
		exported: jsExportRule,
		query: `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (method_definition name: (property_identifier) @method.name) @method
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression)]) @function
        (class_declaration name: (type_identifier) @class.name) @class
        (interface_declaration name: (type_identifier) @interface.name) @interface
        (type_alias_declaration name: (type_identifier) @type.name) @type
        (enum_declaration name: (identifier) @enum.name) @enum
        (variable_declarator name: (identifier) @variable.name value: (_)) @variable
        (import_statement source: (string) @import.source) @import
    `,
		significant: jsLikeSignificantKinds,
	}, ".ts")

	register(&languageSpec{
		name:     "tsx",
		language: lang(tree_sitter_typescript.LanguageTSX),
		exported: jsExportRule,
		query: `
        (function_declaration name: (identifier) @function.name) @function
        (method_definition name: (property_identifier) @method.name) @method
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression)]) @function
        (class_declaration name: (type_identifier) @class.name) @class
        (interface_declaration name: (type_identifier) @interface.name) @interface
        (type_alias_declaration name: (type_identifier) @type.name) @type
        (enum_declaration name: (identifier) @enum.name) @enum
        (import_statement source: (string) @import.source) @import
    `,
		significant: jsLikeSignificantKinds,
	}, ".tsx")

	register(&languageSpec{
		name:     "javascript",
		language: lang(tree_sitter_javascript.Language),
		exported: jsExportRule,
		query: `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression) (generator_function)]) @function
        (variable_declarator
            name: (identifier) @variable.name
            value: (_) @variable.value) @variable
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (import_statement source: (string) @import.source) @import
    `,
		significant: jsLikeSignificantKinds,
	}, ".js", ".jsx", ".mjs", ".cjs")

	register(&languageSpec{
		name:     "python",
		language: lang(tree_sitter_python.Language),
		exported: exportedIfNotUnderscorePrefixed,
		query: `
        (class_definition
            body: (block
                (function_definition name: (identifier) @method.name))) @method
        (function_definition name: (identifier) @function.name) @function
        (class_definition name: (identifier) @class.name) @class
        (import_statement) @import
        (import_from_statement) @import
    `,
		significant: pySignificantKinds,
	}, ".py", ".pyi")

	register(&languageSpec{
		name:     "rust",
		language: lang(tree_sitter_rust.Language),
		exported: func(_ types.SymbolKind, _, text string) bool { return containsWord(text, "pub") },
		query: `
        (impl_item
            body: (declaration_list
                (function_item name: (identifier) @method.name))) @method
        (trait_item
            body: (declaration_list
                (function_item name: (identifier) @method.name))) @method
        (function_item name: (identifier) @function.name) @function
        (struct_item name: (type_identifier) @struct.name) @struct
        (enum_item name: (type_identifier) @enum.name) @enum
        (trait_item name: (type_identifier) @interface.name) @interface
        (type_item name: (type_identifier) @type.name) @type
        (const_item name: (identifier) @constant.name) @constant
        (use_declaration) @import
    `,
		significant: cLikeSignificantKinds,
	}, ".rs")

	register(&languageSpec{
		name:     "cpp",
		language: lang(tree_sitter_cpp.Language),
		exported: alwaysExported,
		query: `
        (function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function
        (class_specifier name: (type_identifier) @class.name) @class
        (struct_specifier name: (type_identifier) @struct.name) @struct
        (enum_specifier name: (type_identifier) @enum.name) @enum
        (preproc_include) @import
        (using_declaration) @import
    `,
		significant: cLikeSignificantKinds,
	}, ".cpp", ".cc", ".cxx", ".hpp", ".hh")

	register(&languageSpec{
		name:     "c",
		language: lang(tree_sitter_c.Language),
		exported: alwaysExported,
		query: `
        (function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function
        (struct_specifier name: (type_identifier) @struct.name) @struct
        (enum_specifier name: (type_identifier) @enum.name) @enum
        (preproc_include) @import
    `,
		significant: cLikeSignificantKinds,
	}, ".c", ".h")

	register(&languageSpec{
		name:     "java",
		language: lang(tree_sitter_java.Language),
		exported: exportedIfModifierPresent("public"),
		query: `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (record_declaration name: (identifier) @class.name) @class
        (interface_declaration name: (identifier) @interface.name) @interface
        (enum_declaration name: (identifier) @enum.name) @enum
        (field_declaration declarator: (variable_declarator name: (identifier) @variable.name)) @variable
        (import_declaration) @import
    `,
		significant: cLikeSignificantKinds,
	}, ".java")

	register(&languageSpec{
		name:     "csharp",
		language: lang(tree_sitter_csharp.Language),
		exported: exportedIfModifierPresent("public"),
		query: `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (interface_declaration name: (identifier) @interface.name) @interface
        (struct_declaration name: (identifier) @struct.name) @struct
        (enum_declaration name: (identifier) @enum.name) @enum
        (property_declaration name: (identifier) @variable.name) @variable
        (using_directive) @import
        (namespace_declaration) @module
    `,
		significant: cLikeSignificantKinds,
	}, ".cs")

	register(&languageSpec{
		name:     "php",
		language: lang(tree_sitter_php.LanguagePHP),
		exported: alwaysExported,
		query: `
        (class_declaration name: (name) @class.name) @class
        (interface_declaration name: (name) @interface.name) @interface
        (enum_declaration name: (name) @enum.name) @enum
        (function_definition name: (name) @function.name) @function
        (method_declaration name: (name) @method.name) @method
        (namespace_use_declaration) @import
    `,
		significant: cLikeSignificantKinds,
	}, ".php", ".phtml")

	register(&languageSpec{
		name:     "ruby",
		language: lang(tree_sitter_ruby.Language),
		exported: func(_ types.SymbolKind, _, text string) bool { return !containsWord(text, "private") },
		query: `
        (method name: (identifier) @method.name) @method
        (singleton_method name: (identifier) @method.name) @method
        (class name: (constant) @class.name) @class
        (module name: (constant) @class.name) @class
        (call
            method: (identifier) @import.name
            arguments: (argument_list (string) @import.source)) @import
    `,
		significant: pySignificantKinds,
	}, ".rb")

	register(&languageSpec{
		name:     "kotlin",
		language: lang(tree_sitter_kotlin.Language),
		exported: func(_ types.SymbolKind, _, text string) bool { return !containsWord(text, "private") },
		query: `
        (function_declaration (simple_identifier) @function.name) @function
        (class_declaration (type_identifier) @class.name) @class
        (object_declaration (type_identifier) @class.name) @class
        (import_header) @import
    `,
		significant: cLikeSignificantKinds,
	}, ".kt", ".kts")

	register(&languageSpec{
		name:     "dart",
		language: lang(tree_sitter_dart.Language),
		exported: exportedIfNotUnderscorePrefixed,
		query: `
        (function_signature name: (identifier) @function.name) @function
        (method_signature name: (identifier) @method.name) @method
        (class_definition name: (identifier) @class.name) @class
        (import_or_export) @import
    `,
		significant: cLikeSignificantKinds,
	}, ".dart")

	register(&languageSpec{
		name:     "bash",
		language: lang(tree_sitter_bash.Language),
		exported: alwaysExported,
		query: `
        (function_definition name: (word) @function.name) @function
    `,
		significant: cLikeSignificantKinds,
	}, ".sh", ".bash")

	register(&languageSpec{
		name:        "html",
		language:    lang(tree_sitter_html.Language),
		exported:    alwaysExported,
		query:       ``,
		significant: markupSignificantKinds,
	}, ".html", ".htm")

	register(&languageSpec{
		name:        "css",
		language:    lang(tree_sitter_css.Language),
		exported:    alwaysExported,
		query:       `(rule_set (selectors) @class.name) @class`,
		significant: markupSignificantKinds,
	}, ".css")

	register(&languageSpec{
		name:        "json",
		language:    lang(tree_sitter_json.Language),
		exported:    alwaysExported,
		query:       `(pair key: (string) @variable.name) @variable`,
		significant: markupSignificantKinds,
	}, ".json")

	register(&languageSpec{
		name:        "yaml",
		language:    lang(tree_sitter_yaml.Language),
		exported:    alwaysExported,
		query:       `(block_mapping_pair key: (flow_node) @variable.name) @variable`,
		significant: markupSignificantKinds,
	}, ".yaml", ".yml")

	register(&languageSpec{
		name:        "toml",
		language:    lang(tree_sitter_toml.Language),
		exported:    alwaysExported,
		query:       `(pair key: (bare_key) @variable.name) @variable`,
		significant: markupSignificantKinds,
	}, ".toml")
}

// goSignificantKinds, jsLikeSignificantKinds etc. are defined in
// compact_tree.go alongside the pruning logic they serve.
