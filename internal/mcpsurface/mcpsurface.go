// Package mcpsurface exposes the retrieval core over the Model Context
// Protocol per spec.md §6: eleven read resources (file://, project://,
// knowledge://) and eight mutating tools over the knowledge graph.
//
// Grounded on the teacher's internal/mcp/server.go (Server wraps every
// subsystem pointer, NewServer builds them bottom-up, registerTools()
// calls server.AddTool per tool) and internal/mcp/response.go
// (createJSONResponse/createErrorResponse, including the "CRITICAL:
// set IsError=true" CallToolResult convention). The read-resource
// registration calls (AddResource/AddResourceTemplate) have no
// precedent anywhere in the example pack — grep across the whole
// teacher tree for AddResource/ResourceTemplate/mcp.Resource returns
// nothing, since every one of its six MCP-serving repos only registers
// tools. That half of server.go is therefore built from the SDK's
// documented resource API rather than an in-pack pattern; flagged here
// and in DESIGN.md as the one unconfirmed surface in this package, the
// same treatment given chromem-go's QueryEmbedding and tree-sitter's
// IsError()/IsMissing() elsewhere in this module.
package mcpsurface

import (
	"github.com/codeforge/retrieval-core/internal/content"
	"github.com/codeforge/retrieval-core/internal/embedding"
	"github.com/codeforge/retrieval-core/internal/metadatastore"
	"github.com/codeforge/retrieval-core/internal/parser"
	"github.com/codeforge/retrieval-core/internal/retriever"
	"github.com/codeforge/retrieval-core/internal/storagelayout"
	"github.com/codeforge/retrieval-core/internal/symbolindex"
	"github.com/codeforge/retrieval-core/internal/vectorstore"
)

// Dependencies is every subsystem the surface wires together, mirroring
// the teacher Server struct's bag of subsystem pointers. Vectors/Embed
// may be nil (vector-only features degrade, same contract as
// retriever.Retriever itself); the rest are required.
type Dependencies struct {
	Layout     *storagelayout.Layout
	Content    *content.Store
	Parser     *parser.Parser
	Symbols    *symbolindex.Index
	Metadata   *metadatastore.Store
	Vectors    *vectorstore.Collection
	Embed      *embedding.Client
	EmbedModel embedding.ModelInfo
	Retriever  *retriever.Retriever
}

// Surface is the MCP-protocol-agnostic core of every resource/tool
// operation spec.md §6 names. Keeping this separate from the
// mcp.Server wiring in server.go means every operation here is directly
// unit-testable without standing up a protocol server.
type Surface struct {
	deps Dependencies
}

// New builds a Surface over deps.
func New(deps Dependencies) *Surface {
	return &Surface{deps: deps}
}
