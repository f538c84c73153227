package mcpsurface

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeforge/retrieval-core/internal/types"
)

// Every handler below follows the teacher's handleInfo shape exactly:
// manual json.Unmarshal(req.Params.Arguments, &params) rather than
// schema-driven auto-binding, then createJSONResponse/createErrorResponse.

type storeMemoryParams struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

func (s *Surface) handleStoreKnowledgeMemory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p storeMemoryParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("store_knowledge_memory", err)
	}
	mem, err := s.StoreKnowledgeMemory(p.Text, p.Metadata)
	if err != nil {
		return createErrorResponse("store_knowledge_memory", err)
	}
	return createJSONResponse(mem)
}

type createRelationshipParams struct {
	FromID   string  `json:"from_id"`
	ToID     string  `json:"to_id"`
	Kind     string  `json:"kind"`
	Strength float64 `json:"strength"`
}

func (s *Surface) handleCreateKnowledgeRelationship(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p createRelationshipParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("create_knowledge_relationship", err)
	}
	if err := s.CreateKnowledgeRelationship(p.FromID, p.ToID, types.RelationshipKind(p.Kind), p.Strength); err != nil {
		return createErrorResponse("create_knowledge_relationship", err)
	}
	return createJSONResponse(map[string]bool{"success": true})
}

type updateEntityParams struct {
	ID    string            `json:"id"`
	Patch map[string]string `json:"patch"`
}

func (s *Surface) handleUpdateKnowledgeEntity(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p updateEntityParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("update_knowledge_entity", err)
	}
	mem, err := s.UpdateKnowledgeEntity(p.ID, p.Patch)
	if err != nil {
		return createErrorResponse("update_knowledge_entity", err)
	}
	return createJSONResponse(mem)
}

type pruneParams struct {
	OlderThanSeconds int64             `json:"older_than_seconds"`
	MetadataEquals   map[string]string `json:"metadata_equals"`
}

func (s *Surface) handlePruneKnowledgeMemory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p pruneParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("prune_knowledge_memory", err)
	}
	deleted, err := s.PruneKnowledgeMemory(PruneCriteria{
		OlderThan:      time.Duration(p.OlderThanSeconds) * time.Second,
		MetadataEquals: p.MetadataEquals,
	})
	if err != nil {
		return createErrorResponse("prune_knowledge_memory", err)
	}
	return createJSONResponse(map[string]interface{}{"deleted": deleted})
}

func (s *Surface) handleCompactKnowledgeMemory(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.CompactKnowledgeMemory(); err != nil {
		return createErrorResponse("compact_knowledge_memory", err)
	}
	return createJSONResponse(map[string]bool{"success": true})
}

type exportParams struct {
	Format            string `json:"format"`
	IncludeEmbeddings bool   `json:"include_embeddings"`
}

func (s *Surface) handleExportKnowledgeGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p exportParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("export_knowledge_graph", err)
	}
	format := ExportFormat(p.Format)
	if format == "" {
		format = ExportJSON
	}
	var buf bytes.Buffer
	if err := s.ExportKnowledgeGraph(&buf, format, p.IncludeEmbeddings); err != nil {
		return createErrorResponse("export_knowledge_graph", err)
	}
	return createJSONResponse(map[string]string{"format": string(format), "data": buf.String()})
}

type wipeParams struct {
	Confirm    bool `json:"confirm"`
	SkipBackup bool `json:"skip_backup"`
}

func (s *Surface) handleWipeKnowledgeGraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p wipeParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("wipe_knowledge_graph", err)
	}
	var backup bytes.Buffer
	var w io.Writer
	if !p.SkipBackup {
		w = &backup
	}
	if err := s.WipeKnowledgeGraph(p.Confirm, p.SkipBackup, w); err != nil {
		return createErrorResponse("wipe_knowledge_graph", err)
	}
	return createJSONResponse(map[string]interface{}{"success": true, "backup": backup.String()})
}

type reindexParams struct {
	Mode  string   `json:"mode"`
	Paths []string `json:"paths"`
}

func (s *Surface) handleReindexKnowledgeBase(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p reindexParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return createErrorResponse("reindex_knowledge_base", err)
	}
	report, err := s.ReindexKnowledgeBase(ctx, ReindexMode(p.Mode), p.Paths)
	if err != nil {
		return createErrorResponse("reindex_knowledge_base", err)
	}
	return createJSONResponse(report)
}
