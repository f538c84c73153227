package mcpsurface

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/codeforge/retrieval-core/internal/content"
	"github.com/codeforge/retrieval-core/internal/errorkinds"
	"github.com/codeforge/retrieval-core/internal/retriever"
	"github.com/codeforge/retrieval-core/internal/types"
	"github.com/codeforge/retrieval-core/internal/vectorstore"
)

// SearchOptions are knowledge://search's query parameters, per spec.md §6.
type SearchOptions struct {
	Limit         int
	Threshold     float64
	UseBM25       bool
	UseEmbeddings bool
}

// KnowledgeSearch answers knowledge://search by choosing a retriever.Mode
// from the use_bm25/use_embeddings flags and filtering the fused result
// by Threshold.
func (s *Surface) KnowledgeSearch(ctx context.Context, query string, opts SearchOptions) (retriever.Result, error) {
	if err := requireNonEmpty("query", query); err != nil {
		return retriever.Result{}, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	mode := searchMode(opts.UseBM25, opts.UseEmbeddings)
	result, err := s.deps.Retriever.Search(ctx, query, limit, mode, s.resolvePath)
	if err != nil {
		return retriever.Result{}, err
	}
	if opts.Threshold > 0 {
		filtered := result.Documents[:0]
		for _, d := range result.Documents {
			if d.Score >= opts.Threshold {
				filtered = append(filtered, d)
			}
		}
		result.Documents = filtered
	}
	return result, nil
}

func searchMode(useBM25, useEmbeddings bool) retriever.Mode {
	switch {
	case useBM25 && useEmbeddings:
		return retriever.ModeHybrid
	case useEmbeddings && !useBM25:
		return retriever.ModeVectorOnly
	default:
		return retriever.ModeBM25Only
	}
}

// resolvePath maps a retriever Document's ID (a file hash string) back
// to its current display path via the relational store.
func (s *Surface) resolvePath(id string) string {
	if s.deps.Metadata == nil {
		return ""
	}
	path, ok, err := s.deps.Metadata.PathForHash(types.Hash(id))
	if err != nil || !ok {
		return ""
	}
	return path
}

// EntityRelated answers knowledge://entity/{id}/related.
func (s *Surface) EntityRelated(id string, limit int, minStrength float64) ([]types.Relationship, error) {
	if err := requireNonEmpty("id", id); err != nil {
		return nil, err
	}
	rels, err := s.deps.Metadata.RelationshipsFrom(id)
	if err != nil {
		return nil, err
	}
	out := make([]types.Relationship, 0, len(rels))
	for _, r := range rels {
		if r.Strength >= minStrength {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Status is knowledge://status's answer.
type Status struct {
	IndexedDocuments int
	VectorDocuments  int
	Memories         int
	Relationships    int
}

// KnowledgeStatus answers knowledge://status.
func (s *Surface) KnowledgeStatus() (Status, error) {
	var st Status
	if s.deps.Symbols != nil {
		st.IndexedDocuments = s.deps.Symbols.Len()
	}
	if s.deps.Vectors != nil {
		st.VectorDocuments = s.deps.Vectors.Count()
	}
	if s.deps.Metadata != nil {
		memories, err := s.deps.Metadata.ListMemories()
		if err != nil {
			return Status{}, err
		}
		st.Memories = len(memories)
		rels, err := s.deps.Metadata.AllRelationships()
		if err != nil {
			return Status{}, err
		}
		st.Relationships = len(rels)
	}
	return st, nil
}

// StoreKnowledgeMemory implements the store_knowledge_memory tool. The
// memory's ID is content's digest of its text, so storing the same text
// twice is idempotent rather than accumulating duplicates.
func (s *Surface) StoreKnowledgeMemory(text string, metadata map[string]string) (types.KnowledgeMemory, error) {
	if err := requireNonEmpty("text", text); err != nil {
		return types.KnowledgeMemory{}, err
	}
	mem := types.KnowledgeMemory{
		ID:        "mem-" + string(content.Digest([]byte(text))),
		Text:      text,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := s.deps.Metadata.PutMemory(mem); err != nil {
		return types.KnowledgeMemory{}, err
	}
	return mem, nil
}

// CreateKnowledgeRelationship implements create_knowledge_relationship.
func (s *Surface) CreateKnowledgeRelationship(fromID, toID string, kind types.RelationshipKind, strength float64) error {
	if err := requireNonEmpty("from_id", fromID); err != nil {
		return err
	}
	if err := requireNonEmpty("to_id", toID); err != nil {
		return err
	}
	return s.deps.Metadata.PutRelationship(types.Relationship{
		FromID:    fromID,
		ToID:      toID,
		Kind:      kind,
		Strength:  strength,
		CreatedAt: time.Now(),
	})
}

// UpdateKnowledgeEntity implements update_knowledge_entity: a shallow
// merge of patch into the memory's metadata.
func (s *Surface) UpdateKnowledgeEntity(id string, patch map[string]string) (types.KnowledgeMemory, error) {
	if err := requireNonEmpty("id", id); err != nil {
		return types.KnowledgeMemory{}, err
	}
	mem, ok, err := s.deps.Metadata.GetMemory(id)
	if err != nil {
		return types.KnowledgeMemory{}, err
	}
	if !ok {
		return types.KnowledgeMemory{}, errorkinds.NewInvalidArgument("id", "no such knowledge entity")
	}
	if mem.Metadata == nil {
		mem.Metadata = make(map[string]string, len(patch))
	}
	for k, v := range patch {
		mem.Metadata[k] = v
	}
	if err := s.deps.Metadata.PutMemory(mem); err != nil {
		return types.KnowledgeMemory{}, err
	}
	return mem, nil
}

// PruneCriteria selects which memories prune_knowledge_memory deletes.
// A zero-value OlderThan/MetadataEquals is simply not applied, so an
// empty PruneCriteria matches nothing — prune_knowledge_memory never
// wipes everything by accident.
type PruneCriteria struct {
	OlderThan      time.Duration
	MetadataEquals map[string]string
}

func (c PruneCriteria) matches(m types.KnowledgeMemory, now time.Time) bool {
	matched := false
	if c.OlderThan > 0 {
		if now.Sub(m.CreatedAt) < c.OlderThan {
			return false
		}
		matched = true
	}
	for k, v := range c.MetadataEquals {
		if m.Metadata[k] != v {
			return false
		}
		matched = true
	}
	return matched
}

// PruneKnowledgeMemory implements prune_knowledge_memory, returning the
// IDs it deleted.
func (s *Surface) PruneKnowledgeMemory(criteria PruneCriteria) ([]string, error) {
	memories, err := s.deps.Metadata.ListMemories()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var deleted []string
	for _, m := range memories {
		if !criteria.matches(m, now) {
			continue
		}
		if err := s.deps.Metadata.DeleteMemory(m.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, m.ID)
	}
	return deleted, nil
}

// CompactKnowledgeMemory implements compact_knowledge_memory: reclaims
// space in the relational store via Badger's value-log GC.
func (s *Surface) CompactKnowledgeMemory() error {
	return s.deps.Metadata.Compact()
}

// ExportFormat enumerates export_knowledge_graph's supported formats.
type ExportFormat string

const (
	ExportJSON  ExportFormat = "json"
	ExportJSONL ExportFormat = "jsonl"
	ExportCSV   ExportFormat = "csv"
)

// ExportKnowledgeGraph implements export_knowledge_graph. includeEmbeddings
// is accepted but not honoured: vectorstore.Collection exposes only
// Upsert/Delete/Search, no by-ID retrieval of a stored vector, so there
// is nothing for this flag to attach to without widening that package's
// surface beyond what spec.md §4.6 defines.
func (s *Surface) ExportKnowledgeGraph(w io.Writer, format ExportFormat, includeEmbeddings bool) error {
	memories, err := s.deps.Metadata.ListMemories()
	if err != nil {
		return err
	}
	relationships, err := s.deps.Metadata.AllRelationships()
	if err != nil {
		return err
	}

	switch format {
	case ExportJSON:
		return json.NewEncoder(w).Encode(struct {
			Memories      []types.KnowledgeMemory `json:"memories"`
			Relationships []types.Relationship    `json:"relationships"`
		}{memories, relationships})
	case ExportJSONL:
		enc := json.NewEncoder(w)
		for _, m := range memories {
			if err := enc.Encode(struct {
				RecordType string `json:"record_type"`
				types.KnowledgeMemory
			}{"memory", m}); err != nil {
				return err
			}
		}
		for _, r := range relationships {
			if err := enc.Encode(struct {
				RecordType string `json:"record_type"`
				types.Relationship
			}{"relationship", r}); err != nil {
				return err
			}
		}
		return nil
	case ExportCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"id", "text", "metadata", "created_at"}); err != nil {
			return err
		}
		for _, m := range memories {
			metaJSON, _ := json.Marshal(m.Metadata)
			if err := cw.Write([]string{m.ID, m.Text, string(metaJSON), m.CreatedAt.Format(time.RFC3339)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return errorkinds.NewInvalidArgument("format", fmt.Sprintf("unsupported export format %q", format))
	}
}

// WipeKnowledgeGraph implements wipe_knowledge_graph: refuses unless
// confirm is true, and — unless skipBackup is set — writes a full JSON
// export to backup before deleting anything, per spec.md §6.
func (s *Surface) WipeKnowledgeGraph(confirm, skipBackup bool, backup io.Writer) error {
	if !confirm {
		return errorkinds.NewInvalidArgument("confirm", "wipe_knowledge_graph requires confirm=true")
	}
	if !skipBackup {
		if backup == nil {
			return errorkinds.NewInvalidArgument("backup", "a backup destination is required unless skip_backup is set")
		}
		if err := s.ExportKnowledgeGraph(backup, ExportJSON, true); err != nil {
			return err
		}
	}

	memories, err := s.deps.Metadata.ListMemories()
	if err != nil {
		return err
	}
	for _, m := range memories {
		if err := s.deps.Metadata.DeleteMemory(m.ID); err != nil {
			return err
		}
	}
	relationships, err := s.deps.Metadata.AllRelationships()
	if err != nil {
		return err
	}
	for _, r := range relationships {
		if err := s.deps.Metadata.DeleteRelationship(r); err != nil {
			return err
		}
	}
	return nil
}

// ReindexMode enumerates reindex_knowledge_base's mode parameter.
type ReindexMode string

const (
	ReindexEntities ReindexMode = "entities"
	ReindexFiles    ReindexMode = "files"
)

// ReindexReport is reindex_knowledge_base's answer.
type ReindexReport struct {
	Mode      ReindexMode
	Processed []string
	Failed    map[string]string // path -> error message
}

// ReindexKnowledgeBase implements reindex_knowledge_base. In files mode
// it streams each path through ContentStore -> Parser -> SymbolIndex ->
// EmbeddingClient -> VectorStore, per spec.md §6. A per-file IoFailure or
// ParseFailure is recorded in Failed rather than aborting the batch, per
// spec.md §7's propagation policy for bulk reindex.
func (s *Surface) ReindexKnowledgeBase(ctx context.Context, mode ReindexMode, paths []string) (ReindexReport, error) {
	report := ReindexReport{Mode: mode, Failed: make(map[string]string)}
	switch mode {
	case ReindexFiles:
		for _, path := range paths {
			if err := s.reindexFile(ctx, path); err != nil {
				report.Failed[path] = err.Error()
				continue
			}
			report.Processed = append(report.Processed, path)
		}
	case ReindexEntities:
		for _, path := range paths {
			if err := s.reindexEntityRelationships(path); err != nil {
				report.Failed[path] = err.Error()
				continue
			}
			report.Processed = append(report.Processed, path)
		}
	default:
		return ReindexReport{}, errorkinds.NewInvalidArgument("mode", fmt.Sprintf("unsupported reindex mode %q", mode))
	}
	return report, nil
}

func (s *Surface) reindexFile(ctx context.Context, path string) error {
	hash, raw, lang, err := s.deps.Content.Read(path)
	if err != nil {
		return err
	}
	res, err := s.deps.Parser.ParseFile(path, raw)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.deps.Metadata.PutFile(types.File{
		Path: path, Hash: hash, Size: int64(len(raw)), ModTime: now,
		Language: lang, ParseSuccess: res.ParseSuccess, ParseErrors: res.ParseErrors,
		IndexedAt: now,
	}); err != nil {
		return err
	}
	for i := range res.Symbols {
		res.Symbols[i].FileHash = hash
	}
	for i := range res.Imports {
		res.Imports[i].FileHash = hash
	}
	if err := s.deps.Metadata.PutSymbols(hash, res.Symbols); err != nil {
		return err
	}
	if err := s.deps.Metadata.PutImports(hash, res.Imports); err != nil {
		return err
	}
	if s.deps.Symbols != nil {
		s.deps.Symbols.AddDocument(hash, path, now, raw, res.Symbols, res.Imports)
	}

	if s.deps.Embed != nil && s.deps.Vectors != nil {
		vectors, err := s.deps.Embed.Embed(ctx, []string{string(raw)}, s.deps.EmbedModel, false)
		if err != nil {
			return err
		}
		if len(vectors) > 0 {
			if err := s.deps.Vectors.Upsert(ctx, []vectorstore.EmbeddedDocument{{
				ID: string(hash), SourceDigest: string(hash), Vector: vectors[0], InsertedAt: now,
			}}); err != nil {
				return err
			}
		}
	}
	return nil
}

// reindexEntityRelationships rebuilds "references" edges from path's
// already-recorded imports: each import spec becomes a relationship
// target, even before any cross-file resolution runs. Full
// specifier-to-path resolution is a separate concern this tool doesn't
// attempt, since spec.md §3 treats Import as an unresolved edge.
func (s *Surface) reindexEntityRelationships(path string) error {
	f, ok, err := s.deps.Metadata.GetFile(path)
	if err != nil {
		return err
	}
	if !ok {
		return errorkinds.NewInvalidArgument("path", "file not indexed")
	}
	imports, err := s.deps.Metadata.ImportsForFile(f.Hash)
	if err != nil {
		return err
	}
	for _, imp := range imports {
		if err := s.deps.Metadata.PutRelationship(types.Relationship{
			FromID: path, ToID: imp.Spec, Kind: types.RelReferences, Strength: 1, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}
