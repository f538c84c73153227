package mcpsurface

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeforge/retrieval-core/internal/retriever"
	"github.com/codeforge/retrieval-core/internal/types"
)

func TestStoreKnowledgeMemoryIsIdempotentOnText(t *testing.T) {
	s := newTestSurface(t)

	first, err := s.StoreKnowledgeMemory("remember this fact", map[string]string{"tag": "a"})
	require.NoError(t, err)
	second, err := s.StoreKnowledgeMemory("remember this fact", map[string]string{"tag": "b"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)

	status, err := s.KnowledgeStatus()
	require.NoError(t, err)
	require.Equal(t, 1, status.Memories)
}

func TestStoreKnowledgeMemoryRejectsEmptyText(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.StoreKnowledgeMemory("   ", nil)
	require.Error(t, err)
}

func TestCreateKnowledgeRelationshipAndEntityRelated(t *testing.T) {
	s := newTestSurface(t)

	require.NoError(t, s.CreateKnowledgeRelationship("a", "b", types.RelReferences, 0.9))
	require.NoError(t, s.CreateKnowledgeRelationship("a", "c", types.RelCalls, 0.2))

	rels, err := s.EntityRelated("a", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.Equal(t, "b", rels[0].ToID)
}

func TestUpdateKnowledgeEntityMergesMetadata(t *testing.T) {
	s := newTestSurface(t)
	mem, err := s.StoreKnowledgeMemory("some fact", map[string]string{"a": "1"})
	require.NoError(t, err)

	updated, err := s.UpdateKnowledgeEntity(mem.ID, map[string]string{"b": "2"})
	require.NoError(t, err)
	require.Equal(t, "1", updated.Metadata["a"])
	require.Equal(t, "2", updated.Metadata["b"])
}

func TestUpdateKnowledgeEntityUnknownIDFails(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.UpdateKnowledgeEntity("mem-nonexistent", map[string]string{"x": "1"})
	require.Error(t, err)
}

func TestPruneKnowledgeMemoryByMetadata(t *testing.T) {
	s := newTestSurface(t)
	keep, err := s.StoreKnowledgeMemory("keep me", map[string]string{"status": "active"})
	require.NoError(t, err)
	_, err = s.StoreKnowledgeMemory("drop me", map[string]string{"status": "stale"})
	require.NoError(t, err)

	deleted, err := s.PruneKnowledgeMemory(PruneCriteria{MetadataEquals: map[string]string{"status": "stale"}})
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	status, err := s.KnowledgeStatus()
	require.NoError(t, err)
	require.Equal(t, 1, status.Memories)

	_, ok, err := s.deps.Metadata.GetMemory(keep.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPruneKnowledgeMemoryEmptyCriteriaDeletesNothing(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.StoreKnowledgeMemory("untouched", nil)
	require.NoError(t, err)

	deleted, err := s.PruneKnowledgeMemory(PruneCriteria{})
	require.NoError(t, err)
	require.Empty(t, deleted)
}

func TestCompactKnowledgeMemoryRuns(t *testing.T) {
	s := newTestSurface(t)
	require.NoError(t, s.CompactKnowledgeMemory())
}

func TestExportKnowledgeGraphFormats(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.StoreKnowledgeMemory("export me", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, s.CreateKnowledgeRelationship("x", "y", types.RelReferences, 1))

	var jsonBuf, jsonlBuf, csvBuf bytes.Buffer
	require.NoError(t, s.ExportKnowledgeGraph(&jsonBuf, ExportJSON, false))
	require.Contains(t, jsonBuf.String(), "export me")

	require.NoError(t, s.ExportKnowledgeGraph(&jsonlBuf, ExportJSONL, false))
	lines := strings.Split(strings.TrimSpace(jsonlBuf.String()), "\n")
	require.Len(t, lines, 2)

	require.NoError(t, s.ExportKnowledgeGraph(&csvBuf, ExportCSV, false))
	require.Contains(t, csvBuf.String(), "export me")

	require.Error(t, s.ExportKnowledgeGraph(&bytes.Buffer{}, ExportFormat("bogus"), false))
}

func TestWipeKnowledgeGraphRequiresConfirm(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.StoreKnowledgeMemory("will be wiped", nil)
	require.NoError(t, err)

	require.Error(t, s.WipeKnowledgeGraph(false, false, &bytes.Buffer{}))

	status, err := s.KnowledgeStatus()
	require.NoError(t, err)
	require.Equal(t, 1, status.Memories)
}

func TestWipeKnowledgeGraphBacksUpThenDeletesAll(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.StoreKnowledgeMemory("will be wiped", nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateKnowledgeRelationship("a", "b", types.RelReferences, 1))

	var backup bytes.Buffer
	require.NoError(t, s.WipeKnowledgeGraph(true, false, &backup))
	require.Contains(t, backup.String(), "will be wiped")

	status, err := s.KnowledgeStatus()
	require.NoError(t, err)
	require.Equal(t, 0, status.Memories)
	require.Equal(t, 0, status.Relationships)
}

func TestWipeKnowledgeGraphSkipBackupNeedsNoWriter(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.StoreKnowledgeMemory("gone", nil)
	require.NoError(t, err)

	require.NoError(t, s.WipeKnowledgeGraph(true, true, nil))

	status, err := s.KnowledgeStatus()
	require.NoError(t, err)
	require.Equal(t, 0, status.Memories)
}

func TestReindexKnowledgeBaseFilesMode(t *testing.T) {
	s := newTestSurface(t)
	path := writeFixture(t, t.TempDir(), "sample.go", []byte(goFixture))

	report, err := s.ReindexKnowledgeBase(context.Background(), ReindexFiles, []string{path})
	require.NoError(t, err)
	require.Equal(t, []string{path}, report.Processed)
	require.Empty(t, report.Failed)

	status, err := s.KnowledgeStatus()
	require.NoError(t, err)
	require.Equal(t, 1, status.IndexedDocuments)
}

func TestReindexKnowledgeBaseRecordsPerFileFailures(t *testing.T) {
	s := newTestSurface(t)
	report, err := s.ReindexKnowledgeBase(context.Background(), ReindexFiles, []string{"/no/such/file.go"})
	require.NoError(t, err)
	require.Empty(t, report.Processed)
	require.Contains(t, report.Failed, "/no/such/file.go")
}

func TestReindexKnowledgeBaseUnsupportedModeFails(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.ReindexKnowledgeBase(context.Background(), ReindexMode("bogus"), nil)
	require.Error(t, err)
}

func TestKnowledgeSearchBM25OnlyFindsIndexedFile(t *testing.T) {
	s := newTestSurface(t)
	path := writeFixture(t, t.TempDir(), "sample.go", []byte(goFixture))

	_, err := s.ReindexKnowledgeBase(context.Background(), ReindexFiles, []string{path})
	require.NoError(t, err)

	result, err := s.KnowledgeSearch(context.Background(), "Greet", SearchOptions{})
	require.NoError(t, err)
	require.Equal(t, retriever.ModeBM25Only, result.Mode)
	require.NotEmpty(t, result.Documents)
}

func TestKnowledgeSearchRejectsEmptyQuery(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.KnowledgeSearch(context.Background(), "", SearchOptions{})
	require.Error(t, err)
}

func TestKnowledgeStatusCountsAcrossSubsystems(t *testing.T) {
	s := newTestSurface(t)
	_, err := s.StoreKnowledgeMemory("fact one", nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateKnowledgeRelationship("a", "b", types.RelReferences, 1))

	status, err := s.KnowledgeStatus()
	require.NoError(t, err)
	require.Equal(t, 1, status.Memories)
	require.Equal(t, 1, status.Relationships)
	require.Equal(t, 0, status.VectorDocuments)
}
