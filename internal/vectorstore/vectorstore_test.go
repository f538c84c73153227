package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testFingerprint() Fingerprint {
	return Fingerprint{ModelID: "test-model", Dimensionality: 3}
}

func TestOpenCreatesFingerprintSidecar(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widgets")
	col, err := Open(dir, "widgets", testFingerprint())
	require.NoError(t, err)
	require.Equal(t, "test-model", col.Fingerprint().ModelID)
	require.Equal(t, SchemaVersion, col.Fingerprint().SchemaVersion)
}

// TestReopenWithMismatchedModelFails covers spec.md §4.6: on every open,
// the fingerprint is re-validated against the caller's expected model.
func TestReopenWithMismatchedModelFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widgets")
	_, err := Open(dir, "widgets", testFingerprint())
	require.NoError(t, err)

	_, err = Open(dir, "widgets", Fingerprint{ModelID: "other-model", Dimensionality: 3})
	require.Error(t, err)
}

func TestUpsertAndSearchRoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widgets")
	col, err := Open(dir, "widgets", testFingerprint())
	require.NoError(t, err)

	err = col.Upsert(context.Background(), []EmbeddedDocument{
		{ID: "doc1", Vector: []float32{1, 0, 0}},
		{ID: "doc2", Vector: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, col.Count())

	hits, err := col.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "doc1", hits[0].ID)
}

// TestUpsertRejectsWrongDimensionality covers spec.md Testable Property
// 4: a Collection never stores a vector of the wrong length.
func TestUpsertRejectsWrongDimensionality(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widgets")
	col, err := Open(dir, "widgets", testFingerprint())
	require.NoError(t, err)

	err = col.Upsert(context.Background(), []EmbeddedDocument{{ID: "bad", Vector: []float32{1, 0}}})
	require.Error(t, err)
	require.Equal(t, 0, col.Count())
}

func TestLockedCollectionRefusesUpsert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widgets")
	col, err := Open(dir, "widgets", testFingerprint())
	require.NoError(t, err)

	col.Lock()
	err = col.Upsert(context.Background(), []EmbeddedDocument{{ID: "doc1", Vector: []float32{1, 0, 0}}})
	require.Error(t, err)

	col.Unlock()
	err = col.Upsert(context.Background(), []EmbeddedDocument{{ID: "doc1", Vector: []float32{1, 0, 0}}})
	require.NoError(t, err)
}

func TestSwitchModelRefusesWithoutForceWhenVectorsExist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widgets")
	col, err := Open(dir, "widgets", testFingerprint())
	require.NoError(t, err)
	require.NoError(t, col.Upsert(context.Background(), []EmbeddedDocument{{ID: "doc1", Vector: []float32{1, 0, 0}}}))

	err = col.SwitchModel(context.Background(), "new-model", 4, false)
	require.Error(t, err)
	require.Equal(t, "test-model", col.Fingerprint().ModelID)
}

func TestSwitchModelWithForcePurgesVectors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "widgets")
	col, err := Open(dir, "widgets", testFingerprint())
	require.NoError(t, err)
	require.NoError(t, col.Upsert(context.Background(), []EmbeddedDocument{{ID: "doc1", Vector: []float32{1, 0, 0}}}))

	err = col.SwitchModel(context.Background(), "new-model", 4, true)
	require.NoError(t, err)
	require.Equal(t, "new-model", col.Fingerprint().ModelID)
	require.Equal(t, 0, col.Count())
}
