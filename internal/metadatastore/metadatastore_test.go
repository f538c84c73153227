package metadatastore

import (
	"testing"
	"time"

	"github.com/codeforge/retrieval-core/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAndGetFileRoundTrips(t *testing.T) {
	s := newTestStore(t)
	f := types.File{Path: "pkg/foo.go", Hash: "abc123", Size: 42, ModTime: time.Now(), Language: "go"}

	require.NoError(t, s.PutFile(f))

	got, ok, err := s.GetFile("pkg/foo.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f.Hash, got.Hash)
	require.False(t, got.Tombstoned)
}

// TestNewHashSupersedesOldForSamePath covers spec.md §3 invariant (iii):
// at most one non-tombstoned File record exists per path.
func TestNewHashSupersedesOldForSamePath(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutFile(types.File{Path: "pkg/foo.go", Hash: "v1"}))
	require.NoError(t, s.PutFile(types.File{Path: "pkg/foo.go", Hash: "v2"}))

	got, ok, err := s.GetFile("pkg/foo.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.Hash("v2"), got.Hash)

	// The superseded version is still addressable by hash, for history.
	old, ok, err := s.GetFileByHash("pkg/foo.go", "v1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.Hash("v1"), old.Hash)
}

func TestTombstoneFileRemovesItFromCurrentLookup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutFile(types.File{Path: "pkg/gone.go", Hash: "h1"}))

	require.NoError(t, s.TombstoneFile("pkg/gone.go"))

	_, ok, err := s.GetFile("pkg/gone.go")
	require.NoError(t, err)
	require.False(t, ok)

	// Still readable by hash, and marked tombstoned.
	old, ok, err := s.GetFileByHash("pkg/gone.go", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, old.Tombstoned)
}

func TestTombstoneUnknownFileIsNoOp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.TombstoneFile("never/indexed.go"))
}

func TestPutSymbolsSortsByPathLineColumn(t *testing.T) {
	s := newTestStore(t)
	symbols := []types.Symbol{
		{FilePath: "pkg/a.go", Name: "Late", Start: types.Position{Line: 10, Column: 1}},
		{FilePath: "pkg/a.go", Name: "Early", Start: types.Position{Line: 2, Column: 1}},
		{FilePath: "pkg/a.go", Name: "Mid", Start: types.Position{Line: 5, Column: 1}},
	}
	require.NoError(t, s.PutSymbols("hash1", symbols))

	got, err := s.SymbolsForFile("hash1")
	require.NoError(t, err)
	require.Equal(t, []string{"Early", "Mid", "Late"}, []string{got[0].Name, got[1].Name, got[2].Name})
}

func TestSymbolsForUnknownFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.SymbolsForFile("does-not-exist")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPutAndGetImports(t *testing.T) {
	s := newTestStore(t)
	imports := []types.Import{{FilePath: "pkg/a.go", Spec: "fmt"}, {FilePath: "pkg/a.go", Spec: "os"}}
	require.NoError(t, s.PutImports("hash1", imports))

	got, err := s.ImportsForFile("hash1")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestRelationshipsFromFiltersByFromID(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutRelationship(types.Relationship{FromID: "a", ToID: "b", Kind: types.RelCalls}))
	require.NoError(t, s.PutRelationship(types.Relationship{FromID: "a", ToID: "c", Kind: types.RelReferences}))
	require.NoError(t, s.PutRelationship(types.Relationship{FromID: "z", ToID: "b", Kind: types.RelCalls}))

	got, err := s.RelationshipsFrom("a")
	require.NoError(t, err)
	require.Len(t, got, 2)
}
