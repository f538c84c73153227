package mcpsurface

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeforge/retrieval-core/internal/content"
	"github.com/codeforge/retrieval-core/internal/metadatastore"
	"github.com/codeforge/retrieval-core/internal/parser"
	"github.com/codeforge/retrieval-core/internal/retriever"
	"github.com/codeforge/retrieval-core/internal/symbolindex"
)

// newTestSurface builds a Surface wired entirely in-memory/BM25-only,
// mirroring metadatastore's own newTestStore(t) helper and the
// retriever's bm25_only test mode: no vector store, no embedding
// client, nothing that would require a running model server.
func newTestSurface(t *testing.T) *Surface {
	t.Helper()
	meta, err := metadatastore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	store := content.New(nil, 10<<20)
	p := parser.New()
	idx := symbolindex.New()
	retr := retriever.New(idx, nil, nil, "")

	return New(Dependencies{
		Content:   store,
		Parser:    p,
		Symbols:   idx,
		Metadata:  meta,
		Retriever: retr,
	})
}

// writeFixture writes raw to dir/name and returns the full path.
func writeFixture(t *testing.T, dir, name string, raw []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

const goFixture = `package sample

// Greet returns a friendly message.
func Greet(name string) string {
	return "hello " + name
}

type widget struct {
	ID int
}
`
