package content

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codeforge/retrieval-core/internal/types"
	"github.com/stretchr/testify/require"
)

func TestDigestNormalisesLineEndingsAndBOM(t *testing.T) {
	lf := []byte("package main\nfunc main() {}\n")
	crlf := []byte("package main\r\nfunc main() {}\r\n")
	bomLF := append([]byte{0xEF, 0xBB, 0xBF}, lf...)

	require.Equal(t, Digest(lf), Digest(crlf))
	require.Equal(t, Digest(lf), Digest(bomLF))
}

func TestDigestDeterministic(t *testing.T) {
	data := []byte("hello world\n")
	require.Equal(t, Digest(data), Digest(data))
}

func TestReadCachesByPathAndMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	store := New(nil, 1<<20)
	h1, b1, lang1, err := store.Read(path)
	require.NoError(t, err)
	require.Equal(t, types.LangUnknown, lang1)

	h2, b2, _, err := store.Read(path)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Equal(t, b1, b2)
}

func TestReadDetectsBinaryWithoutError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.dat")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01, 0x02}, 0o644))

	store := New(nil, 1<<20)
	_, _, lang, err := store.Read(path)
	require.NoError(t, err)
	require.Equal(t, types.LangBinary, lang)
}

func TestReadMissingFileFails(t *testing.T) {
	store := New(nil, 1<<20)
	_, _, _, err := store.Read(filepath.Join(t.TempDir(), "missing.go"))
	require.Error(t, err)
}

func TestReadReflectsNewContentAfterMtimeChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	store := New(nil, 1<<20)
	h1, _, _, err := store.Read(path)
	require.NoError(t, err)

	// Force a distinct mtime so the cache key changes.
	future := time.Now().Add(time.Second)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	h2, _, _, err := store.Read(path)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}
