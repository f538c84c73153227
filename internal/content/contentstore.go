// Package content implements the ContentStore of spec.md §4.2: reads raw
// files, canonicalises and hashes them, and caches recent reads keyed by
// (path, mtime). Grounded on the teacher's internal/core/
// file_content_store.go cache discipline (lock held only over map
// operations, never across I/O) and its xxhash/sha256 dual-hash pattern.
package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
	"github.com/codeforge/retrieval-core/internal/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cacheKey is (path, mtime): a new mtime evicts the old entry naturally.
type cacheKey struct {
	path  string
	mtime int64
}

type cacheEntry struct {
	hash     types.Hash
	bytes    []byte
	language types.Language
	fastHash uint64
}

// Store is the ContentStore. Safe for concurrent use; the mutex is held
// only across map reads/writes, never across file I/O.
type Store struct {
	log      *zap.Logger
	mu       sync.RWMutex
	cache    map[cacheKey]*cacheEntry
	order    []cacheKey // insertion order; eviction is FIFO (hits do not reorder)
	maxBytes int64
	curBytes int64
}

// New creates a ContentStore bounded by maxBytes of cached content.
func New(log *zap.Logger, maxBytes int64) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:      log,
		cache:    make(map[cacheKey]*cacheEntry),
		maxBytes: maxBytes,
	}
}

// Digest computes the content hash: canonicalise (CRLF->LF, strip a
// leading UTF-8 BOM), then SHA-256, returned as lowercase hex. This is
// deterministic across platforms (Testable Property 2).
func Digest(raw []byte) types.Hash {
	canon := Canonicalise(raw)
	sum := sha256.Sum256(canon)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// Canonicalise normalises line endings to LF and strips a leading BOM.
// It never mutates raw.
func Canonicalise(raw []byte) []byte {
	b := raw
	if bytes.HasPrefix(b, utf8BOM) {
		b = b[len(utf8BOM):]
	}
	if !bytes.Contains(b, []byte("\r")) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == '\r' {
			if i+1 < len(b) && b[i+1] == '\n' {
				continue // CRLF -> consume the CR, keep the LF
			}
			out = append(out, '\n') // lone CR -> LF
			continue
		}
		out = append(out, b[i])
	}
	return out
}

// Read loads path, returning its canonical content hash and raw bytes.
// A non-UTF-8 file is returned with Language=binary rather than failing;
// an unreadable file returns *errorkinds.IoFailure.
func (s *Store) Read(path string) (types.Hash, []byte, types.Language, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, types.LangUnknown, errorkinds.NewIoFailure(path, err)
	}
	key := cacheKey{path: path, mtime: info.ModTime().UnixNano()}

	s.mu.RLock()
	if entry, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return entry.hash, entry.bytes, entry.language, nil
	}
	s.mu.RUnlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, types.LangUnknown, errorkinds.NewIoFailure(path, err)
	}

	lang := types.LangUnknown
	if !utf8.Valid(raw) {
		lang = types.LangBinary
	}
	hash := Digest(raw)
	entry := &cacheEntry{
		hash:     hash,
		bytes:    raw,
		language: lang,
		fastHash: xxhash.Sum64(raw),
	}

	s.mu.Lock()
	s.cache[key] = entry
	s.order = append(s.order, key)
	s.curBytes += int64(len(raw))
	s.evictLocked()
	s.mu.Unlock()

	return hash, raw, lang, nil
}

// evictLocked drops the oldest cached entries until curBytes <= maxBytes.
// Caller must hold s.mu for writing.
func (s *Store) evictLocked() {
	if s.maxBytes <= 0 {
		return
	}
	for s.curBytes > s.maxBytes && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if e, ok := s.cache[oldest]; ok {
			s.curBytes -= int64(len(e.bytes))
			delete(s.cache, oldest)
		}
	}
}

// Invalidate drops any cached entry for path regardless of mtime, so the
// next Read of path goes to disk.
func (s *Store) Invalidate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cache {
		if k.path == path {
			if e := s.cache[k]; e != nil {
				s.curBytes -= int64(len(e.bytes))
			}
			delete(s.cache, k)
		}
	}
}

// Stat is a thin wrapper so callers needn't import os directly; kept
// here because ContentStore is the single owner of file I/O (spec.md §3
// ownership rule).
func Stat(path string) (os.FileInfo, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return info, info.ModTime(), nil
}
