// Package metadatastore is the relational store of spec.md §3/§4.1: File,
// Symbol, Import and Relationship records, keyed by project scope,
// tombstoned rather than hard-deleted so a superseded File's history
// stays inspectable.
//
// Grounded on AleutianAI-AleutianFOSS's
// services/trace/graph/snapshot.go: a Badger key-prefix "table" scheme
// (one prefix per record kind), gzip+JSON value encoding and a reverse
// index for fast point lookups. That file is the pack's only example of
// an embedded KV store doing relational-record duty, which is exactly
// what spec.md's `*.db` requirement calls for.
package metadatastore

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
	"github.com/codeforge/retrieval-core/internal/types"
)

// Badger key prefixes, one per record "table".
const (
	prefixFile         = "file:"
	prefixFileByPath   = "file:by-path:" // path -> current (non-tombstoned) hash
	prefixFileByHash   = "file:by-hash:" // hash -> path, for reverse lookups (e.g. retriever results)
	prefixSymbol       = "symbol:"
	prefixSymbolByFile = "symbol:by-file:"
	prefixImport       = "import:"
	prefixImportByFile = "import:by-file:"
	prefixRelationship = "rel:"
	prefixMemory       = "memory:"
)

// Store is the relational store backing one scope's `*.db` directory.
// Safe for concurrent use: Badger serialises its own transactions. Most
// methods are a single transaction; GetFile and TombstoneFile use two
// in sequence.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) the Badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errorkinds.NewIoFailure(dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a Store with no on-disk footprint, for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errorkinds.NewIoFailure("<in-memory>", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Badger handles.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compact runs Badger's value-log garbage collection, reclaiming space
// left by tombstoned Files and superseded records. ErrNoRewrite means
// there was nothing to reclaim, and an in-memory store has no value log
// (ErrGCInMemoryMode); both are normal outcomes, not failures.
func (s *Store) Compact() error {
	err := s.db.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite && err != badger.ErrGCInMemoryMode {
		return errorkinds.NewIoFailure("<compact>", err)
	}
	return nil
}

// PutFile upserts a File record. Per spec.md §3 invariant (iii), a new
// non-tombstoned File for the same path supersedes any prior
// non-tombstoned record at that path: the old (path, hash) entry is left
// addressable by hash but the by-path pointer moves forward.
func (s *Store) PutFile(f types.File) error {
	return s.db.Update(func(txn *badger.Txn) error {
		payload, err := encode(f)
		if err != nil {
			return err
		}
		if err := txn.Set(fileKey(f.Path, f.Hash), payload); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixFileByHash+string(f.Hash)), []byte(f.Path)); err != nil {
			return err
		}
		if f.Tombstoned {
			return nil
		}
		return txn.Set([]byte(prefixFileByPath+f.Path), []byte(f.Hash))
	})
}

// PathForHash reverse-looks-up the path a given file hash was last
// written under, regardless of whether that (path, hash) version is
// still the current one at path. Returns ("", false, nil) if hash was
// never recorded.
func (s *Store) PathForHash(hash types.Hash) (string, bool, error) {
	var path string
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixFileByHash + string(hash)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			path = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, errorkinds.NewIoFailure(string(hash), err)
	}
	return path, found, nil
}

// GetFile returns the current (non-tombstoned) File for path, or
// (zero, false) if none exists.
func (s *Store) GetFile(path string) (types.File, bool, error) {
	var hash types.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixFileByPath + path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			hash = types.Hash(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return types.File{}, false, nil
	}
	if err != nil {
		return types.File{}, false, errorkinds.NewIoFailure(path, err)
	}
	f, ok, err := s.GetFileByHash(path, hash)
	return f, ok, err
}

// GetFileByHash returns the specific (path, hash) File version, tombstoned
// or not, so history is still inspectable after supersession.
func (s *Store) GetFileByHash(path string, hash types.Hash) (types.File, bool, error) {
	var f types.File
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(path, hash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error { return decode(val, &f) })
	})
	if err != nil {
		return types.File{}, false, errorkinds.NewIoFailure(path, err)
	}
	return f, found, nil
}

// TombstoneFile marks path's current File as tombstoned without
// deleting it, per spec.md §3's "created/hash-recomputed/tombstoned"
// lifecycle. A no-op if the file is already gone.
func (s *Store) TombstoneFile(path string) error {
	f, ok, err := s.GetFile(path)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	f.Tombstoned = true
	return s.db.Update(func(txn *badger.Txn) error {
		payload, err := encode(f)
		if err != nil {
			return err
		}
		if err := txn.Set(fileKey(f.Path, f.Hash), payload); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixFileByPath + f.Path))
	})
}

// PutSymbols replaces the symbol set recorded for fileHash. Symbols are
// stored insertion-ordered by (path, start_line, start_column) per
// spec.md §3 invariant (iv), sorted here so callers need not pre-sort.
func (s *Store) PutSymbols(fileHash types.Hash, symbols []types.Symbol) error {
	sorted := append([]types.Symbol(nil), symbols...)
	sort.Slice(sorted, func(i, j int) bool {
		pi, li, ci := sorted[i].SortKey()
		pj, lj, cj := sorted[j].SortKey()
		if pi != pj {
			return pi < pj
		}
		if li != lj {
			return li < lj
		}
		return ci < cj
	})
	payload, err := encode(sorted)
	if err != nil {
		return err
	}
	key := []byte(prefixSymbolByFile + string(fileHash))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// SymbolsForFile returns the insertion-ordered symbols recorded for
// fileHash, or nil if none were ever stored.
func (s *Store) SymbolsForFile(fileHash types.Hash) ([]types.Symbol, error) {
	var symbols []types.Symbol
	key := []byte(prefixSymbolByFile + string(fileHash))
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return decode(val, &symbols) })
	})
	if err != nil {
		return nil, errorkinds.NewIoFailure(string(fileHash), err)
	}
	return symbols, nil
}

// PutImports replaces the import set recorded for fileHash.
func (s *Store) PutImports(fileHash types.Hash, imports []types.Import) error {
	payload, err := encode(imports)
	if err != nil {
		return err
	}
	key := []byte(prefixImportByFile + string(fileHash))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// ImportsForFile returns the imports recorded for fileHash.
func (s *Store) ImportsForFile(fileHash types.Hash) ([]types.Import, error) {
	var imports []types.Import
	key := []byte(prefixImportByFile + string(fileHash))
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return decode(val, &imports) })
	})
	if err != nil {
		return nil, errorkinds.NewIoFailure(string(fileHash), err)
	}
	return imports, nil
}

// PutRelationship upserts one typed edge between two knowledge entities
// (SPEC_FULL.md §3's supplemented relationship model).
func (s *Store) PutRelationship(rel types.Relationship) error {
	payload, err := encode(rel)
	if err != nil {
		return err
	}
	key := []byte(fmt.Sprintf("%s%s:%s:%s", prefixRelationship, rel.FromID, rel.Kind, rel.ToID))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// RelationshipsFrom returns every relationship whose FromID matches id.
func (s *Store) RelationshipsFrom(id string) ([]types.Relationship, error) {
	var out []types.Relationship
	prefix := []byte(prefixRelationship + id + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rel types.Relationship
			if err := it.Item().Value(func(val []byte) error { return decode(val, &rel) }); err != nil {
				return err
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errorkinds.NewIoFailure(id, err)
	}
	return out, nil
}

// PutMemory upserts a KnowledgeMemory entity (spec.md §6's
// store_knowledge_memory / update_knowledge_entity tools).
func (s *Store) PutMemory(m types.KnowledgeMemory) error {
	payload, err := encode(m)
	if err != nil {
		return err
	}
	key := []byte(prefixMemory + m.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// GetMemory returns the KnowledgeMemory with id, or (zero, false) if none.
func (s *Store) GetMemory(id string) (types.KnowledgeMemory, bool, error) {
	var m types.KnowledgeMemory
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMemory + id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error { return decode(val, &m) })
	})
	if err != nil {
		return types.KnowledgeMemory{}, false, errorkinds.NewIoFailure(id, err)
	}
	return m, found, nil
}

// DeleteMemory removes a KnowledgeMemory entity outright: memories carry
// no version history to preserve, unlike Files, so prune/wipe hard-delete
// rather than tombstone.
func (s *Store) DeleteMemory(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixMemory + id))
	})
}

// ListMemories returns every stored KnowledgeMemory, in key order.
func (s *Store) ListMemories() ([]types.KnowledgeMemory, error) {
	var out []types.KnowledgeMemory
	prefix := []byte(prefixMemory)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m types.KnowledgeMemory
			if err := it.Item().Value(func(val []byte) error { return decode(val, &m) }); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, errorkinds.NewIoFailure("<memories>", err)
	}
	return out, nil
}

// DeleteRelationship removes one typed edge, for wipe_knowledge_graph.
func (s *Store) DeleteRelationship(rel types.Relationship) error {
	key := []byte(fmt.Sprintf("%s%s:%s:%s", prefixRelationship, rel.FromID, rel.Kind, rel.ToID))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// AllRelationships returns every stored relationship, for export, status
// and wipe.
func (s *Store) AllRelationships() ([]types.Relationship, error) {
	var out []types.Relationship
	prefix := []byte(prefixRelationship)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rel types.Relationship
			if err := it.Item().Value(func(val []byte) error { return decode(val, &rel) }); err != nil {
				return err
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errorkinds.NewIoFailure("<relationships>", err)
	}
	return out, nil
}

func fileKey(path string, hash types.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixFile, path, hash))
}

// encode gzip-compresses the JSON encoding of v, matching the teacher's
// snapshot payload format so large symbol/relationship slices don't
// bloat the Badger value log.
func encode(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errorkinds.NewInvalidArgument("value", err.Error())
	}
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(payload []byte, v interface{}) error {
	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer gr.Close()
	raw, err := io.ReadAll(gr)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
