// Package vectorstore implements the Collection lifecycle and Embedded
// document CRUD/search of spec.md §4.6: a named, model-bound container
// whose fingerprint — (model_id, dimensionality, schema_version) — can
// never silently disagree with the vectors it stores.
//
// Grounded on fyrsmithlabs-contextd/internal/vectorstore/chromem.go (the
// collection-per-namespace wrapper around chromem-go, persistent DB at a
// directory path, documents carrying pre-computed embeddings) and
// qdrant.go's config-validation/retry shape for SwitchModel's
// force/cool-down guard. The transport itself stays embedded (chromem-go)
// rather than adopting qdrant.go's external gRPC service, because
// spec.md §6 requires a locally persisted `vector/<collection>/`
// directory with a fingerprint sidecar — a shape chromem-go matches
// directly.
package vectorstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
)

// SchemaVersion is the current Collection schema version written into
// every fingerprint; bumping it invalidates every prior sidecar.
const SchemaVersion = "v1"

// switchCooldown is the default window of spec.md §4.6 that prevents a
// default-model switch from thrashing repeated reindexes.
const switchCooldown = 24 * time.Hour

// Fingerprint is a Collection's stable identity tuple (spec.md §4.6).
type Fingerprint struct {
	ModelID        string    `json:"model_id"`
	Dimensionality int       `json:"dimensionality"`
	SchemaVersion  string    `json:"schema_version"`
	LastSwitchAt   time.Time `json:"last_switch_at"`
}

// EmbeddedDocument is one vector record, per spec.md §3.
type EmbeddedDocument struct {
	ID           string
	SourceDigest string
	Metadata     map[string]string
	Vector       []float32
	InsertedAt   time.Time
}

// Hit is one scored search result.
type Hit struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Collection wraps one chromem-go collection plus its fingerprint
// sidecar. Locked collections refuse writes, backing the fingerprint
// freeze spec.md §3 describes for the Collection's lock flag.
type Collection struct {
	mu          sync.RWMutex
	name        string
	dir         string
	fingerprint Fingerprint
	locked      bool
	col         *chromem.Collection
	db          *chromem.DB
}

func sidecarPath(dir string) string { return filepath.Join(dir, "collection.metadata.json") }

// refuseEmbedding is passed to chromem-go in place of a live embedder:
// every document this package writes already carries its vector from
// EmbeddingClient, so chromem-go must never be asked to compute one.
func refuseEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errorkinds.NewInvalidArgument("embedding_func", "vectorstore documents must carry a pre-computed embedding")
}

// Open opens or creates the collection at dir (typically
// storagelayout.Layout.VectorStorePath(scope, name)), validating its
// on-disk fingerprint against want. A brand-new directory is
// initialised with want as its fingerprint. A mismatch against an
// existing fingerprint fails with CollectionIncompatible and opens
// nothing, per spec.md §4.6.
func Open(dir, name string, want Fingerprint) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errorkinds.NewIoFailure(dir, err)
	}
	want.SchemaVersion = SchemaVersion

	existing, err := readFingerprint(dir)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if err := writeFingerprint(dir, want); err != nil {
			return nil, err
		}
		existing = &want
	} else if existing.ModelID != want.ModelID || existing.Dimensionality != want.Dimensionality || existing.SchemaVersion != want.SchemaVersion {
		return nil, errorkinds.NewCollectionIncompatible(name, want.ModelID, existing.ModelID)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, errorkinds.NewIoFailure(dir, err)
	}
	col, err := db.GetOrCreateCollection(name, nil, refuseEmbedding)
	if err != nil {
		return nil, errorkinds.NewIoFailure(dir, err)
	}

	return &Collection{name: name, dir: dir, fingerprint: *existing, db: db, col: col}, nil
}

func readFingerprint(dir string) (*Fingerprint, error) {
	raw, err := os.ReadFile(sidecarPath(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errorkinds.NewIoFailure(dir, err)
	}
	var fp Fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return nil, errorkinds.NewIoFailure(dir, err)
	}
	return &fp, nil
}

func writeFingerprint(dir string, fp Fingerprint) error {
	raw, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(sidecarPath(dir), raw, 0o644); err != nil {
		return errorkinds.NewIoFailure(dir, err)
	}
	return nil
}

// Fingerprint returns the Collection's current fingerprint.
func (c *Collection) Fingerprint() Fingerprint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fingerprint
}

// Locked reports whether the Collection currently refuses writes.
func (c *Collection) Locked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locked
}

// Lock freezes the Collection's model: subsequent Upsert calls fail
// until Unlock, per spec.md §3's lock-flag attribute.
func (c *Collection) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = true
}

// Unlock releases a prior Lock.
func (c *Collection) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = false
}

// Count returns the number of Embedded documents currently stored.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col.Count()
}

// Upsert writes docs, enforcing the hard invariant of spec.md §3/§4.6:
// a Collection never stores a vector whose length disagrees with its
// fingerprinted dimensionality. Any one offending document fails the
// whole batch — partial writes would leave the invariant unprovable.
func (c *Collection) Upsert(ctx context.Context, docs []EmbeddedDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return errorkinds.NewConflict(c.name, nil)
	}
	for _, d := range docs {
		if len(d.Vector) != c.fingerprint.Dimensionality {
			return errorkinds.NewDimensionMismatch(c.fingerprint.ModelID, c.fingerprint.Dimensionality, len(d.Vector))
		}
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Metadata:  d.Metadata,
			Embedding: d.Vector,
		}
	}
	if err := c.col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return errorkinds.NewIoFailure(c.name, err)
	}
	return nil
}

// Delete removes documents by id. Unlike File records, Embedded
// documents have no tombstone state — spec.md ownership rules put only
// File lifecycle under tombstoning; vectors are simply dropped and
// reindexed.
func (c *Collection) Delete(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if err := c.col.Delete(ctx, nil, nil, id); err != nil {
			return errorkinds.NewIoFailure(id, err)
		}
	}
	return nil
}

// Search returns the k nearest documents to vector by cosine similarity
// (chromem-go's only metric). vector must already have the Collection's
// dimensionality; callers get that for free since EmbeddingClient.Embed
// already enforces it upstream.
func (c *Collection) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(vector) != c.fingerprint.Dimensionality {
		return nil, errorkinds.NewDimensionMismatch(c.fingerprint.ModelID, c.fingerprint.Dimensionality, len(vector))
	}
	n := c.col.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := c.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, errorkinds.NewIoFailure(c.name, err)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{ID: r.ID, Score: r.Similarity, Metadata: r.Metadata}
	}
	return hits, nil
}

// SwitchModel changes the Collection's default embedding model. It
// refuses when the Collection holds vectors and force is false; with
// force it purges existing vectors (they are no longer fingerprint-
// compatible) and rewrites the sidecar. A cool-down window blocks
// repeated switches regardless of force, per spec.md §4.6.
func (c *Collection) SwitchModel(ctx context.Context, modelID string, dimensionality int, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fingerprint.LastSwitchAt.IsZero() && time.Since(c.fingerprint.LastSwitchAt) < switchCooldown {
		return errorkinds.NewConflict(c.name, nil)
	}
	if c.col.Count() > 0 && !force {
		return errorkinds.NewConflict(c.name, nil)
	}
	if c.col.Count() > 0 {
		if err := c.db.DeleteCollection(c.name); err != nil {
			return errorkinds.NewIoFailure(c.name, err)
		}
		col, err := c.db.GetOrCreateCollection(c.name, nil, refuseEmbedding)
		if err != nil {
			return errorkinds.NewIoFailure(c.name, err)
		}
		c.col = col
	}

	c.fingerprint = Fingerprint{
		ModelID:        modelID,
		Dimensionality: dimensionality,
		SchemaVersion:  SchemaVersion,
		LastSwitchAt:   time.Now(),
	}
	return writeFingerprint(c.dir, c.fingerprint)
}
