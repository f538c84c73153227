// Package retriever implements the HybridRetriever of spec.md §4.7: a
// ranked-list query that fans out to SymbolIndex BM25 and VectorStore
// search in parallel, fuses by reciprocal-rank fusion, and optionally
// reranks.
//
// Fan-out shape grounded on the teacher's
// internal/search/search_coordinator.go (parallel subsystem dispatch
// under a shared deadline, provenance of which subsystems answered) and
// its own test use of golang.org/x/sync/errgroup
// (internal/mcp/integration_test.go), generalised here from N
// bespoke-metrics-laden goroutines down to one errgroup.WithContext
// fanning out exactly two subsystems. Spans are recorded on
// `otel.Tracer("retrieval-core.retriever")`.
package retriever

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/codeforge/retrieval-core/internal/embedding"
	"github.com/codeforge/retrieval-core/internal/symbolindex"
	"github.com/codeforge/retrieval-core/internal/vectorstore"
)

var tracer = otel.Tracer("retrieval-core.retriever")

// Mode selects which subsystems a query exercises, per spec.md §4.7 —
// every mode must be independently invocable for the benchmark harness.
type Mode string

const (
	ModeBM25Only       Mode = "bm25_only"
	ModeSymbolBM25Only Mode = "symbol_bm25_only"
	ModeVectorOnly     Mode = "vector_only"
	ModeHybrid         Mode = "hybrid"
	ModeReranked       Mode = "reranked"
)

// Fusion tuning constants, spec.md §4.7 defaults.
const (
	rrfConstant = 60.0
	weightBM25  = 1.0
	weightVec   = 1.0
)

// Subsystem names for provenance, matching spec.md §4.7's requirement
// that the result records which subsystems contributed.
const (
	SubsystemBM25   = "bm25"
	SubsystemVector = "vector"
	SubsystemRerank = "rerank"
)

// Document is one fused result.
type Document struct {
	ID         string // file hash or vector doc id, subsystem-dependent
	Path       string
	Score      float64
	BM25Score  float64
	FinalRank  int
	Provenance []string // which subsystems contributed to this document
}

// Result is one query's full answer.
type Result struct {
	Documents []Document
	Mode      Mode
	Degraded  bool     // true if any subsystem was abandoned to the deadline
	Truncated []string // subsystems abandoned, if Degraded
}

// EmbedSearcher is the minimal VectorStore surface the retriever needs:
// embed the query, then search the resulting vector. Kept as an
// interface so tests can substitute a fake without standing up a real
// Collection.
type EmbedSearcher interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	SearchVector(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error)
}

// collectionAdapter adapts an embedding.Client + vectorstore.Collection
// pair to EmbedSearcher.
type collectionAdapter struct {
	embed *embedding.Client
	model embedding.ModelInfo
	col   *vectorstore.Collection
}

// NewEmbedSearcher builds the default EmbedSearcher from a live
// EmbeddingClient and VectorStore Collection.
func NewEmbedSearcher(embed *embedding.Client, model embedding.ModelInfo, col *vectorstore.Collection) EmbedSearcher {
	return &collectionAdapter{embed: embed, model: model, col: col}
}

func (a *collectionAdapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.embed.Embed(ctx, []string{text}, a.model, true)
	if err != nil || len(vectors) == 0 {
		return nil, err
	}
	return vectors[0], nil
}

func (a *collectionAdapter) SearchVector(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	return a.col.Search(ctx, vector, k)
}

// Retriever is the HybridRetriever.
type Retriever struct {
	symbols     *symbolindex.Index
	vectors     EmbedSearcher
	reranker    *embedding.Client
	rerankModel string
}

// New builds a Retriever. vectors and reranker may be nil; modes that
// don't need them (bm25_only, symbol_bm25_only) still work.
func New(symbols *symbolindex.Index, vectors EmbedSearcher, reranker *embedding.Client, rerankModel string) *Retriever {
	return &Retriever{symbols: symbols, vectors: vectors, reranker: reranker, rerankModel: rerankModel}
}

// pathByID resolves a vector-store hit id back to a display path; nil
// behaves like identity (id used as path), for tests/fixtures that
// don't need the distinction.
type pathByID func(id string) string

// Search answers one query in the given mode, honouring ctx's deadline:
// a subsystem that doesn't answer before ctx is done is dropped from
// the fusion rather than failing the whole query, with Degraded/Truncated
// recording what happened (spec.md §4.7 Cancellation clause).
func (r *Retriever) Search(ctx context.Context, query string, k int, mode Mode, resolvePath pathByID) (Result, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Search")
	defer span.End()
	span.SetAttributes(attribute.String("mode", string(mode)), attribute.Int("k", k))

	query = normalise(query)
	kBM := max(k, 20)
	kVec := max(k, 20)

	var bmHits []symbolindex.Hit
	var vecHits []vectorstore.Hit
	var degraded bool
	var truncated []string
	var bmDone, vecDone bool

	needBM := mode == ModeBM25Only || mode == ModeSymbolBM25Only || mode == ModeHybrid || mode == ModeReranked
	needVec := mode == ModeVectorOnly || mode == ModeHybrid || mode == ModeReranked

	g, gctx := errgroup.WithContext(ctx)
	if needBM && r.symbols != nil {
		g.Go(func() error {
			bmHits = r.symbols.Search(query, kBM)
			bmDone = true
			return nil
		})
	}
	if needVec && r.vectors != nil {
		g.Go(func() error {
			vector, err := r.vectors.EmbedQuery(gctx, query)
			if err != nil {
				return nil // degrade, don't fail the whole query
			}
			hits, err := r.vectors.SearchVector(gctx, vector, kVec)
			if err != nil {
				return nil
			}
			vecHits = hits
			vecDone = true
			return nil
		})
	}
	_ = g.Wait() // errors are swallowed by design: missing subsystems degrade, see above

	if needBM && !bmDone && ctx.Err() != nil {
		degraded = true
		truncated = append(truncated, SubsystemBM25)
	}
	if needVec && !vecDone && ctx.Err() != nil {
		degraded = true
		truncated = append(truncated, SubsystemVector)
	}

	docs := fuse(bmHits, vecHits, mode)

	kRerank := max(k, 50)
	if len(docs) > kRerank {
		docs = docs[:kRerank]
	}

	if mode == ModeReranked && r.reranker != nil {
		docs, degraded = r.rerank(ctx, query, docs, k, degraded, &truncated)
	} else if len(docs) > k {
		docs = docs[:k]
	}

	for i := range docs {
		docs[i].FinalRank = i + 1
		if resolvePath != nil {
			docs[i].Path = resolvePath(docs[i].ID)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(docs)), attribute.Bool("degraded", degraded))
	if degraded {
		span.SetStatus(codes.Error, "degraded")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return Result{Documents: docs, Mode: mode, Degraded: degraded, Truncated: truncated}, nil
}

func (r *Retriever) rerank(ctx context.Context, query string, docs []Document, k int, degraded bool, truncated *[]string) ([]Document, bool) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.ID
	}
	ranked, err := r.reranker.Rerank(ctx, query, texts, k, r.rerankModel)
	if err != nil {
		if len(docs) > k {
			docs = docs[:k]
		}
		*truncated = append(*truncated, SubsystemRerank)
		return docs, true
	}
	out := make([]Document, len(ranked))
	for i, rd := range ranked {
		d := docs[rd.Index]
		d.Score = rd.Score
		d.Provenance = append(append([]string{}, d.Provenance...), SubsystemRerank)
		out[i] = d
	}
	return out, degraded
}

// fuse implements spec.md §4.7 step 3: reciprocal-rank fusion across
// whichever subsystems ran for mode. Pure single-subsystem modes skip
// fusion arithmetic entirely and return that subsystem's own order.
func fuse(bmHits []symbolindex.Hit, vecHits []vectorstore.Hit, mode Mode) []Document {
	switch mode {
	case ModeBM25Only, ModeSymbolBM25Only:
		out := make([]Document, len(bmHits))
		for i, h := range bmHits {
			out[i] = Document{ID: string(h.FileHash), Path: h.FilePath, Score: h.Score, BM25Score: h.Score, Provenance: []string{SubsystemBM25}}
		}
		return out
	case ModeVectorOnly:
		out := make([]Document, len(vecHits))
		for i, h := range vecHits {
			out[i] = Document{ID: h.ID, Score: float64(h.Score), Provenance: []string{SubsystemVector}}
		}
		return out
	}

	type fused struct {
		score      float64
		bm25       float64
		path       string
		provenance map[string]bool
	}
	byID := make(map[string]*fused)
	order := make([]string, 0, len(bmHits)+len(vecHits))

	for rank, h := range bmHits {
		id := string(h.FileHash)
		f, ok := byID[id]
		if !ok {
			f = &fused{path: h.FilePath, provenance: make(map[string]bool)}
			byID[id] = f
			order = append(order, id)
		}
		f.score += weightBM25 / (rrfConstant + float64(rank+1))
		f.bm25 = h.Score
		f.provenance[SubsystemBM25] = true
	}
	for rank, h := range vecHits {
		f, ok := byID[h.ID]
		if !ok {
			f = &fused{provenance: make(map[string]bool)}
			byID[h.ID] = f
			order = append(order, h.ID)
		}
		f.score += weightVec / (rrfConstant + float64(rank+1))
		f.provenance[SubsystemVector] = true
	}

	out := make([]Document, 0, len(order))
	for _, id := range order {
		f := byID[id]
		prov := make([]string, 0, len(f.provenance))
		for _, s := range []string{SubsystemBM25, SubsystemVector} {
			if f.provenance[s] {
				prov = append(prov, s)
			}
		}
		out = append(out, Document{ID: id, Path: f.path, Score: f.score, BM25Score: f.bm25, Provenance: prov})
	}

	// Ties break on BM25 raw score, then on path, per spec.md §4.7 step 3.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].BM25Score != out[j].BM25Score {
			return out[i].BM25Score > out[j].BM25Score
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func normalise(query string) string {
	return strings.TrimSpace(query)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Deadline is a convenience helper for callers building a per-query
// context; exported so the MCP surface and benchmark harness share one
// deadline policy.
func Deadline(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
