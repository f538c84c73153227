// Package benchmark implements the BenchmarkHarness of spec.md §4.8:
// it scores each retrieval method against a labelled dataset and
// reports Recall@K/Precision@K/MRR/nDCG@K plus latency percentiles, a
// leaderboard and a per-query-type breakdown.
//
// Grounded on the teacher's internal/analysis/metrics_calculator.go for
// struct shape and doc-comment register (score structs, percentile-style
// aggregation) — its own metrics are code-quality numbers, not retrieval
// quality, so the arithmetic here is new, but the "calculator holding
// pure functions over a labelled structure, returning an aggregate
// report struct" shape is the same. No statistics library appears
// anywhere in the example pack for Recall/MRR/nDCG math, so this piece
// is deliberately stdlib-only (`sort`, `math`, `time`) — the exact kind
// of justified stdlib use DESIGN.md calls out explicitly.
package benchmark

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/codeforge/retrieval-core/internal/retriever"
)

// QueryType is one of the three label categories spec.md §4.8 defines.
type QueryType string

const (
	QueryTypeCode       QueryType = "code"
	QueryTypeConceptual QueryType = "conceptual"
	QueryTypeMixed      QueryType = "mixed"
)

// LabeledQuery is one row of the evaluation dataset.
type LabeledQuery struct {
	QueryID      string
	Type         QueryType
	QueryText    string
	RelevantDocs []string // document IDs considered relevant
}

// Dataset is the full labelled evaluation set.
type Dataset struct {
	Queries []LabeledQuery
}

// Method names every mode spec.md §4.8 requires the harness to
// evaluate, paired with the retriever.Mode that answers it.
var Method = struct {
	BM25       string
	SymbolBM25 string
	VectorOnly string
	Hybrid     string
	Reranked   string
}{
	BM25:       "bm25",
	SymbolBM25: "symbol_bm25",
	VectorOnly: "vector_only",
	Hybrid:     "hybrid",
	Reranked:   "reranked",
}

var methodModes = map[string]retriever.Mode{
	Method.BM25:       retriever.ModeBM25Only,
	Method.SymbolBM25: retriever.ModeSymbolBM25Only,
	Method.VectorOnly: retriever.ModeVectorOnly,
	Method.Hybrid:     retriever.ModeHybrid,
	Method.Reranked:   retriever.ModeReranked,
}

// methodOrder fixes iteration order so the leaderboard and per-query
// output are stable across runs regardless of Go's map ordering.
var methodOrder = []string{Method.BM25, Method.SymbolBM25, Method.VectorOnly, Method.Hybrid, Method.Reranked}

// QualityScores are the four quality metrics of spec.md §4.8, computed
// per query then averaged across the dataset for a method.
type QualityScores struct {
	RecallAtK    float64
	PrecisionAtK float64
	MRR          float64
	NDCGAtK      float64
}

// LatencyStats are the aggregate timing figures; these are wall-clock
// measurements and, unlike QualityScores, are NOT expected to be
// bit-identical across runs — only the quality numbers are, per
// spec.md §4.8's purity requirement.
type LatencyStats struct {
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
}

// MethodResult is one method's full scorecard.
type MethodResult struct {
	Method  string
	Quality QualityScores
	Latency LatencyStats
}

// Report is the harness's full output: an overall leaderboard and a
// per-query-type breakdown, both ranked by descending nDCG@K — the
// single metric that accounts for both relevance and rank position.
type Report struct {
	K           int
	Leaderboard []MethodResult
	ByQueryType map[QueryType][]MethodResult
}

// Harness evaluates a Dataset against one Retriever across all five
// methods of spec.md §4.8.
type Harness struct {
	retriever *retriever.Retriever
}

// New builds a Harness over an already-constructed Retriever; the
// harness itself holds no mutable state between runs, keeping Run pure
// with respect to its inputs.
func New(r *retriever.Retriever) *Harness {
	return &Harness{retriever: r}
}

// Run evaluates every method in methodOrder against dataset at cut k,
// returning a Report. A query whose retriever call errors contributes
// zero scores for that query rather than aborting the whole run — one
// bad query should not hide every other method's numbers.
func (h *Harness) Run(ctx context.Context, dataset Dataset, k int) (Report, error) {
	overall := make([]MethodResult, 0, len(methodOrder))
	byType := make(map[QueryType][]MethodResult)

	queriesByType := make(map[QueryType][]LabeledQuery)
	for _, q := range dataset.Queries {
		queriesByType[q.Type] = append(queriesByType[q.Type], q)
	}

	for _, method := range methodOrder {
		overall = append(overall, h.evaluateMethod(ctx, method, dataset.Queries, k))
	}
	sortByNDCG(overall)

	for qType, queries := range queriesByType {
		results := make([]MethodResult, 0, len(methodOrder))
		for _, method := range methodOrder {
			results = append(results, h.evaluateMethod(ctx, method, queries, k))
		}
		sortByNDCG(results)
		byType[qType] = results
	}

	return Report{K: k, Leaderboard: overall, ByQueryType: byType}, nil
}

func sortByNDCG(results []MethodResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Quality.NDCGAtK > results[j].Quality.NDCGAtK
	})
}

func (h *Harness) evaluateMethod(ctx context.Context, method string, queries []LabeledQuery, k int) MethodResult {
	mode := methodModes[method]

	var recallSum, precisionSum, mrrSum, ndcgSum float64
	latencies := make([]time.Duration, 0, len(queries))

	for _, q := range queries {
		relevant := make(map[string]bool, len(q.RelevantDocs))
		for _, id := range q.RelevantDocs {
			relevant[id] = true
		}

		start := time.Now()
		result, err := h.retriever.Search(ctx, q.QueryText, k, mode, nil)
		latencies = append(latencies, time.Since(start))
		if err != nil {
			continue
		}

		retrieved := make([]string, len(result.Documents))
		for i, d := range result.Documents {
			retrieved[i] = d.ID
		}

		recallSum += recallAtK(retrieved, relevant, k)
		precisionSum += precisionAtK(retrieved, relevant, k)
		mrrSum += reciprocalRank(retrieved, relevant)
		ndcgSum += ndcgAtK(retrieved, relevant, k)
	}

	n := float64(len(queries))
	quality := QualityScores{}
	if n > 0 {
		quality = QualityScores{
			RecallAtK:    recallSum / n,
			PrecisionAtK: precisionSum / n,
			MRR:          mrrSum / n,
			NDCGAtK:      ndcgSum / n,
		}
	}

	return MethodResult{Method: method, Quality: quality, Latency: latencyStats(latencies)}
}

// recallAtK is |retrieved∩relevant| / |relevant|, per spec.md §4.8. A
// query with no labelled relevant documents contributes 0 rather than
// NaN.
func recallAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	hits := countHits(retrieved, relevant, k)
	return float64(hits) / float64(len(relevant))
}

// precisionAtK is |retrieved∩relevant| / K, per spec.md §4.8.
func precisionAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if k == 0 {
		return 0
	}
	hits := countHits(retrieved, relevant, k)
	return float64(hits) / float64(k)
}

func countHits(retrieved []string, relevant map[string]bool, k int) int {
	if len(retrieved) > k {
		retrieved = retrieved[:k]
	}
	hits := 0
	for _, id := range retrieved {
		if relevant[id] {
			hits++
		}
	}
	return hits
}

// reciprocalRank is the per-query term of MRR: 1/rank of the first
// relevant document, or 0 if none of the retrieved documents is
// relevant.
func reciprocalRank(retrieved []string, relevant map[string]bool) float64 {
	for i, id := range retrieved {
		if relevant[id] {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// ndcgAtK computes nDCG@K with binary relevance and the standard log2
// discount, per spec.md §4.8.
func ndcgAtK(retrieved []string, relevant map[string]bool, k int) float64 {
	if len(retrieved) > k {
		retrieved = retrieved[:k]
	}
	dcg := 0.0
	for i, id := range retrieved {
		if relevant[id] {
			dcg += 1.0 / math.Log2(float64(i+2)) // i is 0-based; rank = i+1, discount uses rank+1
		}
	}

	idealHits := len(relevant)
	if idealHits > k {
		idealHits = k
	}
	idcg := 0.0
	for i := 0; i < idealHits; i++ {
		idcg += 1.0 / math.Log2(float64(i+2))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// latencyStats computes mean and the 50th/95th/99th percentiles over a
// set of per-query latencies, with microsecond precision per spec.md
// §4.8. Percentiles use the nearest-rank method.
func latencyStats(latencies []time.Duration) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	mean := (sum / time.Duration(len(sorted))).Round(time.Microsecond)

	return LatencyStats{
		Mean: mean,
		P50:  percentile(sorted, 50).Round(time.Microsecond),
		P95:  percentile(sorted, 95).Round(time.Microsecond),
		P99:  percentile(sorted, 99).Round(time.Microsecond),
	}
}

// percentile uses the nearest-rank method over an already-sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := int(math.Ceil(float64(p) / 100.0 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
