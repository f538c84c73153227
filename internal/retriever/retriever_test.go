package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeforge/retrieval-core/internal/symbolindex"
	"github.com/codeforge/retrieval-core/internal/types"
	"github.com/codeforge/retrieval-core/internal/vectorstore"
)

// fakeSearcher is a hand-rolled EmbedSearcher stand-in: the real
// Collection needs chromem-go's on-disk state, which these fusion/mode
// tests don't exercise. Grounded on the interface's own minimal shape.
type fakeSearcher struct {
	vector []float32
	hits   []vectorstore.Hit
	err    error
	delay  time.Duration
}

func (f *fakeSearcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

func (f *fakeSearcher) SearchVector(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func buildSymbolIndex(t *testing.T) *symbolindex.Index {
	idx := symbolindex.New()
	now := time.Now()
	idx.AddDocument(types.Hash("h1"), "widget.go", now, []byte("widget widget widget"), nil, nil)
	idx.AddDocument(types.Hash("h2"), "gadget.go", now, []byte("gadget"), nil, nil)
	return idx
}

func TestBM25OnlyModeUsesOnlySymbolIndex(t *testing.T) {
	idx := buildSymbolIndex(t)
	r := New(idx, nil, nil, "")

	result, err := r.Search(context.Background(), "widget", 5, ModeBM25Only, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Documents)
	require.Equal(t, "h1", result.Documents[0].ID)
	require.Equal(t, []string{SubsystemBM25}, result.Documents[0].Provenance)
}

func TestSymbolBM25OnlyModeIsEquivalentToBM25Only(t *testing.T) {
	idx := buildSymbolIndex(t)
	r := New(idx, nil, nil, "")

	result, err := r.Search(context.Background(), "widget", 5, ModeSymbolBM25Only, nil)
	require.NoError(t, err)
	require.Equal(t, "h1", result.Documents[0].ID)
}

func TestVectorOnlyModeUsesOnlyVectorStore(t *testing.T) {
	fake := &fakeSearcher{
		vector: []float32{1, 0, 0},
		hits: []vectorstore.Hit{
			{ID: "v1", Score: 0.9},
			{ID: "v2", Score: 0.5},
		},
	}
	r := New(nil, fake, nil, "")

	result, err := r.Search(context.Background(), "anything", 5, ModeVectorOnly, nil)
	require.NoError(t, err)
	require.Len(t, result.Documents, 2)
	require.Equal(t, "v1", result.Documents[0].ID)
	require.Equal(t, []string{SubsystemVector}, result.Documents[0].Provenance)
}

// TestHybridModeFusesByReciprocalRank verifies the spec.md §4.7 RRF
// formula directly: a document ranked 1st by both subsystems scores
// 2/(60+1), strictly higher than one ranked only 1st by one subsystem.
func TestHybridModeFusesByReciprocalRank(t *testing.T) {
	idx := symbolindex.New()
	now := time.Now()
	idx.AddDocument(types.Hash("both"), "both.go", now, []byte("shared shared shared"), nil, nil)
	idx.AddDocument(types.Hash("bmonly"), "bmonly.go", now, []byte("shared"), nil, nil)

	fake := &fakeSearcher{
		vector: []float32{1, 0, 0},
		hits: []vectorstore.Hit{
			{ID: "both", Score: 0.99},
			{ID: "veconly", Score: 0.5},
		},
	}
	r := New(idx, fake, nil, "")

	result, err := r.Search(context.Background(), "shared", 5, ModeHybrid, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Documents)
	require.Equal(t, "both", result.Documents[0].ID)
	require.ElementsMatch(t, []string{SubsystemBM25, SubsystemVector}, result.Documents[0].Provenance)

	expected := weightBM25/(rrfConstant+1) + weightVec/(rrfConstant+1)
	require.InDelta(t, expected, result.Documents[0].Score, 1e-9)
}

// TestFuseTieBreaksOnPathWhenFusedScoresEqual covers spec.md §4.7 step
// 3's tie-break rule: two documents whose combined RRF score and BM25
// raw score are equal fall back to lexicographic path order. "x" and
// "y" swap rank between the two subsystems so their summed score is
// identical, isolating the path comparison.
func TestFuseTieBreaksOnPathWhenFusedScoresEqual(t *testing.T) {
	bmHits := []symbolindex.Hit{
		{FileHash: "x", FilePath: "zzz.go", Score: 0},
		{FileHash: "y", FilePath: "aaa.go", Score: 0},
	}
	vecHits := []vectorstore.Hit{
		{ID: "y", Score: 0},
		{ID: "x", Score: 0},
	}
	docs := fuse(bmHits, vecHits, ModeHybrid)
	require.Len(t, docs, 2)
	require.InDelta(t, docs[0].Score, docs[1].Score, 1e-12)
	require.Equal(t, "aaa.go", docs[0].Path) // lexicographically first path wins the tie
}

func TestRerankedModeWithoutRerankerTruncatesToK(t *testing.T) {
	idx := symbolindex.New()
	now := time.Now()
	idx.AddDocument(types.Hash("h1"), "a.go", now, []byte("shared"), nil, nil)
	idx.AddDocument(types.Hash("h2"), "b.go", now, []byte("shared"), nil, nil)

	r := New(idx, nil, nil, "")
	// No reranker client configured: falls back to truncation, which is
	// the documented behaviour when reranking isn't enabled.
	result, err := r.Search(context.Background(), "shared", 2, ModeReranked, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(result.Documents), 2)
}

// TestNoResultsIsNotAnError covers spec.md §4.7's closing clause:
// no_results is a valid, non-error outcome.
func TestNoResultsIsNotAnError(t *testing.T) {
	idx := symbolindex.New()
	r := New(idx, nil, nil, "")

	result, err := r.Search(context.Background(), "nonexistent", 5, ModeBM25Only, nil)
	require.NoError(t, err)
	require.Empty(t, result.Documents)
	require.False(t, result.Degraded)
}

// TestDeadlineExceededDegradesVectorSubsystem covers the Cancellation
// clause of spec.md §4.7: a subsystem exceeding its share of the
// deadline is abandoned, and the result still returns (built from
// whatever arrived) with provenance reflecting the degradation.
func TestDeadlineExceededDegradesVectorSubsystem(t *testing.T) {
	idx := buildSymbolIndex(t)
	fake := &fakeSearcher{
		vector: []float32{1, 0, 0},
		delay:  200 * time.Millisecond,
	}
	r := New(idx, fake, nil, "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := r.Search(ctx, "widget", 5, ModeHybrid, nil)
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Contains(t, result.Truncated, SubsystemVector)
	// BM25 still answered: the document it found is still present.
	require.NotEmpty(t, result.Documents)
}

func TestResolvePathIsAppliedToFinalDocuments(t *testing.T) {
	idx := buildSymbolIndex(t)
	r := New(idx, nil, nil, "")

	resolve := func(id string) string { return "resolved/" + id }
	result, err := r.Search(context.Background(), "widget", 5, ModeBM25Only, resolve)
	require.NoError(t, err)
	require.Equal(t, "resolved/h1", result.Documents[0].Path)
}

func TestSearchVectorErrorDegradesGracefully(t *testing.T) {
	idx := buildSymbolIndex(t)
	fake := &fakeSearcher{vector: []float32{1, 0, 0}, err: errors.New("unavailable")}
	r := New(idx, fake, nil, "")

	result, err := r.Search(context.Background(), "widget", 5, ModeHybrid, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Documents)
}

// TestFusionIsMonotonicInRank covers spec.md Testable Property 6:
// improving a document's rank in either subsystem never decreases its
// fused rank, all else equal.
func TestFusionIsMonotonicInRank(t *testing.T) {
	baseline := fuse(
		[]symbolindex.Hit{{FileHash: "target", FilePath: "target.go", Score: 1}, {FileHash: "other", FilePath: "other.go", Score: 1}},
		[]vectorstore.Hit{{ID: "other", Score: 1}, {ID: "target", Score: 1}},
		ModeHybrid,
	)
	improved := fuse(
		[]symbolindex.Hit{{FileHash: "target", FilePath: "target.go", Score: 1}, {FileHash: "other", FilePath: "other.go", Score: 1}},
		[]vectorstore.Hit{{ID: "target", Score: 1}, {ID: "other", Score: 1}}, // "target" moved up to rank 1
		ModeHybrid,
	)

	rankOf := func(docs []Document, id string) int {
		for i, d := range docs {
			if d.ID == id {
				return i
			}
		}
		return -1
	}

	require.LessOrEqual(t, rankOf(improved, "target"), rankOf(baseline, "target"))
}

func TestFinalRankIsOneIndexed(t *testing.T) {
	idx := buildSymbolIndex(t)
	r := New(idx, nil, nil, "")

	result, err := r.Search(context.Background(), "widget gadget", 5, ModeBM25Only, nil)
	require.NoError(t, err)
	for i, d := range result.Documents {
		require.Equal(t, i+1, d.FinalRank)
	}
}
