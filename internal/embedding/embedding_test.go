package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestEmbedReturnsVectorsOfExpectedDimensionality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Embedding: []float32{0.1, 0.2, 0.3}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", 2)
	vectors, err := c.Embed(context.Background(), []string{"hello"}, ModelInfo{ID: "test-model", Dimensionality: 3}, true)
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	require.Len(t, vectors[0], 3)
}

// TestEmbedDimensionMismatchFailsFast covers spec.md §4.5/S3: a returned
// vector whose length disagrees with the expected dimensionality fails
// the whole call with DimensionMismatch, no partial/truncated vector.
func TestEmbedDimensionMismatchFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openai.EmbeddingResponse{
			Data: []openai.Embedding{{Embedding: []float32{0.1, 0.2}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", 2)
	_, err := c.Embed(context.Background(), []string{"hello"}, ModelInfo{ID: "test-model", Dimensionality: 3}, true)
	require.Error(t, err)
}

func TestEmbedGPUOnlyModelFailsFastWhenUnhealthy(t *testing.T) {
	c := New("http://127.0.0.1:0", "test-key", 2)
	c.WithHealthFunc(func(ctx context.Context) bool { return false })

	_, err := c.Embed(context.Background(), []string{"hello"}, ModelInfo{ID: "gpu-model", Dimensionality: 3, GPUOnly: true}, false)
	require.Error(t, err)
}

// TestRerankDegradesToIdentityWhenUnavailable covers spec.md Testable
// Property 9.
func TestRerankDegradesToIdentityWhenUnavailable(t *testing.T) {
	c := New("http://127.0.0.1:0", "test-key", 2)
	c.WithHealthFunc(func(ctx context.Context) bool { return false })

	docs := []string{"a", "b", "c"}
	ranked, err := c.Rerank(context.Background(), "query", docs, 3, "rerank-model")
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	for i, r := range ranked {
		require.Equal(t, i, r.Index)
	}
	for i := 1; i < len(ranked); i++ {
		require.Less(t, ranked[i].Score, ranked[i-1].Score)
	}
}

func TestRerankUsesRemoteScoresWhenHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(rerankResponse{Scores: []float64{0.1, 0.9, 0.5}})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", 2)
	c.WithHealthFunc(func(ctx context.Context) bool { return true })

	ranked, err := c.Rerank(context.Background(), "query", []string{"a", "b", "c"}, 3, "rerank-model")
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	require.Equal(t, 1, ranked[0].Index) // highest score 0.9 is document "b"
}

func TestRerankTopKTruncates(t *testing.T) {
	c := New("http://127.0.0.1:0", "test-key", 2)
	c.WithHealthFunc(func(ctx context.Context) bool { return false })

	ranked, err := c.Rerank(context.Background(), "query", []string{"a", "b", "c", "d"}, 2, "rerank-model")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
}
