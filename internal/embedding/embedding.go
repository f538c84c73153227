// Package embedding implements the EmbeddingClient of spec.md §4.5: a
// remote HTTP client that turns text into vectors and, optionally,
// reranks a document list — never an in-process model.
//
// Grounded on aqua777-ai-nexus/llm/openai/client.go (one client wrapping
// a configurable-BaseURL openai.Client, request/response shape per
// call) and fyrsmithlabs-contextd/internal/vectorstore/health.go's
// HealthChecker/HealthMonitor split (adapted here from gRPC
// connectivity-state polling to a plain HTTP health endpoint, since the
// embedding service is spec'd as HTTP, not gRPC).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/codeforge/retrieval-core/internal/errorkinds"
)

// healthCheckTimeout is the fixed poll timeout of spec.md §4.5.
const healthCheckTimeout = 2 * time.Second

// defaultConcurrency is the default per-process concurrent-request bound
// of spec.md §4.6's shared-resource policy.
const defaultConcurrency = 8

// ModelInfo pairs a model id with its expected (and GPU-only-ness) shape,
// so embed() can enforce DimensionMismatch without a round trip per call.
type ModelInfo struct {
	ID             string
	Dimensionality int
	GPUOnly        bool
}

// Client is the EmbeddingClient. One Client instance serves every model;
// the contract is stateless per spec.md §9's Open-Question resolution
// (no mode-switch, no per-client default model).
type Client struct {
	http     *openai.Client
	baseURL  string
	sem      *semaphore.Weighted
	healthFn func(ctx context.Context) bool
}

// New builds a Client whose requests hit baseURL (an OpenAI-compatible
// embeddings/rerank endpoint). concurrency <= 0 uses defaultConcurrency.
func New(baseURL, apiKey string, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	c := &Client{
		http:    openai.NewClientWithConfig(cfg),
		baseURL: baseURL,
		sem:     semaphore.NewWeighted(int64(concurrency)),
	}
	c.healthFn = c.pollHealth
	return c
}

// Embed turns texts into vectors for model. isQuery switches the
// service-side task prompt (document vs. query embedding), per spec.md
// §4.5's `embed(texts, model, is_query)` contract. Every returned vector
// must have exactly model.Dimensionality entries; any other length fails
// the whole call with DimensionMismatch, never a silent per-vector drop.
func (c *Client) Embed(ctx context.Context, texts []string, model ModelInfo, isQuery bool) ([][]float32, error) {
	if model.GPUOnly && !c.healthFn(ctx) {
		return nil, errorkinds.NewServiceUnavailable(c.baseURL, fmt.Errorf("gpu-only model %q requested while service unhealthy", model.ID))
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, errorkinds.NewCancelled("embed", err)
	}
	defer c.sem.Release(1)

	req := openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(model.ID),
	}
	if isQuery {
		req.User = "query"
	}
	resp, err := c.http.CreateEmbeddings(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errorkinds.NewCancelled("embed", err)
		}
		return nil, errorkinds.NewServiceUnavailable(c.baseURL, err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != model.Dimensionality {
			return nil, errorkinds.NewDimensionMismatch(model.ID, model.Dimensionality, len(d.Embedding))
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// RankedDocument is one document with its rerank score, in final order.
type RankedDocument struct {
	Index int // position in the original documents slice
	Score float64
}

// Rerank scores documents against query and returns the top_k in
// descending-score order, per spec.md §4.5's
// `rerank(query, documents, top_k, model)`. When the service is
// unavailable, it degrades deterministically to identity order with
// strictly decreasing placeholder scores (spec.md §8 Testable Property
// 9) instead of failing the whole retrieval.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topK int, model string) ([]RankedDocument, error) {
	if topK <= 0 || topK > len(documents) {
		topK = len(documents)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return identityRerank(documents, topK), nil
	}
	defer c.sem.Release(1)

	if !c.healthFn(ctx) {
		return identityRerank(documents, topK), nil
	}

	scores, err := c.rerankRemote(ctx, query, documents, model)
	if err != nil {
		return identityRerank(documents, topK), nil
	}

	ranked := make([]RankedDocument, len(documents))
	for i, s := range scores {
		ranked[i] = RankedDocument{Index: i, Score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// rerankRemote is the network call for Rerank, isolated so Rerank's
// degrade-to-identity path never has to reason about partial HTTP state.
// go-openai has no dedicated rerank endpoint, so this is a plain JSON
// POST against the same service base URL; production deployments point
// baseURL at a rerank-compatible gateway that speaks this shape.
func (c *Client) rerankRemote(ctx context.Context, query string, documents []string, model string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errorkinds.NewServiceUnavailable(c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errorkinds.NewServiceUnavailable(c.baseURL, fmt.Errorf("rerank endpoint returned %d", resp.StatusCode))
	}
	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Scores) != len(documents) {
		return nil, fmt.Errorf("rerank returned %d scores for %d documents", len(parsed.Scores), len(documents))
	}
	return parsed.Scores, nil
}

// identityRerank is the deterministic degradation path: documents in
// input order, each strictly lower than the last so ties never occur.
func identityRerank(documents []string, topK int) []RankedDocument {
	if topK > len(documents) {
		topK = len(documents)
	}
	out := make([]RankedDocument, topK)
	for i := 0; i < topK; i++ {
		out[i] = RankedDocument{Index: i, Score: float64(topK-i) / float64(topK+1)}
	}
	return out
}

// pollHealth checks the service health endpoint with a fixed 2s timeout,
// per spec.md §4.5.
func (c *Client) pollHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WithHealthFunc overrides the health probe, for tests that fake an
// unreachable or reachable service without starting a real listener.
func (c *Client) WithHealthFunc(fn func(ctx context.Context) bool) {
	c.healthFn = fn
}
