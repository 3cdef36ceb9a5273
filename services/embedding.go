package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/docuquery/docuquery/model"
)

// EmbeddingProvider turns chunk texts into vectors. Implementations are
// remote HTTP services except for the deterministic mock used in tests and
// offline development.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EmbeddingConfig selects and configures a provider
type EmbeddingConfig struct {
	Provider string // openai | local | mock
	Model    string
	BaseURL  string
	APIKey   string
}

// NewEmbeddingProvider builds the configured provider
func NewEmbeddingProvider(cfg EmbeddingConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIEmbedder(cfg), nil
	case "local":
		return newLocalEmbedder(cfg), nil
	case "mock":
		return &mockEmbedder{dim: 384}, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", model.ErrValidation, cfg.Provider)
	}
}

// Normalize scales a vector to unit length in place
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// openaiEmbedder calls an OpenAI-compatible /v1/embeddings endpoint with
// the whole batch in one request.
type openaiEmbedder struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	dim     int
}

func newOpenAIEmbedder(cfg EmbeddingConfig) *openaiEmbedder {
	return &openaiEmbedder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		dim:     1536,
	}
}

func (e *openaiEmbedder) Name() string   { return "openai" }
func (e *openaiEmbedder) Dimension() int { return e.dim }

type openaiEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResp struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *openaiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, _ := json.Marshal(openaiEmbedReq{Model: e.model, Input: texts})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", model.ErrEmbedding, resp.StatusCode)
	}

	var result openaiEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", model.ErrEmbedding, err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", model.ErrEmbedding, len(result.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", model.ErrEmbedding, d.Index)
		}
		out[d.Index] = vec
	}
	if len(out) > 0 && out[0] != nil {
		e.dim = len(out[0])
	}
	return out, nil
}

// localEmbedder calls an Ollama-style /api/embeddings endpoint, one text
// per request.
type localEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
	dim     int
}

func newLocalEmbedder(cfg EmbeddingConfig) *localEmbedder {
	return &localEmbedder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: 60 * time.Second},
		dim:     768,
	}
}

func (e *localEmbedder) Name() string   { return "local" }
func (e *localEmbedder) Dimension() int { return e.dim }

type localEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (e *localEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		body, _ := json.Marshal(localEmbedReq{Model: e.model, Prompt: text})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: [%d]: %v", model.ErrEmbedding, i, err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: [%d]: status %d", model.ErrEmbedding, i, resp.StatusCode)
		}

		var result localEmbedResp
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: [%d]: decode: %v", model.ErrEmbedding, i, err)
		}

		vec := make([]float32, len(result.Embedding))
		for j, v := range result.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	if len(out) > 0 && len(out[0]) > 0 {
		e.dim = len(out[0])
	}
	return out, nil
}

// mockEmbedder produces deterministic seeded unit vectors. The same text
// always yields the same vector, which keeps retrieval rankings stable in
// tests and local development.
type mockEmbedder struct {
	dim int
}

func (e *mockEmbedder) Name() string   { return "mock" }
func (e *mockEmbedder) Dimension() int { return e.dim }

func (e *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		h.Write([]byte(text))
		rng := rand.New(rand.NewSource(int64(h.Sum64())))

		vec := make([]float32, e.dim)
		for j := range vec {
			vec[j] = float32(rng.NormFloat64())
		}
		Normalize(vec)
		out[i] = vec
	}
	return out, nil
}
