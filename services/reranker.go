package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docuquery/docuquery/model"
)

// CrossEncoder scores (query, document) pairs for relevance. The wire
// protocol is a simple JSON POST; inference itself runs out of process.
type CrossEncoder interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// HTTPCrossEncoder calls a remote cross-encoder scoring service
type HTTPCrossEncoder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPCrossEncoder creates a scorer client for the given endpoint
func NewHTTPCrossEncoder(baseURL, modelName string) *HTTPCrossEncoder {
	return &HTTPCrossEncoder{
		baseURL: baseURL,
		model:   modelName,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type rerankReq struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResp struct {
	Scores []float64 `json:"scores"`
}

// Score returns one relevance logit per document, in input order
func (c *HTTPCrossEncoder) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: rerank endpoint not configured", model.ErrValidation)
	}

	body, _ := json.Marshal(rerankReq{Model: c.model, Query: query, Documents: docs})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: status %d", resp.StatusCode)
	}

	var result rerankResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("rerank decode: %w", err)
	}
	if len(result.Scores) != len(docs) {
		return nil, fmt.Errorf("rerank: got %d scores for %d documents", len(result.Scores), len(docs))
	}
	return result.Scores, nil
}
