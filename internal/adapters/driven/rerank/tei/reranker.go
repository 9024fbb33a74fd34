// Package tei provides a reranker backed by a Text Embeddings Inference
// (TEI) server's /rerank endpoint.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/httperr"
	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// DefaultTimeout bounds one /rerank call. The ranking engine applies its
// own, usually shorter, timeout on top.
const DefaultTimeout = 30 * time.Second

const serviceName = "tei"

// Config holds configuration for the TEI reranker.
type Config struct {
	// BaseURL is the TEI server URL (e.g., "http://localhost:8081").
	BaseURL string

	// Timeout for HTTP requests (default: 30s).
	Timeout time.Duration
}

// Reranker scores passages with a TEI cross-encoder.
// A TEI server hosts a single model, so the model argument is only logged
// by callers and not sent.
type Reranker struct {
	baseURL string
	client  *http.Client
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResponse struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewReranker creates a TEI reranker client.
func NewReranker(cfg Config) (*Reranker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tei: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Reranker{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Rerank returns one normalised score per document, in server order.
func (r *Reranker) Rerank(ctx context.Context, _ string, query string, documents []string) ([]domain.RerankResult, error) {
	if len(documents) == 0 {
		return []domain.RerankResult{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Query:    query,
		Texts:    documents,
		Truncate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, httperr.FromTransport(ctx, serviceName, err, domain.ErrRerankerUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httperr.FromTransport(ctx, serviceName, err, domain.ErrRerankerUnavailable)
	}
	if err := httperr.FromStatus(serviceName, resp.StatusCode, respBody, domain.ErrRerankerUnavailable); err != nil {
		return nil, err
	}

	var scored []rerankResponse
	if err := json.Unmarshal(respBody, &scored); err != nil {
		return nil, fmt.Errorf("%s: %w: decode response: %v", serviceName, domain.ErrRerankerUnavailable, err)
	}

	results := make([]domain.RerankResult, len(scored))
	for i, s := range scored {
		results[i] = domain.RerankResult{Index: s.Index, Score: s.Score}
	}
	return results, nil
}

// Close releases resources.
func (r *Reranker) Close() error {
	return nil
}
