// Package ollama provides an embedding provider using Ollama.
package ollama

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

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingProvider = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL      = "http://localhost:11434"
	DefaultModel        = "nomic-embed-text"
	DefaultTimeout      = 30 * time.Second
	DefaultDimensions   = 768 // nomic-embed-text default
	DefaultMaxBatchSize = 64
)

const serviceName = "ollama"

// Config holds configuration for the Ollama embedding service.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// Dimensions is the embedding vector size (model-dependent).
	Dimensions int

	// InputPrefixes prepends "passage: " or "query: " to every text.
	InputPrefixes bool

	// MaxBatchSize caps texts per request (default: 64).
	MaxBatchSize int
}

// EmbeddingService generates embeddings using Ollama.
type EmbeddingService struct {
	client        *http.Client
	baseURL       string
	model         string
	dimensions    int
	inputPrefixes bool
	maxBatchSize  int
}

// embedRequest is the /api/embed request format.
type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

// embedResponse is the /api/embed response format.
type embedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float64 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	Error           string      `json:"error,omitempty"`
}

// NewEmbeddingService creates a new Ollama embedding service.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}

	return &EmbeddingService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         cfg.Model,
		dimensions:    cfg.Dimensions,
		inputPrefixes: cfg.InputPrefixes,
		maxBatchSize:  cfg.MaxBatchSize,
	}
}

// Embed generates embeddings for texts with one /api/embed call.
// TruncateEnd lets the server cut inputs at the model context length;
// TruncateNone makes over-length inputs fail server side.
func (s *EmbeddingService) Embed(
	ctx context.Context,
	texts []string,
	inputType domain.InputType,
	truncate domain.TruncateMode,
) (*driven.EmbeddingResponse, error) {
	if len(texts) == 0 {
		return &driven.EmbeddingResponse{Model: s.model}, nil
	}

	input := texts
	if s.inputPrefixes {
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = inputType.Prefix() + t
		}
	}

	jsonBody, err := json.Marshal(embedRequest{
		Model:    s.model,
		Input:    input,
		Truncate: truncate != domain.TruncateNone,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, httperr.FromTransport(ctx, serviceName, err, domain.ErrEmbeddingUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httperr.FromTransport(ctx, serviceName, err, domain.ErrEmbeddingUnavailable)
	}
	if err := httperr.FromStatus(serviceName, resp.StatusCode, body, domain.ErrEmbeddingUnavailable); err != nil {
		return nil, err
	}

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("%s: %w: decode response: %v", serviceName, domain.ErrEmbeddingUnavailable, err)
	}
	if embedResp.Error != "" {
		return nil, fmt.Errorf("%s: %w: %s", serviceName, domain.ErrEmbeddingUnavailable, embedResp.Error)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%s: %w: got %d embeddings for %d texts",
			serviceName, domain.ErrEmbeddingUnavailable, len(embedResp.Embeddings), len(texts))
	}

	// Convert float64 to float32
	embeddings := make([][]float32, len(embedResp.Embeddings))
	for i, values := range embedResp.Embeddings {
		embedding := make([]float32, len(values))
		for j, v := range values {
			embedding[j] = float32(v)
		}
		embeddings[i] = embedding
	}

	model := embedResp.Model
	if model == "" {
		model = s.model
	}
	return &driven.EmbeddingResponse{
		Embeddings: embeddings,
		Model:      model,
		TokensUsed: embedResp.PromptEvalCount,
	}, nil
}

// MaxBatchSize returns the most texts sent in one request.
func (s *EmbeddingService) MaxBatchSize() int {
	return s.maxBatchSize
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
// This is a lightweight check that validates connectivity without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return httperr.FromTransport(ctx, serviceName, err, domain.ErrEmbeddingUnavailable)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return httperr.FromStatus(serviceName, resp.StatusCode, body, domain.ErrEmbeddingUnavailable)
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
