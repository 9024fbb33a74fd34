// Package qdrant provides a vector index backed by Qdrant's REST API.
//
// All namespaces share one collection; the namespace is stored in the point
// payload and every query filters on it. Point IDs are UUIDv5 of
// "namespace/vector-id", so upserting the same record twice overwrites it.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/httperr"
	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultCollection = "farmer-power-knowledge"
	DefaultTimeout    = 15 * time.Second
	facetLimit        = 10000
)

// Payload keys written next to the chunk metadata.
const (
	namespaceKey = "namespace"
	vectorIDKey  = "vector_id"
)

const serviceName = "qdrant"

// pointNamespace seeds deterministic point IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:farmer-power:knowledge:vector"))

// Config holds configuration for the Qdrant index.
type Config struct {
	// URL is the Qdrant REST endpoint (e.g., "http://localhost:6333").
	URL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Collection holds all namespaces (default: farmer-power-knowledge).
	Collection string

	// Dimension is the vector size used when creating the collection.
	Dimension int

	// Timeout for HTTP requests (default: 15s).
	Timeout time.Duration
}

// Index is a Qdrant-backed vector index.
type Index struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	// ensureMu guards collection creation. Unlike sync.Once a failed
	// attempt is retried on the next call.
	ensureMu sync.Mutex
	ensured  bool
}

// NewIndex creates a Qdrant-backed vector index.
func NewIndex(cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant: URL is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Index{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// PointID returns the Qdrant point ID for a vector ID in a namespace.
func PointID(namespace, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+"/"+id)).String()
}

// ensureCollection creates the collection and the namespace payload index
// if the collection doesn't exist.
func (x *Index) ensureCollection(ctx context.Context) error {
	x.ensureMu.Lock()
	defer x.ensureMu.Unlock()
	if x.ensured {
		return nil
	}

	path := "/collections/" + x.collection
	status, err := x.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return fmt.Errorf("check collection: %w", err)
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     x.dimension,
				"distance": "Cosine",
			},
		}
		if _, err := x.do(ctx, http.MethodPut, path, body, nil); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		index := map[string]any{
			"field_name":   namespaceKey,
			"field_schema": "keyword",
		}
		if _, err := x.do(ctx, http.MethodPut, path+"/index?wait=true", index, nil); err != nil {
			return fmt.Errorf("create namespace index: %w", err)
		}
	}
	x.ensured = true
	return nil
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert inserts or replaces records by ID within a namespace.
func (x *Index) Upsert(ctx context.Context, namespace string, records []domain.VectorRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	points := make([]point, len(records))
	for i, r := range records {
		if len(r.Values) != x.dimension {
			return 0, fmt.Errorf("%w: vector %s has %d dimensions, collection has %d",
				domain.ErrInvalidInput, r.ID, len(r.Values), x.dimension)
		}
		payload := r.Metadata.ToMap()
		payload[namespaceKey] = namespace
		payload[vectorIDKey] = r.ID
		points[i] = point{ID: PointID(namespace, r.ID), Vector: r.Values, Payload: payload}
	}

	if err := x.ensureCollection(ctx); err != nil {
		return 0, err
	}
	path := "/collections/" + x.collection + "/points?wait=true"
	if _, err := x.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return 0, fmt.Errorf("upsert points: %w", err)
	}
	return len(records), nil
}

// Query returns up to TopK matches ordered by descending similarity.
func (x *Index) Query(ctx context.Context, query domain.VectorQuery) ([]domain.VectorMatch, error) {
	if len(query.Vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			domain.ErrInvalidInput, len(query.Vector), x.dimension)
	}
	if err := x.ensureCollection(ctx); err != nil {
		return nil, err
	}

	limit := query.TopK
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"vector":       query.Vector,
		"limit":        limit,
		"with_payload": true,
		"filter":       buildFilter(query.Namespace, query.Filter),
	}

	var result struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := "/collections/" + x.collection + "/points/search"
	if _, err := x.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	matches := make([]domain.VectorMatch, 0, len(result.Result))
	for _, r := range result.Result {
		id, _ := r.Payload[vectorIDKey].(string)
		if id == "" {
			id = fmt.Sprint(r.ID)
		}
		matches = append(matches, domain.VectorMatch{
			ID:       id,
			Score:    r.Score,
			Metadata: domain.VectorMetadataFromMap(r.Payload),
		})
	}
	return matches, nil
}

// Stats reports vector counts. A single namespace is counted exactly;
// all namespaces are listed with a facet on the namespace payload key.
func (x *Index) Stats(ctx context.Context, namespace string) (*domain.IndexStats, error) {
	if err := x.ensureCollection(ctx); err != nil {
		return nil, err
	}
	stats := &domain.IndexStats{
		NamespaceCounts: make(map[string]int),
		Dimension:       x.dimension,
	}

	if namespace != "" {
		var result struct {
			Result struct {
				Count int `json:"count"`
			} `json:"result"`
		}
		body := map[string]any{
			"filter": buildFilter(namespace, nil),
			"exact":  true,
		}
		if _, err := x.do(ctx, http.MethodPost, "/collections/"+x.collection+"/points/count", body, &result); err != nil {
			return nil, fmt.Errorf("count points: %w", err)
		}
		if result.Result.Count > 0 {
			stats.NamespaceCounts[namespace] = result.Result.Count
		}
		stats.TotalVectorCount = result.Result.Count
		return stats, nil
	}

	var result struct {
		Result struct {
			Hits []struct {
				Value any `json:"value"`
				Count int `json:"count"`
			} `json:"hits"`
		} `json:"result"`
	}
	body := map[string]any{
		"key":   namespaceKey,
		"limit": facetLimit,
		"exact": true,
	}
	if _, err := x.do(ctx, http.MethodPost, "/collections/"+x.collection+"/facet", body, &result); err != nil {
		return nil, fmt.Errorf("facet namespaces: %w", err)
	}
	for _, hit := range result.Result.Hits {
		stats.NamespaceCounts[fmt.Sprint(hit.Value)] = hit.Count
		stats.TotalVectorCount += hit.Count
	}
	return stats, nil
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

// buildFilter turns a namespace and equality filter into a Qdrant filter.
func buildFilter(namespace string, filter domain.MetadataFilter) map[string]any {
	must := []any{matchCondition(namespaceKey, namespace)}
	for key, value := range filter {
		if key == "chunk_index" {
			if n, err := strconv.Atoi(value); err == nil {
				must = append(must, matchCondition(key, n))
				continue
			}
		}
		must = append(must, matchCondition(key, value))
	}
	return map[string]any{"must": must}
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

// do sends a JSON request and decodes the response into out when non-nil.
// It returns the HTTP status (0 on transport failure) and a classified error.
func (x *Index) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.url+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return 0, httperr.FromTransport(ctx, serviceName, err, domain.ErrVectorIndexUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, httperr.FromTransport(ctx, serviceName, err, domain.ErrVectorIndexUnavailable)
	}
	if err := httperr.FromStatus(serviceName, resp.StatusCode, respBody, domain.ErrVectorIndexUnavailable); err != nil {
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: %w: decode response: %v", serviceName, domain.ErrVectorIndexUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}
