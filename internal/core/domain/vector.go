package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MaxMetadataBytes bounds the JSON-encoded metadata of one vector record.
const MaxMetadataBytes = 40 * 1024

// VectorRecord is the index representation of one chunk.
// ID is always derived with VectorID, never user supplied.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata VectorMetadata
}

// VectorMetadata is stored alongside each vector. Chunk text is not stored.
type VectorMetadata struct {
	DocumentID string     `json:"document_id"`
	ChunkID    string     `json:"chunk_id"`
	ChunkIndex int        `json:"chunk_index"`
	Domain     string     `json:"domain,omitempty"`
	Title      string     `json:"title,omitempty"`
	Region     string     `json:"region,omitempty"`
	Season     string     `json:"season,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Size returns the JSON-encoded size of the metadata in bytes.
func (m VectorMetadata) Size() int {
	data, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return len(data)
}

// ToMap flattens metadata into provider payload form.
func (m VectorMetadata) ToMap() map[string]any {
	out := map[string]any{
		"document_id": m.DocumentID,
		"chunk_id":    m.ChunkID,
		"chunk_index": m.ChunkIndex,
	}
	if m.Domain != "" {
		out["domain"] = m.Domain
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.Region != "" {
		out["region"] = m.Region
	}
	if m.Season != "" {
		out["season"] = m.Season
	}
	if len(m.Tags) > 0 {
		out["tags"] = append([]string(nil), m.Tags...)
	}
	if m.UpdatedAt != nil {
		out["updated_at"] = m.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// VectorMetadataFromMap rebuilds metadata from a provider payload.
// Unknown keys are ignored; numbers may arrive as float64 from JSON.
func VectorMetadataFromMap(p map[string]any) VectorMetadata {
	var m VectorMetadata
	m.DocumentID, _ = p["document_id"].(string)
	m.ChunkID, _ = p["chunk_id"].(string)
	m.Domain, _ = p["domain"].(string)
	m.Title, _ = p["title"].(string)
	m.Region, _ = p["region"].(string)
	m.Season, _ = p["season"].(string)

	switch v := p["chunk_index"].(type) {
	case int:
		m.ChunkIndex = v
	case int64:
		m.ChunkIndex = int(v)
	case float64:
		m.ChunkIndex = int(v)
	case string:
		m.ChunkIndex, _ = strconv.Atoi(v)
	}

	switch v := p["tags"].(type) {
	case []string:
		m.Tags = append([]string(nil), v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				m.Tags = append(m.Tags, s)
			}
		}
	}

	if s, ok := p["updated_at"].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			m.UpdatedAt = &t
		}
	}
	return m
}

// MetadataFilter selects vectors whose metadata equals every entry.
// For the tags field an entry matches when the tag is present.
type MetadataFilter map[string]string

// Matches reports whether the metadata satisfies the filter.
func (f MetadataFilter) Matches(m VectorMetadata) bool {
	for key, want := range f {
		switch key {
		case "document_id":
			if m.DocumentID != want {
				return false
			}
		case "chunk_id":
			if m.ChunkID != want {
				return false
			}
		case "chunk_index":
			if strconv.Itoa(m.ChunkIndex) != want {
				return false
			}
		case "domain":
			if m.Domain != want {
				return false
			}
		case "title":
			if m.Title != want {
				return false
			}
		case "region":
			if m.Region != want {
				return false
			}
		case "season":
			if m.Season != want {
				return false
			}
		case "tags":
			if !containsFold(m.Tags, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// VectorQuery is a similarity search request.
type VectorQuery struct {
	Vector    []float32
	TopK      int
	Namespace string
	Filter    MetadataFilter
}

// VectorMatch is one similarity search hit.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata VectorMetadata
}

// IndexStats describes the vector index.
type IndexStats struct {
	TotalVectorCount int
	NamespaceCounts  map[string]int
	Dimension        int
}
