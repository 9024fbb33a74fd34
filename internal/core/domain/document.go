package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Document is a knowledge-base document submitted for vectorization.
// Content is the complete text before chunking.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Version is monotonic per document, starting at 1.
	Version int

	// Namespace is the vector index partition the document is written to.
	// Empty means the pipeline default.
	Namespace string

	// Title is the human-readable title.
	Title string

	// Domain is the knowledge category (e.g. "plant_disease", "weather").
	Domain string

	// Region and Season optionally scope the document.
	Region string
	Season string

	// Tags are free-form labels copied into vector metadata.
	Tags []string

	// Content is the full text content.
	Content string

	// UpdatedAt is when the document content last changed.
	// Used for recency weighting at query time.
	UpdatedAt time.Time
}

// Validate checks the document can be vectorized.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidInput)
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidInput)
	}
	if d.Version < 1 {
		return fmt.Errorf("%w: document version must be >= 1, got %d", ErrInvalidInput, d.Version)
	}
	return nil
}

// ContentHash returns the hex SHA-256 of the document content.
func (d *Document) ContentHash() string {
	sum := sha256.Sum256([]byte(d.Content))
	return hex.EncodeToString(sum[:])
}

// Meta extracts the metadata that travels with every chunk of the document.
func (d *Document) Meta() DocumentMeta {
	var updatedAt *time.Time
	if !d.UpdatedAt.IsZero() {
		t := d.UpdatedAt.UTC()
		updatedAt = &t
	}
	return DocumentMeta{
		Title:     d.Title,
		Domain:    d.Domain,
		Region:    d.Region,
		Season:    d.Season,
		Tags:      append([]string(nil), d.Tags...),
		UpdatedAt: updatedAt,
	}
}

// DocumentMeta is the document-level metadata persisted with a job so that
// a resumed job can rebuild vector metadata without the original document.
type DocumentMeta struct {
	Title     string     `json:"title,omitempty"`
	Domain    string     `json:"domain,omitempty"`
	Region    string     `json:"region,omitempty"`
	Season    string     `json:"season,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
