package driven

import (
	"context"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

// Normaliser extracts chunkable text from one family of file formats.
// Output keeps section headings as Markdown ATX headings so the chunker
// can split on them.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers return 50-89, fallbacks 1-9.
	Priority() int

	// Normalise extracts the text and title of a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
type NormaliseResult struct {
	// Meta holds what the document says about itself. Title falls back
	// to the file name; the other fields are set only by formats that
	// carry metadata, such as Markdown front matter.
	Meta domain.DocumentMeta

	// Content is the extracted text.
	Content string

	// Format names the normaliser that produced the result.
	Format string
}

// NormaliserRegistry dispatches a raw document to the highest priority
// normaliser for its MIME type. When the MIME type is empty it is
// detected from the URI.
type NormaliserRegistry interface {
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)

	// Register adds a normaliser for each of its MIME types.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns the registered MIME types, sorted.
	SupportedMIMETypes() []string
}
