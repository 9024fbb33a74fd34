package domain

import "fmt"

// InputType selects the embedding mode. Passage and query embeddings of the
// same text differ and must never be mixed: the index is written with
// InputPassage and searched with InputQuery.
type InputType string

const (
	// InputPassage is used for index-time document text.
	InputPassage InputType = "passage"

	// InputQuery is used for search-time query text.
	InputQuery InputType = "query"
)

// IsValid returns true if the input type is recognised.
func (t InputType) IsValid() bool {
	return t == InputPassage || t == InputQuery
}

// Prefix returns the E5-style instruction prefix for the input type.
func (t InputType) Prefix() string {
	return string(t) + ": "
}

// TruncateMode controls over-length input handling.
type TruncateMode string

const (
	// TruncateEnd drops text from the end deterministically.
	TruncateEnd TruncateMode = "END"

	// TruncateNone fails over-length texts with TextTooLongError.
	TruncateNone TruncateMode = "NONE"
)

// IsValid returns true if the truncate mode is recognised.
func (m TruncateMode) IsValid() bool {
	return m == TruncateEnd || m == TruncateNone
}

// EmbedRequest is a request to the embedding client.
type EmbedRequest struct {
	Texts     []string
	InputType InputType
	Truncate  TruncateMode
}

// Validate checks the request before any provider call.
func (r *EmbedRequest) Validate() error {
	if len(r.Texts) == 0 {
		return fmt.Errorf("%w: no texts to embed", ErrInvalidInput)
	}
	if !r.InputType.IsValid() {
		return fmt.Errorf("%w: unknown input type %q", ErrInvalidInput, r.InputType)
	}
	if !r.Truncate.IsValid() {
		return fmt.Errorf("%w: unknown truncate mode %q", ErrInvalidInput, r.Truncate)
	}
	return nil
}

// EmbedResult holds embeddings in input order plus usage.
type EmbedResult struct {
	Embeddings  [][]float32
	Model       string
	Dimensions  int
	TokensTotal int
}
