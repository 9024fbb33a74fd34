// Package plaintext provides the fallback Normaliser for text formats
// without markup worth interpreting.
package plaintext

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Format is reported in NormaliseResult.Format.
const Format = "text"

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/yaml",
		"text/toml",
		"application/json",
		"application/xml",
	}
}

// Priority is low so format-specific normalisers win.
func (n *Normaliser) Priority() int {
	return 5
}

// Normalise returns the text with a UTF-8 BOM removed and line endings
// normalised. Invalid UTF-8 is rejected.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if !utf8.Valid(raw.Content) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", domain.ErrInvalidInput, displayName(raw.URI))
	}

	content := strings.TrimPrefix(string(raw.Content), "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	return &driven.NormaliseResult{
		Meta:    domain.DocumentMeta{Title: extractTitle(raw.URI)},
		Content: content,
		Format:  Format,
	}, nil
}

var titleSeparators = strings.NewReplacer("_", " ", "-", " ")

// extractTitle turns "tea_pruning-guide.txt" into "tea pruning guide".
// Stdin ("-") and unnamed input have no title.
func extractTitle(uri string) string {
	if uri == "" || uri == "-" {
		return ""
	}
	name := filepath.Base(uri)
	return titleSeparators.Replace(strings.TrimSuffix(name, filepath.Ext(name)))
}

func displayName(uri string) string {
	if uri == "" || uri == "-" {
		return "input"
	}
	return uri
}
