package normalisers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/normalisers/docx"
	"github.com/jltournay/farmer-power-knowledge/internal/normalisers/html"
	"github.com/jltournay/farmer-power-knowledge/internal/normalisers/markdown"
	"github.com/jltournay/farmer-power-knowledge/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// DefaultMIMEType is assumed when neither the caller nor the file name
// says otherwise.
const DefaultMIMEType = "text/plain"

// extensionTypes covers extensions the system MIME table often lacks.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".xhtml":    "application/xhtml+xml",
	".docx":     docx.MIMEType,
	".csv":      "text/csv",
	".json":     "application/json",
}

// formatNames maps --format shorthands to MIME types.
var formatNames = map[string]string{
	"text":     "text/plain",
	"txt":      "text/plain",
	"markdown": "text/markdown",
	"md":       "text/markdown",
	"html":     "text/html",
	"docx":     docx.MIMEType,
}

// Registry dispatches documents to the highest priority normaliser for
// their MIME type.
type Registry struct {
	mu     sync.RWMutex
	byMIME map[string][]driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMIME: make(map[string][]driven.Normaliser)}
}

// NewDefaultRegistry creates a registry with the built-in normalisers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(docx.New())
	return r
}

// Register adds a normaliser to the registry.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mimeType := range n.SupportedMIMETypes() {
		list := append(r.byMIME[mimeType], n)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.byMIME[mimeType] = list
	}
}

// SupportedMIMETypes returns all MIME types that can be normalised, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byMIME))
	for t := range r.byMIME {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Normalise transforms a raw document using the best matching normaliser.
// An empty MIME type is detected from the URI. Unknown text/* types fall
// back to the text/plain normaliser.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	mimeType := baseMIMEType(raw.MIMEType)
	if mimeType == "" {
		mimeType = DetectMIMEType(raw.URI)
	}

	n := r.lookup(mimeType)
	if n == nil && strings.HasPrefix(mimeType, "text/") {
		n = r.lookup(DefaultMIMEType)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: unsupported document format %q", domain.ErrInvalidInput, mimeType)
	}
	return n.Normalise(ctx, raw)
}

func (r *Registry) lookup(mimeType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if list := r.byMIME[mimeType]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// DetectMIMEType guesses a MIME type from a file name.
func DetectMIMEType(uri string) string {
	ext := strings.ToLower(filepath.Ext(uri))
	if ext == "" {
		return DefaultMIMEType
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := baseMIMEType(mime.TypeByExtension(ext)); t != "" {
		return t
	}
	return DefaultMIMEType
}

// ResolveFormat maps a format shorthand ("markdown", "html", "docx",
// "text") or a MIME type to a MIME type. Empty input yields "".
func ResolveFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "", nil
	}
	if t, ok := formatNames[format]; ok {
		return t, nil
	}
	if strings.Contains(format, "/") {
		return baseMIMEType(format), nil
	}
	return "", fmt.Errorf("%w: unknown format %q", domain.ErrInvalidInput, format)
}

// baseMIMEType drops parameters such as "; charset=utf-8".
func baseMIMEType(t string) string {
	if t == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(t); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(t))
}
