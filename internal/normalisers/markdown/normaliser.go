// Package markdown provides a Normaliser for Markdown documents. Headings
// are kept so the chunker can split on them; YAML ("---") or TOML ("+++")
// front matter supplies document metadata.
package markdown

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Format is reported in NormaliseResult.Format.
const Format = "markdown"

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise splits off front matter and simplifies inline markup.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := strings.TrimPrefix(string(raw.Content), "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	fm, body, err := splitFrontMatter(content)
	if err != nil {
		return nil, err
	}
	meta, err := fm.meta()
	if err != nil {
		return nil, err
	}

	body = stripMarkdown(body)
	if meta.Title == "" {
		meta.Title = extractMarkdownTitle(body, raw.URI)
	}

	return &driven.NormaliseResult{
		Meta:    meta,
		Content: body,
		Format:  Format,
	}, nil
}

// frontMatter is the metadata block at the top of a document.
type frontMatter struct {
	Title     string   `yaml:"title" toml:"title"`
	Domain    string   `yaml:"domain" toml:"domain"`
	Region    string   `yaml:"region" toml:"region"`
	Season    string   `yaml:"season" toml:"season"`
	Tags      []string `yaml:"tags" toml:"tags"`
	UpdatedAt any      `yaml:"updated_at" toml:"updated_at"`
}

// splitFrontMatter returns the parsed front matter and the remaining body.
// A document without front matter yields a zero frontMatter.
func splitFrontMatter(content string) (frontMatter, string, error) {
	var fm frontMatter

	var fence string
	switch {
	case strings.HasPrefix(content, "---\n"):
		fence = "---"
	case strings.HasPrefix(content, "+++\n"):
		fence = "+++"
	default:
		return fm, content, nil
	}

	rest := content[len(fence)+1:]
	end := -1
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		trimmed := strings.TrimRight(line, " \t\n")
		if trimmed == fence || (fence == "---" && trimmed == "...") {
			end = offset
			offset += len(line)
			break
		}
		offset += len(line)
	}
	if end < 0 {
		return fm, content, nil
	}

	block := rest[:end]
	var err error
	if fence == "---" {
		err = yaml.Unmarshal([]byte(block), &fm)
	} else {
		err = toml.Unmarshal([]byte(block), &fm)
	}
	if err != nil {
		return fm, "", fmt.Errorf("%w: front matter: %v", domain.ErrInvalidInput, err)
	}
	return fm, rest[offset:], nil
}

// meta converts front matter into document metadata.
func (fm frontMatter) meta() (domain.DocumentMeta, error) {
	meta := domain.DocumentMeta{
		Title:  strings.TrimSpace(fm.Title),
		Domain: strings.TrimSpace(fm.Domain),
		Region: strings.TrimSpace(fm.Region),
		Season: strings.TrimSpace(fm.Season),
		Tags:   fm.Tags,
	}
	updated, err := parseUpdatedAt(fm.UpdatedAt)
	if err != nil {
		return meta, err
	}
	meta.UpdatedAt = updated
	return meta, nil
}

// parseUpdatedAt accepts native YAML and TOML dates as well as RFC 3339
// or YYYY-MM-DD strings.
func parseUpdatedAt(v any) (*time.Time, error) {
	var t time.Time
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t = val
	case toml.LocalDate:
		t = val.AsTime(time.UTC)
	case toml.LocalDateTime:
		t = val.AsTime(time.UTC)
	case string:
		var err error
		if t, err = time.Parse(time.RFC3339, val); err != nil {
			if t, err = time.Parse(time.DateOnly, val); err != nil {
				return nil, fmt.Errorf("%w: front matter updated_at %q is not a date", domain.ErrInvalidInput, val)
			}
		}
	default:
		return nil, fmt.Errorf("%w: front matter updated_at has type %T", domain.ErrInvalidInput, v)
	}
	return &t, nil
}

// extractMarkdownTitle uses the first H1 heading or falls back to filename.
func extractMarkdownTitle(content, uri string) string {
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimRight(strings.TrimPrefix(line, "#"), "# "))
		}
	}

	if uri == "" || uri == "-" {
		return ""
	}
	filename := filepath.Base(uri)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

var (
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	images        = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	refLinks      = regexp.MustCompile(`\[([^\]]+)\]\[[^\]]*\]`)
	refDefs       = regexp.MustCompile(`(?m)^ {0,3}\[[^\]]+\]:\s+\S+.*$`)
	emphasis      = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// stripMarkdown simplifies inline markup. Headings, lists and code blocks
// are kept because the chunker relies on them.
func stripMarkdown(content string) string {
	content = htmlComments.ReplaceAllString(content, "")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = refLinks.ReplaceAllString(content, "$1")
	content = refDefs.ReplaceAllString(content, "")
	content = emphasis.ReplaceAllString(content, "$2")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
