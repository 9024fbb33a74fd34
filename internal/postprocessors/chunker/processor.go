// Package chunker provides a section-aware sliding-window text chunker.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultChunkSize is the default number of units per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping units.
const DefaultChunkOverlap = 50

// DefaultMinChunkSize is the smallest chunk kept on its own.
const DefaultMinChunkSize = 100

// Unit is the measure used for chunk sizes.
type Unit string

const (
	// UnitWords counts whitespace-separated words.
	UnitWords Unit = "words"

	// UnitChars counts characters (runes).
	UnitChars Unit = "chars"
)

// IsValid returns true if the unit is recognised.
func (u Unit) IsValid() bool {
	return u == UnitWords || u == UnitChars
}

// Processor splits text into chunks along Markdown section boundaries,
// windowing sections that exceed the chunk size.
// It implements the Chunker interface.
type Processor struct {
	chunkSize    int
	overlap      int
	minChunkSize int
	unit         Unit
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in units.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive windows in units.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithMinChunkSize sets the size below which a chunk is merged into
// its predecessor.
func WithMinChunkSize(size int) Option {
	return func(p *Processor) {
		if size >= 0 {
			p.minChunkSize = size
		}
	}
}

// WithUnit sets the size unit.
func WithUnit(u Unit) Option {
	return func(p *Processor) {
		if u.IsValid() {
			p.unit = u
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:    DefaultChunkSize,
		overlap:      DefaultChunkOverlap,
		minChunkSize: DefaultMinChunkSize,
		unit:         UnitWords,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}
	if p.minChunkSize > p.chunkSize {
		p.minChunkSize = p.chunkSize
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "semantic"
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int { return p.overlap }

// MinChunkSize returns the configured minimum chunk size.
func (p *Processor) MinChunkSize() int { return p.minChunkSize }

// Unit returns the configured size unit.
func (p *Processor) Unit() Unit { return p.unit }

// headingPattern matches ATX headings, capturing the heading text.
var headingPattern = regexp.MustCompile(`^ {0,3}#{1,6}[ \t]+(.*?)[ \t#]*$`)

// section is a heading-delimited region of the source text.
type section struct {
	title      string
	start, end int
}

// span is a chunk candidate expressed as byte offsets into the source.
type span struct {
	title      string
	start, end int
	units      int
}

// token is one size unit with its byte offsets.
type token struct {
	start, end int
}

// Chunk splits text into ordered chunks. Empty or whitespace-only text
// produces no chunks.
func (p *Processor) Chunk(text string) []domain.Chunk {
	text = normaliseNewlines(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var spans []span
	for _, sec := range splitSections(text) {
		tokens := p.tokenize(text, sec.start, sec.end)
		if len(tokens) == 0 {
			continue
		}

		windows := p.window(sec.title, tokens)

		// A whole section below the minimum joins the preceding chunk.
		if len(windows) == 1 && windows[0].units < p.minChunkSize && len(spans) > 0 {
			prev := &spans[len(spans)-1]
			prev.end = windows[0].end
			prev.units += windows[0].units
			continue
		}
		spans = append(spans, windows...)
	}

	chunks := make([]domain.Chunk, 0, len(spans))
	for i, s := range spans {
		content := text[s.start:s.end]
		chunks = append(chunks, domain.Chunk{
			ChunkIndex:   i,
			Content:      content,
			SectionTitle: s.title,
			WordCount:    len(strings.Fields(content)),
			CharCount:    utf8.RuneCountInString(content),
		})
	}
	return chunks
}

// window slides a fixed-size window across a section's tokens.
func (p *Processor) window(title string, tokens []token) []span {
	n := len(tokens)
	if n <= p.chunkSize {
		return []span{{title: title, start: tokens[0].start, end: tokens[n-1].end, units: n}}
	}

	step := p.chunkSize - p.overlap
	var out []span
	var firsts []int
	for first := 0; ; first += step {
		last := first + p.chunkSize
		if last > n {
			last = n
		}
		out = append(out, span{
			title: title,
			start: tokens[first].start,
			end:   tokens[last-1].end,
			units: last - first,
		})
		firsts = append(firsts, first)
		if last == n {
			break
		}
	}

	// A short trailing window is folded into the one before it.
	if k := len(out) - 1; k > 0 && out[k].units < p.minChunkSize {
		out[k-1].end = out[k].end
		out[k-1].units = n - firsts[k-1]
		out = out[:k]
	}
	return out
}

// tokenize splits text[from:to] into size units.
func (p *Processor) tokenize(text string, from, to int) []token {
	var tokens []token
	if p.unit == UnitChars {
		body := text[from:to]
		lead := len(body) - len(strings.TrimLeftFunc(body, unicode.IsSpace))
		trimmed := strings.TrimRightFunc(body, unicode.IsSpace)
		for i, r := range trimmed {
			if i < lead {
				continue
			}
			tokens = append(tokens, token{start: from + i, end: from + i + utf8.RuneLen(r)})
		}
		return tokens
	}

	start := -1
	for i, r := range text[from:to] {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{start: from + start, end: from + i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start: from + start, end: to})
	}
	return tokens
}

// splitSections cuts text at ATX headings outside fenced code blocks.
// Section bodies exclude the heading line itself.
func splitSections(text string) []section {
	var sections []section
	current := section{start: 0}
	inFence := false

	offset := 0
	for offset < len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		next := len(text)
		if lineEnd >= 0 {
			lineEnd += offset
			next = lineEnd + 1
		} else {
			lineEnd = len(text)
		}
		line := text[offset:lineEnd]

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		} else if !inFence {
			if m := headingPattern.FindStringSubmatch(line); m != nil {
				current.end = offset
				sections = append(sections, current)
				current = section{title: strings.TrimSpace(m[1]), start: next}
			}
		}
		offset = next
	}
	current.end = len(text)
	sections = append(sections, current)
	return sections
}

func normaliseNewlines(text string) string {
	if !strings.Contains(text, "\r") {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
