// Package html provides a Normaliser implementation for HTML documents.
// It extracts readable text content from HTML, stripping tags, scripts
// and styles, and rewrites h1-h6 elements as Markdown headings.
package html
