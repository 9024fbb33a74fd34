package domain

// RawDocument is an uploaded file before its text is extracted.
type RawDocument struct {
	// URI is the original location (file path or "-" for stdin).
	URI string

	// MIMEType is the content type (e.g., "text/html").
	MIMEType string

	// Content is the raw bytes.
	Content []byte
}
