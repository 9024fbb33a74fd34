// Package normalisers turns uploaded files into chunkable text. Each
// subpackage handles one family of formats; Registry picks one by MIME
// type, detected from the file extension when the caller gives none.
package normalisers
