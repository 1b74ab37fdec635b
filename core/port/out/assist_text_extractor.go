package out

import "context"

// ExtractedText is the plain text recovered from a document.
type ExtractedText struct {
	Text     string
	MimeType string
	Metadata map[string]string
}

// TextExtractor converts raw bytes of a supported type into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) (*ExtractedText, error)
	// Resolve returns the canonical mime type for the pair, or false if unsupported.
	Resolve(mimeType, filename string) (string, bool)
}
