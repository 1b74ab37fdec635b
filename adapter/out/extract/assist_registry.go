// Package extract turns uploaded document bytes into normalized plain text.
package extract

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"assist_server/core/agent/rag"
	"assist_server/core/port/out"
	"assist_server/pkg/apperr"
)

var ErrUnsupportedType = errors.New("unsupported document type")

const (
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeHTML     = "text/html"
	MimePDF      = "application/pdf"
)

// extractFunc returns raw text plus format metadata.
type extractFunc func(ctx context.Context, data []byte) (string, map[string]string, error)

// Registry dispatches by MIME type, falling back to the filename extension
// when the declared type is missing or generic.
type Registry struct {
	extractors map[string]extractFunc
	aliases    map[string]string
	extensions map[string]string
}

var _ out.TextExtractor = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		extractors: map[string]extractFunc{
			MimePlain:    extractPlain,
			MimeMarkdown: extractMarkdown,
			MimeHTML:     extractHTML,
			MimePDF:      extractPDF,
		},
		aliases: map[string]string{
			"text/x-markdown":       MimeMarkdown,
			"application/xhtml+xml": MimeHTML,
			"application/x-pdf":     MimePDF,
		},
		extensions: map[string]string{
			".txt":      MimePlain,
			".text":     MimePlain,
			".md":       MimeMarkdown,
			".markdown": MimeMarkdown,
			".html":     MimeHTML,
			".htm":      MimeHTML,
			".pdf":      MimePDF,
		},
	}
}

func (r *Registry) Resolve(mimeType, filename string) (string, bool) {
	if mt := r.canonical(mimeType); mt != "" {
		return mt, true
	}
	generic := mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream")
	if generic && filename != "" {
		if mt, ok := r.extensions[strings.ToLower(filepath.Ext(filename))]; ok {
			return mt, true
		}
	}
	return "", false
}

func (r *Registry) canonical(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	if alias, ok := r.aliases[mt]; ok {
		mt = alias
	}
	if _, ok := r.extractors[mt]; ok {
		return mt
	}
	return ""
}

func (r *Registry) Extract(ctx context.Context, data []byte, mimeType, filename string) (*out.ExtractedText, error) {
	mt, ok := r.Resolve(mimeType, filename)
	if !ok {
		return nil, apperr.UnsupportedType(mimeType, ErrUnsupportedType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, meta, err := r.extractors[mt](ctx, data)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = make(map[string]string)
	}
	return &out.ExtractedText{
		Text:     rag.NormalizeText(text),
		MimeType: mt,
		Metadata: meta,
	}, nil
}
