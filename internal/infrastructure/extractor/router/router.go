// Package router picks a text extractor by the document's mime type.
package router

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

type Extractor struct {
	byType   map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

// New routes unknown and text/* types to fallback. A nil fallback makes
// unknown types a parsing error.
func New(fallback ports.TextExtractor) *Extractor {
	return &Extractor{byType: map[string]ports.TextExtractor{}, fallback: fallback}
}

func (e *Extractor) Register(mimeType string, ex ports.TextExtractor) *Extractor {
	e.byType[normalize(mimeType)] = ex
	return e
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	if ex, ok := e.byType[normalize(doc.MimeType)]; ok {
		return ex.Extract(ctx, doc)
	}
	if e.fallback == nil {
		return "", domain.WrapError(domain.ErrParsing, "route extractor", fmt.Errorf("unsupported mime type %q", doc.MimeType))
	}
	return e.fallback.Extract(ctx, doc)
}

func normalize(raw string) string {
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mt
}
