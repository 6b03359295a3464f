package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

const MimeType = "application/pdf"

type Extractor struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func NewExtractor(storage ports.ObjectStorage, maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Extractor{storage: storage, maxBytes: maxBytes}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrParsing, "extract pdf", fmt.Errorf("%s exceeds %d bytes", doc.Name, e.maxBytes))
	}
	return ExtractBytes(doc.Name, raw)
}

// ExtractBytes returns the plain text layer of a PDF.
func ExtractBytes(name string, raw []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrParsing, "extract pdf", fmt.Errorf("%s: malformed pdf: %v", name, r))
		}
	}()

	r, err := ledongthuc.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrParsing, "extract pdf", fmt.Errorf("%s: %w", name, err))
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrParsing, "extract pdf", fmt.Errorf("%s: %w", name, err))
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", domain.WrapError(domain.ErrParsing, "extract pdf", fmt.Errorf("%s: %w", name, err))
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", domain.WrapError(domain.ErrParsing, "extract pdf", fmt.Errorf("%s has no text layer", name))
	}
	return out, nil
}
