package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

// PrecedentSeedUseCase loads previously validated documents into the index the
// context specialist searches.
type PrecedentSeedUseCase struct {
	chunker  ports.Chunker
	embedder ports.Embedder
	writer   ports.PrecedentWriter
}

func NewPrecedentSeedUseCase(chunker ports.Chunker, embedder ports.Embedder, writer ports.PrecedentWriter) *PrecedentSeedUseCase {
	return &PrecedentSeedUseCase{chunker: chunker, embedder: embedder, writer: writer}
}

// Seed chunks and embeds text and returns the number of chunks written.
func (uc *PrecedentSeedUseCase) Seed(ctx context.Context, src domain.PrecedentSource, text string) (int, error) {
	if strings.TrimSpace(src.DocumentID) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "seed precedent", errors.New("document id is required"))
	}
	if _, err := domain.ParseCategory(string(src.Category)); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "seed precedent", err)
	}
	if !utf8.ValidString(text) || strings.TrimSpace(text) == "" {
		return 0, domain.WrapError(domain.ErrParsing, "seed precedent", fmt.Errorf("%s has no usable text", src.Name))
	}

	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrParsing, "seed precedent", fmt.Errorf("%s produced no chunks", src.Name))
	}
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed precedent chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed precedent chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err := uc.writer.Index(ctx, src, chunks, vectors); err != nil {
		return 0, fmt.Errorf("index precedent: %w", err)
	}
	return len(chunks), nil
}
