package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

const DefaultConfidenceThreshold = 0.6

// CategoryClassifier guards a classifier backend: it rejects unusable input before
// the backend runs and rejects backend output it cannot trust instead of correcting it.
type CategoryClassifier struct {
	backend   ports.DocumentClassifier
	threshold float64
	now       func() time.Time
}

func NewCategoryClassifier(backend ports.DocumentClassifier, threshold float64) *CategoryClassifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	return &CategoryClassifier{
		backend:   backend,
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (c *CategoryClassifier) Classify(ctx context.Context, doc *domain.Document) (domain.CategoryAssignment, error) {
	if err := validateDocumentContent(doc); err != nil {
		return domain.CategoryAssignment{}, err
	}

	assignment, err := c.backend.Classify(ctx, doc)
	if err != nil {
		return domain.CategoryAssignment{}, fmt.Errorf("classify document: %w", err)
	}

	category, err := domain.ParseCategory(string(assignment.Category))
	if err != nil {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrParsing, "classify document", err)
	}
	if math.IsNaN(assignment.Confidence) || assignment.Confidence < 0 || assignment.Confidence > 1 {
		return domain.CategoryAssignment{}, domain.WrapError(
			domain.ErrParsing,
			"classify document",
			fmt.Errorf("confidence %v outside [0,1]", assignment.Confidence),
		)
	}

	assignment.Category = category
	assignment.LowConfidence = assignment.Confidence < c.threshold
	if assignment.ClassifiedAt.IsZero() {
		assignment.ClassifiedAt = c.now()
	}
	return assignment, nil
}

func validateDocumentContent(doc *domain.Document) error {
	if doc == nil {
		return domain.WrapError(domain.ErrParsing, "validate document", errors.New("document is nil"))
	}
	if !utf8.ValidString(doc.Content) {
		return domain.WrapError(domain.ErrParsing, "validate document", fmt.Errorf("document %q is not valid utf-8 text", doc.Name))
	}
	if strings.TrimSpace(doc.Content) == "" {
		return domain.WrapError(domain.ErrParsing, "validate document", fmt.Errorf("document %q has empty content", doc.Name))
	}
	return nil
}
