package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

type OutcomeQueryUseCase struct {
	documents ports.DocumentRepository
	outcomes  ports.OutcomeRepository
}

func NewOutcomeQueryUseCase(documents ports.DocumentRepository, outcomes ports.OutcomeRepository) *OutcomeQueryUseCase {
	return &OutcomeQueryUseCase{documents: documents, outcomes: outcomes}
}

func (uc *OutcomeQueryUseCase) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.documents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (uc *OutcomeQueryUseCase) GetOutcome(ctx context.Context, documentID string) (*domain.AggregatedOutcome, error) {
	if _, err := uc.documents.GetByID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	outcome, err := uc.outcomes.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return outcome, nil
}
