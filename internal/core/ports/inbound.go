package ports

import (
	"context"
	"io"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, name, mimeType string, meta domain.DocumentMetadata, body io.Reader) (*domain.Document, error)
}

// WorkflowRunner runs the categorize/plan/dispatch/aggregate workflow for one document.
type WorkflowRunner interface {
	Run(ctx context.Context, doc *domain.Document) (*domain.AggregatedOutcome, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// StrategyPlanner derives a work plan from a category assignment.
type StrategyPlanner interface {
	Plan(assignment domain.CategoryAssignment) (domain.WorkPlan, error)
}

// OutcomeReader is the inbound read model for documents and their outcomes.
type OutcomeReader interface {
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	GetOutcome(ctx context.Context, documentID string) (*domain.AggregatedOutcome, error)
}

// WorkflowSubmitter records a document from raw text and runs the workflow synchronously.
type WorkflowSubmitter interface {
	Submit(ctx context.Context, name, content string, meta domain.DocumentMetadata) (*domain.AggregatedOutcome, error)
}

// EscalationResender re-publishes a stored escalation whose hand-off failed.
type EscalationResender interface {
	ResendEscalation(ctx context.Context, documentID string) (*domain.AggregatedOutcome, error)
}
