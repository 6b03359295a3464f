package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateState(ctx context.Context, id string, state domain.WorkflowState, errMessage string) error
	SaveAssignment(ctx context.Context, id string, assignment domain.CategoryAssignment) error
}

// OutcomeRepository persists aggregated outcomes for the reporting side.
type OutcomeRepository interface {
	Save(ctx context.Context, outcome *domain.AggregatedOutcome) error
	GetByDocumentID(ctx context.Context, documentID string) (*domain.AggregatedOutcome, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentReceived(ctx context.Context, documentID string) error
	SubscribeDocumentReceived(ctx context.Context, handler func(context.Context, string) error) error
}

// EscalationPublisher hands escalated outcomes to the human review process.
type EscalationPublisher interface {
	PublishEscalation(ctx context.Context, outcome *domain.AggregatedOutcome) error
}

// TraceabilityRecorder records document -> category -> test relationships.
type TraceabilityRecorder interface {
	RecordOutcome(ctx context.Context, doc *domain.Document, outcome *domain.AggregatedOutcome) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// DocumentClassifier assigns a risk category to a document.
type DocumentClassifier interface {
	Classify(ctx context.Context, doc *domain.Document) (domain.CategoryAssignment, error)
}

// Specialist is one role of the specialist pool. Implementations must return an
// error rather than an empty payload when they have nothing to contribute.
type Specialist interface {
	Role() domain.Role
	Handle(ctx context.Context, req domain.SpecialistRequest) (domain.SpecialistPayload, error)
}

// SpecialistRegistry resolves the specialist registered for a role.
type SpecialistRegistry interface {
	Lookup(role domain.Role) (Specialist, error)
}

// SuiteGenerator builds the OQ test suite from collected specialist output.
type SuiteGenerator interface {
	Generate(ctx context.Context, doc *domain.Document, plan domain.WorkPlan, results []domain.SpecialistResult) (domain.TestSuite, error)
}

// Embedder builds vectors for excerpts and precedent text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into excerpts.
type Chunker interface {
	Split(text string) []string
}

// PrecedentIndex is the read-only store of previously validated documents.
type PrecedentIndex interface {
	Search(ctx context.Context, queryVector []float32, limit int, category domain.Category) ([]domain.Precedent, error)
}

// ExpertReviewer performs the domain-expert compliance review.
type ExpertReviewer interface {
	Review(ctx context.Context, req domain.SpecialistRequest) (domain.ExpertReview, error)
}

// RegulatorySearcher queries an external regulatory research backend.
type RegulatorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.RegulatoryReference, error)
}

// WorkflowObserver receives workflow measurements; the metrics adapter implements it.
type WorkflowObserver interface {
	ObserveSpecialistResult(result domain.SpecialistResult)
	ObserveOutcome(outcome *domain.AggregatedOutcome, duration time.Duration)
	ObserveFailure(stage domain.WorkflowState, duration time.Duration)
}

// PrecedentWriter adds validated documents to the precedent index.
type PrecedentWriter interface {
	Index(ctx context.Context, src domain.PrecedentSource, chunks []string, vectors [][]float32) error
}
