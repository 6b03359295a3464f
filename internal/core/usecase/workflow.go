package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

const DefaultWorkflowTimeout = 180 * time.Second

type WorkflowDependencies struct {
	Documents    ports.DocumentRepository
	Outcomes     ports.OutcomeRepository
	Extractor    ports.TextExtractor
	Classifier   *CategoryClassifier
	Planner      ports.StrategyPlanner
	Dispatcher   *ParallelDispatcher
	Aggregator   *ResultAggregator
	Generator    ports.SuiteGenerator
	Escalations  ports.EscalationPublisher
	Traceability ports.TraceabilityRecorder
	Observer     ports.WorkflowObserver
}

// WorkflowUseCase drives one document through
// received -> categorized -> planned -> dispatching -> aggregating -> completed|escalated.
type WorkflowUseCase struct {
	deps    WorkflowDependencies
	timeout time.Duration
}

func NewWorkflowUseCase(deps WorkflowDependencies, timeout time.Duration) *WorkflowUseCase {
	if timeout <= 0 {
		timeout = DefaultWorkflowTimeout
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Aggregator == nil {
		deps.Aggregator = NewResultAggregator()
	}
	return &WorkflowUseCase{deps: deps, timeout: timeout}
}

// Submit records a new document from raw text and runs the workflow on it.
func (uc *WorkflowUseCase) Submit(ctx context.Context, name, content string, meta domain.DocumentMetadata) (*domain.AggregatedOutcome, error) {
	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        uuid.NewString(),
		Name:      name,
		MimeType:  "text/plain",
		Content:   content,
		Metadata:  meta,
		State:     domain.StateReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.deps.Documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return uc.Run(ctx, doc)
}

func (uc *WorkflowUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.deps.Documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.State == domain.StateEscalated {
		// A redelivered escalated document only needs its reviewer hand-off.
		_, err := uc.resend(ctx, doc)
		return err
	}

	text, err := uc.deps.Extractor.Extract(ctx, doc)
	if err != nil {
		wrapped := fmt.Errorf("extract text: %w", err)
		if markErr := uc.markFailed(ctx, doc.ID, wrapped); markErr != nil {
			return fmt.Errorf("%w; mark failed state: %v", wrapped, markErr)
		}
		return wrapped
	}
	doc.Content = text

	_, err = uc.Run(ctx, doc)
	return err
}

// Run processes doc once. Fatal errors (parsing, configuration) move the document
// to failed and are returned. When the outcome is stored but a reporting hand-off
// fails, both the outcome and the error are returned.
func (uc *WorkflowUseCase) Run(ctx context.Context, doc *domain.Document) (*domain.AggregatedOutcome, error) {
	if doc == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run workflow", errors.New("document is nil"))
	}
	start := time.Now()
	tracker := &stateTracker{uc: uc, doc: doc, state: doc.State}
	if tracker.state == "" {
		tracker.state = domain.StateReceived
	}
	if tracker.state != domain.StateReceived {
		return nil, domain.WrapError(
			domain.ErrInvalidTransition,
			"run workflow",
			fmt.Errorf("document %s is %s; submit a new request to reprocess", doc.ID, tracker.state),
		)
	}

	runCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	outcome, err := uc.execute(runCtx, ctx, tracker)
	if err != nil {
		uc.deps.Observer.ObserveFailure(tracker.state, time.Since(start))
		slog.Error("workflow_failed", "document_id", doc.ID, "state", tracker.state, "error", err)
		if markErr := tracker.fail(ctx, err); markErr != nil {
			return nil, fmt.Errorf("%w; mark failed state: %v", err, markErr)
		}
		return nil, err
	}

	uc.deps.Observer.ObserveOutcome(outcome, time.Since(start))
	slog.Info("workflow_finished",
		"document_id", doc.ID,
		"status", outcome.Status,
		"category", outcome.Assignment.Category,
		"confidence", outcome.Assignment.Confidence,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	return outcome, uc.report(ctx, doc, outcome)
}

// execute runs the stages under runCtx; persistence uses ctx so that a workflow
// deadline still lets the outcome be stored.
func (uc *WorkflowUseCase) execute(runCtx, ctx context.Context, tracker *stateTracker) (*domain.AggregatedOutcome, error) {
	doc := tracker.doc

	assignment, err := uc.deps.Classifier.Classify(runCtx, doc)
	if err != nil {
		return nil, err
	}
	if err := uc.deps.Documents.SaveAssignment(ctx, doc.ID, assignment); err != nil {
		return nil, fmt.Errorf("save assignment: %w", err)
	}
	if err := tracker.advance(ctx, domain.StateCategorized); err != nil {
		return nil, err
	}

	plan, err := uc.deps.Planner.Plan(assignment)
	if err != nil {
		return nil, fmt.Errorf("plan strategy: %w", err)
	}
	if err := tracker.advance(ctx, domain.StatePlanned); err != nil {
		return nil, err
	}

	if err := tracker.advance(ctx, domain.StateDispatching); err != nil {
		return nil, err
	}
	results, err := uc.deps.Dispatcher.Dispatch(runCtx, doc, assignment, plan)
	if err != nil {
		return nil, fmt.Errorf("dispatch specialists: %w", err)
	}

	if err := tracker.advance(ctx, domain.StateAggregating); err != nil {
		return nil, err
	}
	outcome := uc.deps.Aggregator.Aggregate(doc.ID, assignment, plan, results)
	if outcome.Status == domain.OutcomeCompleted {
		suite, genErr := uc.generate(runCtx, doc, plan, results)
		outcome = uc.deps.Aggregator.AttachSuite(outcome, suite, genErr)
	}

	if err := uc.deps.Outcomes.Save(ctx, &outcome); err != nil {
		return nil, fmt.Errorf("save outcome: %w", err)
	}

	final := domain.StateCompleted
	if outcome.Status == domain.OutcomeEscalated {
		final = domain.StateEscalated
	}
	if err := tracker.advance(ctx, final); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (uc *WorkflowUseCase) generate(ctx context.Context, doc *domain.Document, plan domain.WorkPlan, results []domain.SpecialistResult) (domain.TestSuite, error) {
	if uc.deps.Generator == nil {
		return domain.TestSuite{}, errors.New("no suite generator configured")
	}
	succeeded := make([]domain.SpecialistResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			succeeded = append(succeeded, r)
		}
	}
	suite, err := uc.deps.Generator.Generate(ctx, doc, plan, succeeded)
	if err != nil {
		return domain.TestSuite{}, fmt.Errorf("generate suite: %w", err)
	}
	return suite, nil
}

// ResendEscalation publishes the stored escalation of documentID if reviewers
// were never notified. An already delivered escalation is returned unchanged.
func (uc *WorkflowUseCase) ResendEscalation(ctx context.Context, documentID string) (*domain.AggregatedOutcome, error) {
	doc, err := uc.deps.Documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return uc.resend(ctx, doc)
}

func (uc *WorkflowUseCase) resend(ctx context.Context, doc *domain.Document) (*domain.AggregatedOutcome, error) {
	if doc.State != domain.StateEscalated {
		return nil, domain.WrapError(
			domain.ErrInvalidTransition,
			"resend escalation",
			fmt.Errorf("document %s is %s, not escalated", doc.ID, doc.State),
		)
	}
	outcome, err := uc.deps.Outcomes.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load outcome: %w", err)
	}
	if !outcome.EscalationPending() {
		return outcome, nil
	}
	if err := uc.publishEscalation(ctx, outcome); err != nil {
		return outcome, err
	}
	slog.Info("escalation_resent", "document_id", doc.ID)
	return outcome, nil
}

// publishEscalation notifies reviewers and records the delivery on the stored
// outcome, so a failed hand-off stays visible as pending.
func (uc *WorkflowUseCase) publishEscalation(ctx context.Context, outcome *domain.AggregatedOutcome) error {
	if uc.deps.Escalations == nil || !outcome.EscalationPending() {
		return nil
	}
	if err := uc.deps.Escalations.PublishEscalation(ctx, outcome); err != nil {
		return fmt.Errorf("publish escalation: %w", err)
	}
	published := time.Now().UTC()
	outcome.Escalation.PublishedAt = &published
	if err := uc.deps.Outcomes.Save(ctx, outcome); err != nil {
		return fmt.Errorf("mark escalation published: %w", err)
	}
	return nil
}

func (uc *WorkflowUseCase) report(ctx context.Context, doc *domain.Document, outcome *domain.AggregatedOutcome) error {
	var errs []error
	if err := uc.publishEscalation(ctx, outcome); err != nil {
		errs = append(errs, err)
	}
	if uc.deps.Traceability != nil {
		if err := uc.deps.Traceability.RecordOutcome(ctx, doc, outcome); err != nil {
			errs = append(errs, fmt.Errorf("record traceability: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (uc *WorkflowUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	return uc.deps.Documents.UpdateState(ctx, documentID, domain.StateFailed, processErr.Error())
}

type stateTracker struct {
	uc    *WorkflowUseCase
	doc   *domain.Document
	state domain.WorkflowState
}

func (t *stateTracker) advance(ctx context.Context, next domain.WorkflowState) error {
	if !t.state.CanTransition(next) {
		return domain.WrapError(domain.ErrInvalidTransition, "advance workflow", fmt.Errorf("%s -> %s", t.state, next))
	}
	if err := t.uc.deps.Documents.UpdateState(ctx, t.doc.ID, next, ""); err != nil {
		return fmt.Errorf("set state=%s: %w", next, err)
	}
	slog.Debug("workflow_state", "document_id", t.doc.ID, "from", t.state, "to", next)
	t.state = next
	t.doc.State = next
	return nil
}

func (t *stateTracker) fail(ctx context.Context, cause error) error {
	if !t.state.CanTransition(domain.StateFailed) {
		return nil
	}
	if err := t.uc.markFailed(ctx, t.doc.ID, cause); err != nil {
		return err
	}
	t.state = domain.StateFailed
	t.doc.State = domain.StateFailed
	t.doc.Error = cause.Error()
	return nil
}
