package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

type stateCall struct {
	state  domain.WorkflowState
	errMsg string
}

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]domain.Document
	stateCalls  []stateCall
	assignments []domain.CategoryAssignment
	createErr   error
	stateErr    error
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{docs: make(map[string]domain.Document)}
	for _, d := range docs {
		f.docs[d.ID] = *d
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = *doc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &doc, nil
}

func (f *docRepoFake) UpdateState(_ context.Context, id string, state domain.WorkflowState, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateCalls = append(f.stateCalls, stateCall{state: state, errMsg: errMessage})
	if f.stateErr != nil {
		return f.stateErr
	}
	doc := f.docs[id]
	doc.State = state
	doc.Error = errMessage
	f.docs[id] = doc
	return nil
}

func (f *docRepoFake) SaveAssignment(_ context.Context, id string, assignment domain.CategoryAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments = append(f.assignments, assignment)
	doc := f.docs[id]
	doc.Category = assignment.Category
	doc.Confidence = assignment.Confidence
	f.docs[id] = doc
	return nil
}

func (f *docRepoFake) states() []domain.WorkflowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WorkflowState, 0, len(f.stateCalls))
	for _, c := range f.stateCalls {
		out = append(out, c.state)
	}
	return out
}

type outcomeRepoFake struct {
	mu       sync.Mutex
	outcomes map[string]domain.AggregatedOutcome
	err      error
}

func newOutcomeRepoFake() *outcomeRepoFake {
	return &outcomeRepoFake{outcomes: make(map[string]domain.AggregatedOutcome)}
}

func (f *outcomeRepoFake) Save(_ context.Context, outcome *domain.AggregatedOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.outcomes[outcome.DocumentID] = *outcome
	return nil
}

func (f *outcomeRepoFake) GetByDocumentID(_ context.Context, documentID string) (*domain.AggregatedOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome, ok := f.outcomes[documentID]
	if !ok {
		return nil, domain.WrapError(domain.ErrOutcomeNotFound, "get outcome", fmt.Errorf("document_id=%s", documentID))
	}
	return &outcome, nil
}

type backendClassifierFake struct {
	assignment domain.CategoryAssignment
	err        error
	calls      int32
}

func (f *backendClassifierFake) Classify(context.Context, *domain.Document) (domain.CategoryAssignment, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return domain.CategoryAssignment{}, f.err
	}
	return f.assignment, nil
}

type specialistFake struct {
	role    domain.Role
	handle  func(ctx context.Context, req domain.SpecialistRequest) (domain.SpecialistPayload, error)
	calls   int32
	lastReq atomic.Value
}

func (f *specialistFake) Role() domain.Role { return f.role }

func (f *specialistFake) Handle(ctx context.Context, req domain.SpecialistRequest) (domain.SpecialistPayload, error) {
	atomic.AddInt32(&f.calls, 1)
	f.lastReq.Store(req)
	return f.handle(ctx, req)
}

func (f *specialistFake) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func succeedingSpecialist(role domain.Role, quality float64) *specialistFake {
	return &specialistFake{
		role: role,
		handle: func(context.Context, domain.SpecialistRequest) (domain.SpecialistPayload, error) {
			return domain.SpecialistPayload{
				Summary:  string(role) + " summary",
				Findings: []string{string(role) + " finding"},
				Quality:  quality,
			}, nil
		},
	}
}

// blockingSpecialist waits for ctx cancellation, like a hung backend call that
// still honours its context.
func blockingSpecialist(role domain.Role) *specialistFake {
	return &specialistFake{
		role: role,
		handle: func(ctx context.Context, _ domain.SpecialistRequest) (domain.SpecialistPayload, error) {
			<-ctx.Done()
			return domain.SpecialistPayload{}, ctx.Err()
		},
	}
}

type generatorFake struct {
	suite domain.TestSuite
	err   error
	calls int32
}

func (f *generatorFake) Generate(_ context.Context, doc *domain.Document, plan domain.WorkPlan, _ []domain.SpecialistResult) (domain.TestSuite, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return domain.TestSuite{}, f.err
	}
	suite := f.suite
	if suite.ID == "" {
		suite = makeSuite(doc.ID, plan.Category, plan.TestCount.Min)
	}
	return suite, nil
}

func makeSuite(docID string, category domain.Category, n int) domain.TestSuite {
	tests := make([]domain.TestCase, 0, n)
	for i := 1; i <= n; i++ {
		tests = append(tests, domain.TestCase{
			ID:             fmt.Sprintf("OQ-%03d", i),
			Title:          fmt.Sprintf("Verify requirement %d", i),
			Objective:      "verify behaviour",
			Steps:          []string{"prepare", "execute"},
			ExpectedResult: "system behaves as specified",
		})
	}
	return domain.TestSuite{ID: "suite-" + docID, Category: category, GAMP: category.GAMPLevel(), Tests: tests}
}

type escalationFake struct {
	mu        sync.Mutex
	published []domain.AggregatedOutcome
	err       error
}

func (f *escalationFake) PublishEscalation(_ context.Context, outcome *domain.AggregatedOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, *outcome)
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type observerFake struct {
	mu       sync.Mutex
	results  []domain.SpecialistResult
	outcomes []domain.OutcomeStatus
	failures []domain.WorkflowState
}

func (f *observerFake) ObserveSpecialistResult(result domain.SpecialistResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
}

func (f *observerFake) ObserveOutcome(outcome *domain.AggregatedOutcome, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome.Status)
}

func (f *observerFake) ObserveFailure(stage domain.WorkflowState, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, stage)
}

func testPlan(category domain.Category, roles ...domain.Role) domain.WorkPlan {
	return domain.WorkPlan{
		ID:              "plan-test",
		Category:        category,
		Confidence:      0.95,
		Roles:           roles,
		RequiredResults: len(roles),
		RoleTimeout:     200 * time.Millisecond,
		RetryBudget:     0,
		MinQuality:      0.5,
		TestCount:       domain.TestCountRange{Min: 3, Max: 5},
	}
}

func testDocument(id, content string) *domain.Document {
	return &domain.Document{
		ID:       id,
		Name:     "urs-" + id + ".txt",
		Content:  content,
		Metadata: domain.DocumentMetadata{Author: "qa", Version: "1.0"},
		State:    domain.StateReceived,
	}
}
