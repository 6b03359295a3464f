package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

func fastDispatcher(t *testing.T, observer ports.WorkflowObserver, specialists ...ports.Specialist) *ParallelDispatcher {
	t.Helper()
	pool, err := NewSpecialistPool(specialists...)
	if err != nil {
		t.Fatalf("NewSpecialistPool() error = %v", err)
	}
	return NewParallelDispatcher(pool, observer, DispatcherConfig{
		Backoff: Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2},
	})
}

func highRiskAssignment() domain.CategoryAssignment {
	return domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.95}
}

func allRoles() []domain.Role {
	return []domain.Role{domain.RoleContext, domain.RoleSME, domain.RoleResearch}
}

func TestDispatchAllSucceed(t *testing.T) {
	defer goleak.VerifyNone(t)

	observer := &observerFake{}
	d := fastDispatcher(t, observer,
		succeedingSpecialist(domain.RoleContext, 0.9),
		succeedingSpecialist(domain.RoleSME, 0.8),
		succeedingSpecialist(domain.RoleResearch, 0.7),
	)
	plan := testPlan(domain.CategoryHighRisk, allRoles()...)

	results, err := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), plan)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, role := range plan.Roles {
		if results[i].Role != role {
			t.Fatalf("result %d: expected role %s, got %s", i, role, results[i].Role)
		}
		if !results[i].Succeeded() || results[i].Attempts != 1 {
			t.Fatalf("result %d: unexpected %+v", i, results[i])
		}
		if results[i].CorrelationID == "" {
			t.Fatalf("result %d: missing correlation id", i)
		}
	}
	if len(observer.results) != 3 {
		t.Fatalf("expected observer to see 3 results, got %d", len(observer.results))
	}
}

func TestDispatchCorrelationIDsAreStable(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctxSpecialist := succeedingSpecialist(domain.RoleContext, 0.9)
	d := fastDispatcher(t, nil, ctxSpecialist)
	plan := testPlan(domain.CategoryInfrastructure, domain.RoleContext)
	doc := testDocument("doc-1", "urs text")

	first, _ := d.Dispatch(context.Background(), doc, highRiskAssignment(), plan)
	second, _ := d.Dispatch(context.Background(), doc, highRiskAssignment(), plan)
	if first[0].CorrelationID != second[0].CorrelationID {
		t.Fatalf("correlation ids differ: %s vs %s", first[0].CorrelationID, second[0].CorrelationID)
	}
	req := ctxSpecialist.lastReq.Load().(domain.SpecialistRequest)
	if req.CorrelationID != first[0].CorrelationID || req.DocumentID != "doc-1" || req.Payload.Excerpt != "urs text" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestDispatchTimeoutMarksRoleTimedOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := fastDispatcher(t, nil,
		succeedingSpecialist(domain.RoleContext, 0.9),
		succeedingSpecialist(domain.RoleSME, 0.8),
		blockingSpecialist(domain.RoleResearch),
	)
	plan := testPlan(domain.CategoryHighRisk, allRoles()...)
	plan.RoleTimeout = 30 * time.Millisecond

	results, err := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), plan)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !results[0].Succeeded() || !results[1].Succeeded() {
		t.Fatalf("expected context and sme to succeed: %+v", results[:2])
	}
	if results[2].Status != domain.ResultTimedOut {
		t.Fatalf("expected research timed_out, got %+v", results[2])
	}
}

func TestDispatchRetriesTimeoutWithinBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	research := blockingSpecialist(domain.RoleResearch)
	d := fastDispatcher(t, nil, research)
	plan := testPlan(domain.CategoryHighRisk, domain.RoleResearch)
	plan.RoleTimeout = 20 * time.Millisecond
	plan.RetryBudget = 2

	results, _ := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), plan)
	if results[0].Status != domain.ResultTimedOut || results[0].Attempts != 3 {
		t.Fatalf("expected 3 timed out attempts, got %+v", results[0])
	}
	if research.callCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", research.callCount())
	}
}

func TestDispatchRetriesTemporaryError(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls int32
	sme := &specialistFake{
		role: domain.RoleSME,
		handle: func(context.Context, domain.SpecialistRequest) (domain.SpecialistPayload, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return domain.SpecialistPayload{}, domain.WrapError(domain.ErrTemporary, "review", errors.New("503"))
			}
			return domain.SpecialistPayload{Summary: "ok", Quality: 0.8}, nil
		},
	}
	d := fastDispatcher(t, nil, sme)
	plan := testPlan(domain.CategoryLowRisk, domain.RoleSME)
	plan.RetryBudget = 1

	results, _ := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), plan)
	if !results[0].Succeeded() || results[0].Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %+v", results[0])
	}
	req := sme.lastReq.Load().(domain.SpecialistRequest)
	if req.Attempt != 2 {
		t.Fatalf("expected attempt 2 in request, got %d", req.Attempt)
	}
}

func TestDispatchExplicitFailureIsFinal(t *testing.T) {
	defer goleak.VerifyNone(t)

	sme := &specialistFake{
		role: domain.RoleSME,
		handle: func(context.Context, domain.SpecialistRequest) (domain.SpecialistPayload, error) {
			return domain.SpecialistPayload{}, errors.New("reviewer rejected input")
		},
	}
	d := fastDispatcher(t, nil, sme)
	plan := testPlan(domain.CategoryLowRisk, domain.RoleSME)
	plan.RetryBudget = 3

	results, _ := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), plan)
	if results[0].Status != domain.ResultFailed || results[0].Attempts != 1 {
		t.Fatalf("expected single failed attempt, got %+v", results[0])
	}
	if !strings.Contains(results[0].Error, "reviewer rejected input") {
		t.Fatalf("expected error detail, got %q", results[0].Error)
	}
}

func TestDispatchEmptyPayloadIsFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	empty := &specialistFake{
		role: domain.RoleContext,
		handle: func(context.Context, domain.SpecialistRequest) (domain.SpecialistPayload, error) {
			return domain.SpecialistPayload{}, nil
		},
	}
	d := fastDispatcher(t, nil, empty)
	results, _ := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), testPlan(domain.CategoryInfrastructure, domain.RoleContext))
	if results[0].Status != domain.ResultFailed {
		t.Fatalf("expected failed result for empty payload, got %+v", results[0])
	}
}

func TestDispatchRecoversSpecialistPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	panicking := &specialistFake{
		role: domain.RoleContext,
		handle: func(context.Context, domain.SpecialistRequest) (domain.SpecialistPayload, error) {
			panic("index out of range")
		},
	}
	d := fastDispatcher(t, nil, panicking, succeedingSpecialist(domain.RoleSME, 0.9))
	results, _ := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), testPlan(domain.CategoryLowRisk, domain.RoleContext, domain.RoleSME))
	if results[0].Status != domain.ResultFailed || !strings.Contains(results[0].Error, "panic") {
		t.Fatalf("expected failed result from panic, got %+v", results[0])
	}
	if !results[1].Succeeded() {
		t.Fatalf("sibling role must be unaffected, got %+v", results[1])
	}
}

func TestDispatchUnregisteredRoleFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := fastDispatcher(t, nil, succeedingSpecialist(domain.RoleContext, 0.9))
	results, err := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), testPlan(domain.CategoryLowRisk, domain.RoleContext, domain.RoleSME))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if results[1].Status != domain.ResultFailed || results[1].Attempts != 0 {
		t.Fatalf("expected unregistered role to fail without attempts, got %+v", results[1])
	}
}

func TestDispatchRejectsMalformedPlan(t *testing.T) {
	d := fastDispatcher(t, nil, succeedingSpecialist(domain.RoleContext, 0.9))
	cases := map[string]domain.WorkPlan{
		"no roles":       testPlan(domain.CategoryInfrastructure),
		"duplicate role": testPlan(domain.CategoryInfrastructure, domain.RoleContext, domain.RoleContext),
	}
	zeroTimeout := testPlan(domain.CategoryInfrastructure, domain.RoleContext)
	zeroTimeout.RoleTimeout = 0
	cases["zero timeout"] = zeroTimeout

	for name, plan := range cases {
		if _, err := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), plan); !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestDispatchWorkflowCancellationTimesOutAllRoles(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := fastDispatcher(t, nil,
		blockingSpecialist(domain.RoleContext),
		blockingSpecialist(domain.RoleSME),
		blockingSpecialist(domain.RoleResearch),
	)
	plan := testPlan(domain.CategoryHighRisk, allRoles()...)
	plan.RoleTimeout = 5 * time.Second
	plan.RetryBudget = 2

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	results, err := d.Dispatch(ctx, testDocument("doc-1", "urs text"), highRiskAssignment(), plan)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("dispatch did not honour workflow deadline")
	}
	for _, r := range results {
		if r.Status != domain.ResultTimedOut || !strings.Contains(r.Error, "workflow cancelled") {
			t.Fatalf("expected cancelled timed_out result, got %+v", r)
		}
	}
}

func TestDispatchDoesNotWaitForSpecialistIgnoringContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	release := make(chan struct{})
	defer close(release)

	stuck := &specialistFake{
		role: domain.RoleResearch,
		handle: func(context.Context, domain.SpecialistRequest) (domain.SpecialistPayload, error) {
			<-release
			return domain.SpecialistPayload{Summary: "late", Quality: 1}, nil
		},
	}
	d := fastDispatcher(t, nil, stuck)
	plan := testPlan(domain.CategoryHighRisk, domain.RoleResearch)
	plan.RoleTimeout = 20 * time.Millisecond

	results, _ := d.Dispatch(context.Background(), testDocument("doc-1", "urs text"), highRiskAssignment(), plan)
	if results[0].Status != domain.ResultTimedOut {
		t.Fatalf("expected timed_out result, got %+v", results[0])
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for retry, expected := range want {
		if got := b.Delay(retry); got != expected {
			t.Fatalf("Delay(%d) = %s, want %s", retry, got, expected)
		}
	}
}
