package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

var correlationNamespace = uuid.MustParse("6f1d8a52-3c1e-4b7a-9d52-0b8e2f3c9a10")

// Backoff is the delay schedule between attempts of one specialist role.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2.0,
	}
}

func (b Backoff) normalize() Backoff {
	def := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1.0 {
		b.Multiplier = def.Multiplier
	}
	return b
}

// Delay returns the wait before the given retry (1-based).
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	wait := float64(b.Initial) * math.Pow(b.Multiplier, float64(retry-1))
	if wait > float64(b.Max) {
		return b.Max
	}
	return time.Duration(wait)
}

type DispatcherConfig struct {
	Backoff      Backoff
	ExcerptChars int
}

// ParallelDispatcher fans a work plan out to the specialist pool and waits for every
// role to reach a terminal result.
type ParallelDispatcher struct {
	registry     ports.SpecialistRegistry
	observer     ports.WorkflowObserver
	backoff      Backoff
	excerptChars int
}

func NewParallelDispatcher(registry ports.SpecialistRegistry, observer ports.WorkflowObserver, cfg DispatcherConfig) *ParallelDispatcher {
	if observer == nil {
		observer = nopObserver{}
	}
	if cfg.ExcerptChars <= 0 {
		cfg.ExcerptChars = 4000
	}
	return &ParallelDispatcher{
		registry:     registry,
		observer:     observer,
		backoff:      cfg.Backoff.normalize(),
		excerptChars: cfg.ExcerptChars,
	}
}

// Dispatch returns exactly one terminal result per plan role, in plan order. Only a
// malformed plan is reported as an error; specialist problems live in the results.
func (d *ParallelDispatcher) Dispatch(
	ctx context.Context,
	doc *domain.Document,
	assignment domain.CategoryAssignment,
	plan domain.WorkPlan,
) ([]domain.SpecialistResult, error) {
	if err := validateDispatchPlan(plan); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "dispatch", err)
	}

	results := make([]domain.SpecialistResult, len(plan.Roles))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(len(plan.Roles))

	for i, role := range plan.Roles {
		req := d.buildRequest(doc, assignment, plan, role)
		g.Go(func() error {
			results[i] = d.runRole(groupCtx, req, plan.RetryBudget)
			d.observer.ObserveSpecialistResult(results[i])
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (d *ParallelDispatcher) buildRequest(
	doc *domain.Document,
	assignment domain.CategoryAssignment,
	plan domain.WorkPlan,
	role domain.Role,
) domain.SpecialistRequest {
	return domain.SpecialistRequest{
		CorrelationID: uuid.NewSHA1(correlationNamespace, []byte(doc.ID+"/"+plan.ID+"/"+string(role))).String(),
		DocumentID:    doc.ID,
		Role:          role,
		Payload: domain.RequestPayload{
			DocumentName: doc.Name,
			Excerpt:      truncateRunes(doc.Content, d.excerptChars),
			Category:     assignment.Category,
			Confidence:   assignment.Confidence,
			Focus:        roleFocus(role),
		},
		Timeout: plan.RoleTimeout,
	}
}

func (d *ParallelDispatcher) runRole(ctx context.Context, req domain.SpecialistRequest, retryBudget int) domain.SpecialistResult {
	start := time.Now()
	result := domain.SpecialistResult{
		CorrelationID: req.CorrelationID,
		Role:          req.Role,
	}

	specialist, err := d.registry.Lookup(req.Role)
	if err != nil {
		result.Status = domain.ResultFailed
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	maxAttempts := retryBudget + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = workflowCancelled(req.Role, ctx.Err())
			break
		}

		req.Attempt = attempt
		result.Attempts = attempt
		payload, err := d.callSpecialist(ctx, specialist, req)
		if err == nil {
			result.Status = domain.ResultSucceeded
			result.Payload = &payload
			result.Duration = time.Since(start)
			return result
		}
		lastErr = err

		if !retryableSpecialistError(ctx, err) || attempt == maxAttempts {
			break
		}
		wait := d.backoff.Delay(attempt)
		slog.Warn("specialist_retry",
			"role", req.Role,
			"correlation_id", req.CorrelationID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				lastErr = workflowCancelled(req.Role, ctx.Err())
			case <-timer.C:
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	result.Status = domain.ResultFailed
	if domain.IsKind(lastErr, domain.ErrSpecialistTimeout) {
		result.Status = domain.ResultTimedOut
	}
	result.Error = lastErr.Error()
	result.Duration = time.Since(start)
	return result
}

type specialistReply struct {
	payload domain.SpecialistPayload
	err     error
}

// callSpecialist runs one attempt. The specialist runs in its own goroutine so a
// handler that ignores cancellation cannot hold the dispatcher past the deadline.
func (d *ParallelDispatcher) callSpecialist(
	ctx context.Context,
	specialist ports.Specialist,
	req domain.SpecialistRequest,
) (domain.SpecialistPayload, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	replies := make(chan specialistReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- specialistReply{err: fmt.Errorf("specialist panic: %v", r)}
			}
		}()
		payload, err := specialist.Handle(attemptCtx, req)
		replies <- specialistReply{payload: payload, err: err}
	}()

	select {
	case reply := <-replies:
		if reply.err != nil {
			return domain.SpecialistPayload{}, classifySpecialistError(ctx, attemptCtx, req, reply.err)
		}
		if err := validatePayload(reply.payload); err != nil {
			return domain.SpecialistPayload{}, domain.WrapError(domain.ErrSpecialistFailure, "specialist "+string(req.Role), err)
		}
		return reply.payload, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return domain.SpecialistPayload{}, workflowCancelled(req.Role, ctx.Err())
		}
		return domain.SpecialistPayload{}, domain.WrapError(
			domain.ErrSpecialistTimeout,
			"specialist "+string(req.Role),
			fmt.Errorf("no response within %s", req.Timeout),
		)
	}
}

func classifySpecialistError(parent, attemptCtx context.Context, req domain.SpecialistRequest, err error) error {
	op := "specialist " + string(req.Role)
	switch {
	case parent.Err() != nil:
		return workflowCancelled(req.Role, parent.Err())
	case domain.IsKind(err, domain.ErrSpecialistTimeout), domain.IsKind(err, domain.ErrSpecialistFailure):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return domain.WrapError(domain.ErrSpecialistTimeout, op, err)
	default:
		return domain.WrapError(domain.ErrSpecialistFailure, op, err)
	}
}

// retryableSpecialistError allows another attempt for per-attempt timeouts and
// temporary backend errors. Explicit specialist failures are final.
func retryableSpecialistError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return true
	}
	return domain.IsKind(err, domain.ErrSpecialistTimeout)
}

func workflowCancelled(role domain.Role, cause error) error {
	return domain.WrapError(domain.ErrSpecialistTimeout, "specialist "+string(role), fmt.Errorf("workflow cancelled: %w", cause))
}

func validatePayload(p domain.SpecialistPayload) error {
	if p.Empty() {
		return errors.New("specialist returned an empty payload")
	}
	if math.IsNaN(p.Quality) || p.Quality < 0 || p.Quality > 1 {
		return fmt.Errorf("quality %v outside [0,1]", p.Quality)
	}
	return nil
}

func validateDispatchPlan(plan domain.WorkPlan) error {
	if len(plan.Roles) == 0 {
		return errors.New("plan has no roles")
	}
	if plan.RoleTimeout <= 0 {
		return errors.New("plan role timeout must be positive")
	}
	if plan.RetryBudget < 0 {
		return errors.New("plan retry budget must be >= 0")
	}
	seen := make(map[domain.Role]struct{}, len(plan.Roles))
	for _, role := range plan.Roles {
		if _, dup := seen[role]; dup {
			return fmt.Errorf("duplicate role %s in plan", role)
		}
		seen[role] = struct{}{}
	}
	return nil
}

func roleFocus(role domain.Role) string {
	switch role {
	case domain.RoleContext:
		return "precedent lookup for previously validated systems"
	case domain.RoleSME:
		return "domain-expert compliance review"
	case domain.RoleResearch:
		return "external regulatory research"
	default:
		return ""
	}
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

type nopObserver struct{}

func (nopObserver) ObserveSpecialistResult(domain.SpecialistResult)         {}
func (nopObserver) ObserveOutcome(*domain.AggregatedOutcome, time.Duration) {}
func (nopObserver) ObserveFailure(domain.WorkflowState, time.Duration)      {}
