package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// ResultAggregator folds specialist results into a completed or escalated outcome.
// It never builds a completed outcome from incomplete or low-confidence input.
type ResultAggregator struct {
	now func() time.Time
}

func NewResultAggregator() *ResultAggregator {
	return &ResultAggregator{now: func() time.Time { return time.Now().UTC() }}
}

func (a *ResultAggregator) Aggregate(
	documentID string,
	assignment domain.CategoryAssignment,
	plan domain.WorkPlan,
	results []domain.SpecialistResult,
) domain.AggregatedOutcome {
	byRole := make(map[domain.Role][]domain.SpecialistResult, len(plan.Roles))
	for _, r := range results {
		byRole[r.Role] = append(byRole[r.Role], r)
	}

	outcome := domain.AggregatedOutcome{
		DocumentID: documentID,
		Assignment: assignment,
		Plan:       plan,
		Results:    make(map[domain.Role]domain.SpecialistResult, len(plan.Roles)),
		CreatedAt:  a.now(),
	}

	var issues []domain.RoleIssue
	var partial []domain.SpecialistResult
	qualifying := 0

	for _, role := range plan.Roles {
		got := byRole[role]
		switch {
		case len(got) == 0:
			issues = append(issues, domain.RoleIssue{Role: role, Reason: domain.ReasonRoleMissing, Detail: "no result recorded"})
			continue
		case len(got) > 1:
			issues = append(issues, domain.RoleIssue{
				Role:   role,
				Reason: domain.ReasonRoleFailed,
				Detail: fmt.Sprintf("%d results recorded for one request", len(got)),
			})
			continue
		}

		r := got[0]
		outcome.Results[role] = r
		switch {
		case r.Status == domain.ResultTimedOut:
			issues = append(issues, domain.RoleIssue{Role: role, Reason: domain.ReasonRoleTimedOut, Detail: r.Error})
		case r.Status != domain.ResultSucceeded:
			issues = append(issues, domain.RoleIssue{Role: role, Reason: domain.ReasonRoleFailed, Detail: r.Error})
		case r.Payload == nil:
			issues = append(issues, domain.RoleIssue{Role: role, Reason: domain.ReasonRoleFailed, Detail: "succeeded without payload"})
		case r.Payload.Quality < plan.MinQuality:
			partial = append(partial, r)
			issues = append(issues, domain.RoleIssue{
				Role:   role,
				Reason: domain.ReasonLowQuality,
				Detail: fmt.Sprintf("quality %.2f below minimum %.2f", r.Payload.Quality, plan.MinQuality),
			})
		default:
			partial = append(partial, r)
			qualifying++
		}
	}

	var reasons []domain.EscalationReason
	if plan.LowConfidence {
		reasons = append(reasons, domain.ReasonLowConfidence)
	}
	for _, issue := range issues {
		reasons = appendReason(reasons, issue.Reason)
	}
	if qualifying < plan.RequiredResults {
		reasons = appendReason(reasons, domain.ReasonInsufficientResults)
	}

	if len(reasons) == 0 {
		outcome.Status = domain.OutcomeCompleted
		outcome.Artifact = &domain.Artifact{SourceRoles: append([]domain.Role(nil), plan.Roles...)}
		return outcome
	}

	outcome.Status = domain.OutcomeEscalated
	outcome.Escalation = &domain.Escalation{
		Reasons:        reasons,
		Roles:          issues,
		PartialResults: partial,
		Message:        escalationMessage(assignment, plan, reasons, issues, qualifying),
	}
	return outcome
}

// AttachSuite completes a completed outcome with its generated suite. A generation
// error or a suite that does not satisfy the plan turns the outcome into an escalation.
func (a *ResultAggregator) AttachSuite(outcome domain.AggregatedOutcome, suite domain.TestSuite, genErr error) domain.AggregatedOutcome {
	if outcome.Status != domain.OutcomeCompleted || outcome.Artifact == nil {
		return outcome
	}

	err := genErr
	if err == nil {
		err = validateSuite(suite, outcome.Plan)
	}
	if err == nil {
		artifact := *outcome.Artifact
		artifact.Suite = suite
		outcome.Artifact = &artifact
		return outcome
	}

	partial := make([]domain.SpecialistResult, 0, len(outcome.Results))
	for _, role := range outcome.Plan.Roles {
		if r, ok := outcome.Results[role]; ok && r.Succeeded() {
			partial = append(partial, r)
		}
	}
	outcome.Status = domain.OutcomeEscalated
	outcome.Artifact = nil
	outcome.Escalation = &domain.Escalation{
		Reasons:        []domain.EscalationReason{domain.ReasonGenerationFailed},
		PartialResults: partial,
		Message:        "test suite generation failed: " + err.Error(),
	}
	return outcome
}

func validateSuite(suite domain.TestSuite, plan domain.WorkPlan) error {
	if !plan.TestCount.Contains(len(suite.Tests)) {
		return fmt.Errorf("suite has %d tests, plan requires %d-%d", len(suite.Tests), plan.TestCount.Min, plan.TestCount.Max)
	}
	seen := make(map[string]struct{}, len(suite.Tests))
	for i, tc := range suite.Tests {
		switch {
		case strings.TrimSpace(tc.ID) == "":
			return fmt.Errorf("test %d has no id", i+1)
		case strings.TrimSpace(tc.Title) == "":
			return fmt.Errorf("test %s has no title", tc.ID)
		case len(tc.Steps) == 0:
			return fmt.Errorf("test %s has no steps", tc.ID)
		case strings.TrimSpace(tc.ExpectedResult) == "":
			return fmt.Errorf("test %s has no expected result", tc.ID)
		}
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("duplicate test id %s", tc.ID)
		}
		seen[tc.ID] = struct{}{}
	}
	if suite.Category != "" && suite.Category != plan.Category {
		return errors.New("suite category does not match plan category")
	}
	return nil
}

func appendReason(reasons []domain.EscalationReason, reason domain.EscalationReason) []domain.EscalationReason {
	for _, r := range reasons {
		if r == reason {
			return reasons
		}
	}
	return append(reasons, reason)
}

func escalationMessage(
	assignment domain.CategoryAssignment,
	plan domain.WorkPlan,
	reasons []domain.EscalationReason,
	issues []domain.RoleIssue,
	qualifying int,
) string {
	parts := make([]string, 0, len(issues)+2)
	if plan.LowConfidence {
		parts = append(parts, fmt.Sprintf("category %s assigned with confidence %.2f requires human review", assignment.Category, assignment.Confidence))
	}
	for _, issue := range issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Role, issue.Reason))
	}
	if containsReason(reasons, domain.ReasonInsufficientResults) {
		parts = append(parts, fmt.Sprintf("%d of %d required results available", qualifying, plan.RequiredResults))
	}
	return strings.Join(parts, "; ")
}

func containsReason(reasons []domain.EscalationReason, reason domain.EscalationReason) bool {
	for _, r := range reasons {
		if r == reason {
			return true
		}
	}
	return false
}
