package domain

import "time"

type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeEscalated OutcomeStatus = "escalated"
)

type EscalationReason string

const (
	ReasonLowConfidence       EscalationReason = "low_confidence"
	ReasonRoleMissing         EscalationReason = "role_missing"
	ReasonRoleFailed          EscalationReason = "role_failed"
	ReasonRoleTimedOut        EscalationReason = "role_timed_out"
	ReasonLowQuality          EscalationReason = "low_quality"
	ReasonInsufficientResults EscalationReason = "insufficient_results"
	ReasonGenerationFailed    EscalationReason = "generation_failed"
)

type RoleIssue struct {
	Role   Role             `json:"role"`
	Reason EscalationReason `json:"reason"`
	Detail string           `json:"detail,omitempty"`
}

type Escalation struct {
	Reasons        []EscalationReason `json:"reasons"`
	Roles          []RoleIssue        `json:"roles,omitempty"`
	PartialResults []SpecialistResult `json:"partial_results,omitempty"`
	Message        string             `json:"message"`
	// PublishedAt is set once reviewers have been notified.
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// MissingRoles lists every role named by the escalation in report order.
func (e Escalation) MissingRoles() []Role {
	out := make([]Role, 0, len(e.Roles))
	for _, issue := range e.Roles {
		out = append(out, issue.Role)
	}
	return out
}

type TestCase struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Objective       string   `json:"objective"`
	Steps           []string `json:"steps"`
	ExpectedResult  string   `json:"expected_result"`
	RequirementRefs []string `json:"requirement_refs,omitempty"`
	Risk            string   `json:"risk,omitempty"`
}

type TestSuite struct {
	ID       string     `json:"id"`
	Category Category   `json:"category"`
	GAMP     int        `json:"gamp_category"`
	Tests    []TestCase `json:"tests"`
}

type Artifact struct {
	Suite       TestSuite `json:"suite"`
	SourceRoles []Role    `json:"source_roles"`
}

type AggregatedOutcome struct {
	DocumentID string                    `json:"document_id"`
	Status     OutcomeStatus             `json:"status"`
	Assignment CategoryAssignment        `json:"assignment"`
	Plan       WorkPlan                  `json:"plan"`
	Results    map[Role]SpecialistResult `json:"results"`
	Artifact   *Artifact                 `json:"artifact,omitempty"`
	Escalation *Escalation               `json:"escalation,omitempty"`
	CreatedAt  time.Time                 `json:"created_at"`
}

func (o AggregatedOutcome) Completed() bool {
	return o.Status == OutcomeCompleted && o.Artifact != nil
}

// EscalationPending reports an escalation that has not reached reviewers yet.
func (o AggregatedOutcome) EscalationPending() bool {
	return o.Status == OutcomeEscalated && o.Escalation != nil && o.Escalation.PublishedAt == nil
}
