package nats

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

type escalationEnvelope struct {
	DocumentID     string                    `json:"document_id"`
	Category       domain.Category           `json:"category"`
	GAMP           int                       `json:"gamp_category"`
	Confidence     float64                   `json:"confidence"`
	PlanID         string                    `json:"plan_id"`
	RequiresReview bool                      `json:"requires_review"`
	Reasons        []domain.EscalationReason `json:"reasons"`
	Roles          []domain.RoleIssue        `json:"roles,omitempty"`
	PartialRoles   []domain.Role             `json:"partial_roles,omitempty"`
	Message        string                    `json:"message"`
}

func encodeEscalation(outcome *domain.AggregatedOutcome) ([]byte, error) {
	if outcome == nil || outcome.Escalation == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode escalation", errors.New("outcome has no escalation"))
	}
	env := escalationEnvelope{
		DocumentID:     outcome.DocumentID,
		Category:       outcome.Assignment.Category,
		GAMP:           outcome.Assignment.Category.GAMPLevel(),
		Confidence:     outcome.Assignment.Confidence,
		PlanID:         outcome.Plan.ID,
		RequiresReview: outcome.Plan.RequiresReview,
		Reasons:        outcome.Escalation.Reasons,
		Roles:          outcome.Escalation.Roles,
		Message:        outcome.Escalation.Message,
	}
	for _, r := range outcome.Escalation.PartialResults {
		env.PartialRoles = append(env.PartialRoles, r.Role)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal escalation: %w", err)
	}
	return data, nil
}
