package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

type SMESpecialist struct {
	reviewer ports.ExpertReviewer
}

func NewSMESpecialist(reviewer ports.ExpertReviewer) *SMESpecialist {
	return &SMESpecialist{reviewer: reviewer}
}

func (s *SMESpecialist) Role() domain.Role { return domain.RoleSME }

func (s *SMESpecialist) Handle(ctx context.Context, req domain.SpecialistRequest) (domain.SpecialistPayload, error) {
	review, err := s.reviewer.Review(ctx, req)
	if err != nil {
		if domain.IsKind(err, domain.ErrParsing) {
			return domain.SpecialistPayload{}, failure(domain.RoleSME, err)
		}
		return domain.SpecialistPayload{}, fmt.Errorf("expert review: %w", err)
	}
	if len(review.Findings) == 0 {
		return domain.SpecialistPayload{}, failure(domain.RoleSME, errors.New("review produced no findings"))
	}
	if review.Quality < 0 || review.Quality > 1 {
		return domain.SpecialistPayload{}, failure(domain.RoleSME, fmt.Errorf("review quality %v outside [0,1]", review.Quality))
	}

	findings := append([]string(nil), review.Findings...)
	for _, risk := range review.Risks {
		findings = append(findings, "risk: "+risk)
	}
	summary := review.Summary
	if strings.TrimSpace(summary) == "" {
		summary = fmt.Sprintf("%d review findings", len(review.Findings))
	}
	return domain.SpecialistPayload{
		Summary:  summary,
		Findings: findings,
		Quality:  review.Quality,
	}, nil
}
