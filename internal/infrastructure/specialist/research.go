package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

type ResearchSpecialist struct {
	searcher ports.RegulatorySearcher
	limit    int
}

func NewResearchSpecialist(searcher ports.RegulatorySearcher, limit int) *ResearchSpecialist {
	if limit <= 0 {
		limit = 5
	}
	return &ResearchSpecialist{searcher: searcher, limit: limit}
}

func (s *ResearchSpecialist) Role() domain.Role { return domain.RoleResearch }

// Handle searches with a query built from the category and the first lines of the
// excerpt. Quality is the share of hits that carry a citation.
func (s *ResearchSpecialist) Handle(ctx context.Context, req domain.SpecialistRequest) (domain.SpecialistPayload, error) {
	refs, err := s.searcher.Search(ctx, researchQuery(req), s.limit)
	if err != nil {
		if domain.IsKind(err, domain.ErrParsing) || domain.IsKind(err, domain.ErrInvalidInput) {
			return domain.SpecialistPayload{}, failure(domain.RoleResearch, err)
		}
		return domain.SpecialistPayload{}, fmt.Errorf("regulatory search: %w", err)
	}
	if len(refs) == 0 {
		return domain.SpecialistPayload{}, failure(domain.RoleResearch, errors.New("no regulatory references"))
	}

	findings := make([]string, 0, len(refs))
	citations := make([]string, 0, len(refs))
	cited := 0
	for _, ref := range refs {
		findings = append(findings, fmt.Sprintf("%s %s: %s", ref.Source, ref.Title, trimText(ref.Excerpt, 200)))
		if strings.TrimSpace(ref.Citation) != "" {
			cited++
			citations = append(citations, ref.Citation)
		}
	}

	return domain.SpecialistPayload{
		Summary:    fmt.Sprintf("%d regulatory references for GAMP category %d", len(refs), req.Payload.Category.GAMPLevel()),
		Findings:   findings,
		References: citations,
		Quality:    float64(cited) / float64(len(refs)),
	}, nil
}

func researchQuery(req domain.SpecialistRequest) string {
	lines := strings.Split(req.Payload.Excerpt, "\n")
	var head []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			head = append(head, trimmed)
		}
		if len(head) == 3 {
			break
		}
	}
	return trimText(fmt.Sprintf("GAMP 5 category %d %s OQ validation %s",
		req.Payload.Category.GAMPLevel(), req.Payload.Category, strings.Join(head, " ")), 300)
}
