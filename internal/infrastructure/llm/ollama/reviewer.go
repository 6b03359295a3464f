package ollama

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// Reviewer performs the SME compliance review.
type Reviewer struct {
	client *Client
}

func NewReviewer(client *Client) *Reviewer {
	return &Reviewer{client: client}
}

func (r *Reviewer) Review(ctx context.Context, req domain.SpecialistRequest) (domain.ExpertReview, error) {
	respText, err := r.client.generateJSON(ctx, "review", buildReviewPrompt(req))
	if err != nil {
		return domain.ExpertReview{}, err
	}

	var review domain.ExpertReview
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &review); err != nil {
		return domain.ExpertReview{}, domain.WrapError(domain.ErrParsing, "parse review json", err)
	}
	review.Summary = strings.TrimSpace(review.Summary)
	review.Findings = compact(review.Findings)
	review.Risks = compact(review.Risks)
	return review, nil
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
