package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// Classifier asks the generation model for a category assignment.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

type classificationResponse struct {
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Evidence   []string `json:"evidence"`
}

func (c *Classifier) Classify(ctx context.Context, doc *domain.Document) (domain.CategoryAssignment, error) {
	respText, err := c.client.generateJSON(ctx, "classify", buildClassificationPrompt(doc.Content))
	if err != nil {
		return domain.CategoryAssignment{}, err
	}
	return parseClassification(respText)
}

// parseClassification never clamps or substitutes: malformed model output is a
// parsing error.
func parseClassification(raw string) (domain.CategoryAssignment, error) {
	var resp classificationResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &resp); err != nil {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrParsing, "parse classification json", err)
	}
	category, err := domain.ParseCategory(resp.Category)
	if err != nil {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrParsing, "parse classification", err)
	}
	if resp.Confidence == nil {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrParsing, "parse classification", fmt.Errorf("confidence missing"))
	}
	confidence := *resp.Confidence
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return domain.CategoryAssignment{}, domain.WrapError(domain.ErrParsing, "parse classification", fmt.Errorf("confidence %v outside [0,1]", confidence))
	}
	return domain.CategoryAssignment{
		Category:   category,
		Confidence: confidence,
		Rationale:  resp.Rationale,
		Evidence:   resp.Evidence,
	}, nil
}
