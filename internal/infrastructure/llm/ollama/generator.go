package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

var suiteNamespace = uuid.MustParse("0c7a3f8e-9b1d-4e55-8a2f-5d6e7f8091ab")

// SuiteGenerator turns specialist evidence into an OQ test suite. The suite id is
// derived from the document and plan so reruns produce the same id.
type SuiteGenerator struct {
	client *Client
}

func NewSuiteGenerator(client *Client) *SuiteGenerator {
	return &SuiteGenerator{client: client}
}

func (g *SuiteGenerator) Generate(
	ctx context.Context,
	doc *domain.Document,
	plan domain.WorkPlan,
	results []domain.SpecialistResult,
) (domain.TestSuite, error) {
	respText, err := g.client.generateJSON(ctx, "generate_suite", buildSuitePrompt(doc, plan, results))
	if err != nil {
		return domain.TestSuite{}, err
	}

	var resp struct {
		Tests []domain.TestCase `json:"tests"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &resp); err != nil {
		return domain.TestSuite{}, domain.WrapError(domain.ErrParsing, "parse suite json", err)
	}

	for i := range resp.Tests {
		if strings.TrimSpace(resp.Tests[i].ID) == "" {
			resp.Tests[i].ID = fmt.Sprintf("OQ-%03d", i+1)
		}
		resp.Tests[i].Steps = compact(resp.Tests[i].Steps)
	}

	return domain.TestSuite{
		ID:       uuid.NewSHA1(suiteNamespace, []byte(doc.ID+"/"+plan.ID)).String(),
		Category: plan.Category,
		GAMP:     plan.Category.GAMPLevel(),
		Tests:    resp.Tests,
	}, nil
}
