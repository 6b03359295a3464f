package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

const maxSnippet = 4000

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) > maxSnippet {
		return string(runes[:maxSnippet])
	}
	return text
}

func buildClassificationPrompt(text string) string {
	return `You are a GAMP 5 software categorization assistant for pharmaceutical validation.
Assign exactly one category to the user requirements document below:
- infrastructure: operating systems, databases, network and platform software (GAMP category 1)
- low-risk: non-configured commercial products used as supplied (GAMP category 3)
- medium-risk: configured products whose configuration drives regulated behaviour (GAMP category 4)
- high-risk: custom or bespoke software (GAMP category 5)
Return strict JSON object with keys:
category (one of the four names above), confidence (number from 0 to 1), rationale (string), evidence (array of short quotes).
No markdown, no extra keys.

Document:
` + snippet(text)
}

func buildReviewPrompt(req domain.SpecialistRequest) string {
	return fmt.Sprintf(`You are a computer system validation subject matter expert.
Review the requirements excerpt for a %s system (GAMP category %d).
Focus: %s.
Return strict JSON object with keys:
summary (string), findings (array of strings), risks (array of strings), quality (number from 0 to 1 rating how well the excerpt supports OQ testing).
No markdown, no extra keys.

Document %s:
%s
`, req.Payload.Category, req.Payload.Category.GAMPLevel(), req.Payload.Focus, req.Payload.DocumentName, snippet(req.Payload.Excerpt))
}

func buildSuitePrompt(doc *domain.Document, plan domain.WorkPlan, results []domain.SpecialistResult) string {
	var evidence strings.Builder
	for _, r := range results {
		if r.Payload == nil {
			continue
		}
		fmt.Fprintf(&evidence, "[%s] %s\n", r.Role, r.Payload.Summary)
		for _, f := range r.Payload.Findings {
			fmt.Fprintf(&evidence, "  - %s\n", f)
		}
		for _, ref := range r.Payload.References {
			fmt.Fprintf(&evidence, "  ref: %s\n", ref)
		}
	}

	return fmt.Sprintf(`Write an Operational Qualification (OQ) test suite for a GAMP category %d (%s) system.
Produce between %d and %d test cases.
Return strict JSON object with key tests: array of objects with keys
id (string like OQ-001), title, objective, steps (array of strings), expected_result, requirement_refs (array of strings), risk (low|medium|high).
No markdown, no extra keys.

Specialist evidence:
%s
Requirements document %s:
%s
`, plan.Category.GAMPLevel(), plan.Category, plan.TestCount.Min, plan.TestCount.Max, evidence.String(), doc.Name, snippet(doc.Content))
}
