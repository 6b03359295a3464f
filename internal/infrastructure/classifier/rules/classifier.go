// Package rules is a deterministic keyword classifier. It needs no model and is
// used by the offline CLI and as the fallback when no LLM is configured.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

type Indicator struct {
	Phrase string
	Weight float64
}

var defaultIndicators = map[domain.Category][]Indicator{
	domain.CategoryInfrastructure: {
		{"operating system", 2}, {"network", 1.5}, {"firewall", 1.5}, {"database server", 2},
		{"virtualization", 1.5}, {"hypervisor", 2}, {"backup infrastructure", 1}, {"active directory", 1.5},
	},
	domain.CategoryLowRisk: {
		{"off-the-shelf", 2}, {"cots", 2}, {"commercial software", 1.5}, {"used as supplied", 2.5},
		{"standard configuration", 1.5}, {"no configuration", 2}, {"vendor default", 1.5},
	},
	domain.CategoryMediumRisk: {
		{"configurable", 1.5}, {"configured", 1.5}, {"workflow configuration", 2}, {"user-defined", 1.5},
		{"parameterized", 1.5}, {"lims", 1.5}, {"erp", 1.5}, {"electronic signature", 1}, {"audit trail", 1},
	},
	domain.CategoryHighRisk: {
		{"custom", 2}, {"bespoke", 2.5}, {"developed in-house", 2.5}, {"custom code", 2.5},
		{"proprietary algorithm", 2}, {"batch release", 1.5}, {"calculation", 1}, {"source code", 2},
	},
}

// Classifier scores weighted phrase matches per category. Confidence is the winning
// category's share of the total matched weight. Without any match the document is
// reported as high-risk with confidence 0, which always falls below the review
// threshold.
type Classifier struct {
	indicators map[domain.Category][]Indicator
}

func New() *Classifier {
	return &Classifier{indicators: defaultIndicators}
}

func NewWithIndicators(indicators map[domain.Category][]Indicator) (*Classifier, error) {
	for category, list := range indicators {
		if _, err := domain.ParseCategory(string(category)); err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "rules classifier", err)
		}
		for _, ind := range list {
			if strings.TrimSpace(ind.Phrase) == "" || ind.Weight <= 0 {
				return nil, domain.WrapError(domain.ErrConfiguration, "rules classifier", fmt.Errorf("invalid indicator %+v for %s", ind, category))
			}
		}
	}
	return &Classifier{indicators: indicators}, nil
}

func (c *Classifier) Classify(_ context.Context, doc *domain.Document) (domain.CategoryAssignment, error) {
	text := normalize(doc.Content)

	scores := make(map[domain.Category]float64, len(c.indicators))
	evidence := make(map[domain.Category][]string, len(c.indicators))
	var total float64
	for category, list := range c.indicators {
		for _, ind := range list {
			n := strings.Count(text, normalize(ind.Phrase))
			if n == 0 {
				continue
			}
			w := ind.Weight * float64(n)
			scores[category] += w
			total += w
			evidence[category] = append(evidence[category], ind.Phrase)
		}
	}

	if total == 0 {
		return domain.CategoryAssignment{
			Category:   domain.CategoryHighRisk,
			Confidence: 0,
			Rationale:  "no indicators",
		}, nil
	}

	// Ties resolve toward the higher-risk category.
	categories := domain.Categories()
	winner := categories[0]
	for _, category := range categories[1:] {
		if scores[category] >= scores[winner] {
			winner = category
		}
	}

	found := evidence[winner]
	sort.Strings(found)
	return domain.CategoryAssignment{
		Category:   winner,
		Confidence: scores[winner] / total,
		Rationale:  fmt.Sprintf("%.1f of %.1f indicator weight points to %s", scores[winner], total, winner),
		Evidence:   found,
	}, nil
}

// normalize lowercases text and pads every word with spaces so phrases match on
// word boundaries only.
func normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	return " " + strings.Join(fields, " ") + " "
}
