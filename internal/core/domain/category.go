package domain

import (
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryLowRisk        Category = "low-risk"
	CategoryMediumRisk     Category = "medium-risk"
	CategoryHighRisk       Category = "high-risk"
)

// Categories lists every known category ordered by increasing risk.
func Categories() []Category {
	return []Category{CategoryInfrastructure, CategoryLowRisk, CategoryMediumRisk, CategoryHighRisk}
}

func ParseCategory(raw string) (Category, error) {
	candidate := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, c := range Categories() {
		if c == candidate {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

// GAMPLevel maps a category onto the GAMP 5 software category used in reports.
func (c Category) GAMPLevel() int {
	switch c {
	case CategoryInfrastructure:
		return 1
	case CategoryLowRisk:
		return 3
	case CategoryMediumRisk:
		return 4
	case CategoryHighRisk:
		return 5
	default:
		return 0
	}
}

type CategoryAssignment struct {
	Category      Category  `json:"category"`
	Confidence    float64   `json:"confidence"`
	Rationale     string    `json:"rationale"`
	Evidence      []string  `json:"evidence,omitempty"`
	LowConfidence bool      `json:"low_confidence"`
	ClassifiedAt  time.Time `json:"classified_at"`
}
