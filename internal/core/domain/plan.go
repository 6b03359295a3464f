package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleContext  Role = "context"
	RoleSME      Role = "sme"
	RoleResearch Role = "research"
)

// Roles returns the canonical role order used for plans and dispatch results.
func Roles() []Role {
	return []Role{RoleContext, RoleSME, RoleResearch}
}

func ParseRole(raw string) (Role, error) {
	candidate := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, r := range Roles() {
		if r == candidate {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown specialist role %q", raw)
}

func (r Role) order() int {
	for i, known := range Roles() {
		if known == r {
			return i
		}
	}
	return len(Roles())
}

// SortRoles orders roles canonically in place.
func SortRoles(roles []Role) {
	for i := 1; i < len(roles); i++ {
		for j := i; j > 0 && roles[j].order() < roles[j-1].order(); j-- {
			roles[j], roles[j-1] = roles[j-1], roles[j]
		}
	}
}

type TestCountRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (r TestCountRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

type WorkPlan struct {
	ID              string         `json:"id"`
	Category        Category       `json:"category"`
	Confidence      float64        `json:"confidence"`
	Roles           []Role         `json:"roles"`
	RequiredResults int            `json:"required_results"`
	RoleTimeout     time.Duration  `json:"role_timeout"`
	RetryBudget     int            `json:"retry_budget"`
	MinQuality      float64        `json:"min_quality"`
	TestCount       TestCountRange `json:"test_count"`
	LowConfidence   bool           `json:"low_confidence"`
	RequiresReview  bool           `json:"requires_review"`
}

func (p WorkPlan) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Strategy struct {
	Roles           []Role         `yaml:"roles"`
	RequiredResults int            `yaml:"required_results"`
	RoleTimeout     time.Duration  `yaml:"role_timeout"`
	RetryBudget     int            `yaml:"retry_budget"`
	MinQuality      float64        `yaml:"min_quality"`
	TestCount       TestCountRange `yaml:"test_count"`
}

type PlannerConfig struct {
	Strategies                map[Category]Strategy `yaml:"strategies"`
	ConfidenceThreshold       float64               `yaml:"confidence_threshold"`
	ReviewRole                Role                  `yaml:"review_role"`
	LowConfidenceExtraResults int                   `yaml:"low_confidence_extra_results"`
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Strategies: map[Category]Strategy{
			CategoryInfrastructure: {
				Roles:           []Role{RoleContext},
				RequiredResults: 1,
				RoleTimeout:     20 * time.Second,
				RetryBudget:     1,
				MinQuality:      0.5,
				TestCount:       TestCountRange{Min: 3, Max: 5},
			},
			CategoryLowRisk: {
				Roles:           []Role{RoleContext, RoleSME},
				RequiredResults: 2,
				RoleTimeout:     30 * time.Second,
				RetryBudget:     1,
				MinQuality:      0.5,
				TestCount:       TestCountRange{Min: 5, Max: 10},
			},
			CategoryMediumRisk: {
				Roles:           []Role{RoleContext, RoleSME, RoleResearch},
				RequiredResults: 3,
				RoleTimeout:     45 * time.Second,
				RetryBudget:     2,
				MinQuality:      0.5,
				TestCount:       TestCountRange{Min: 15, Max: 20},
			},
			CategoryHighRisk: {
				Roles:           []Role{RoleContext, RoleSME, RoleResearch},
				RequiredResults: 3,
				RoleTimeout:     60 * time.Second,
				RetryBudget:     2,
				MinQuality:      0.5,
				TestCount:       TestCountRange{Min: 25, Max: 30},
			},
		},
		ConfidenceThreshold:       0.6,
		ReviewRole:                RoleSME,
		LowConfidenceExtraResults: 1,
	}
}
