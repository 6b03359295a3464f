package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// StrategyPlanner maps category assignments onto work plans using a static table.
type StrategyPlanner struct {
	cfg domain.PlannerConfig
}

// NewStrategyPlanner validates cfg and keeps a private copy of it.
func NewStrategyPlanner(cfg domain.PlannerConfig) (*StrategyPlanner, error) {
	if err := validatePlannerConfig(cfg); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "new strategy planner", err)
	}
	return &StrategyPlanner{cfg: clonePlannerConfig(cfg)}, nil
}

func (p *StrategyPlanner) Threshold() float64 {
	return p.cfg.ConfidenceThreshold
}

func (p *StrategyPlanner) Plan(assignment domain.CategoryAssignment) (domain.WorkPlan, error) {
	if math.IsNaN(assignment.Confidence) || assignment.Confidence < 0 || assignment.Confidence > 1 {
		return domain.WorkPlan{}, domain.WrapError(
			domain.ErrInvalidInput,
			"plan strategy",
			fmt.Errorf("confidence %v outside [0,1]", assignment.Confidence),
		)
	}

	strategy, ok := p.cfg.Strategies[assignment.Category]
	if !ok {
		return domain.WorkPlan{}, domain.WrapError(
			domain.ErrConfiguration,
			"plan strategy",
			fmt.Errorf("no strategy for category %q", assignment.Category),
		)
	}

	roles := append([]domain.Role(nil), strategy.Roles...)
	required := strategy.RequiredResults
	lowConfidence := assignment.LowConfidence || assignment.Confidence < p.cfg.ConfidenceThreshold

	if lowConfidence {
		if !containsRole(roles, p.cfg.ReviewRole) {
			roles = append(roles, p.cfg.ReviewRole)
		}
		required += p.cfg.LowConfidenceExtraResults
	}
	domain.SortRoles(roles)
	if required > len(roles) {
		required = len(roles)
	}

	plan := domain.WorkPlan{
		Category:        assignment.Category,
		Confidence:      assignment.Confidence,
		Roles:           roles,
		RequiredResults: required,
		RoleTimeout:     strategy.RoleTimeout,
		RetryBudget:     strategy.RetryBudget,
		MinQuality:      strategy.MinQuality,
		TestCount:       strategy.TestCount,
		LowConfidence:   lowConfidence,
		RequiresReview:  lowConfidence,
	}
	plan.ID = planID(plan)
	return plan, nil
}

func planID(plan domain.WorkPlan) string {
	roles := make([]string, 0, len(plan.Roles))
	for _, r := range plan.Roles {
		roles = append(roles, string(r))
	}
	fingerprint := fmt.Sprintf("%s|%.6f|%s|%d|%s|%d|%.4f|%d-%d|%t",
		plan.Category,
		plan.Confidence,
		strings.Join(roles, ","),
		plan.RequiredResults,
		plan.RoleTimeout,
		plan.RetryBudget,
		plan.MinQuality,
		plan.TestCount.Min,
		plan.TestCount.Max,
		plan.LowConfidence,
	)
	sum := sha256.Sum256([]byte(fingerprint))
	return "plan-" + hex.EncodeToString(sum[:8])
}

func validatePlannerConfig(cfg domain.PlannerConfig) error {
	if len(cfg.Strategies) == 0 {
		return errors.New("strategy table is empty")
	}
	if math.IsNaN(cfg.ConfidenceThreshold) || cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside (0,1]", cfg.ConfidenceThreshold)
	}
	if err := canonicalRole(cfg.ReviewRole); err != nil {
		return fmt.Errorf("review role: %w", err)
	}
	if cfg.LowConfidenceExtraResults < 0 {
		return fmt.Errorf("low confidence extra results must be >= 0, got %d", cfg.LowConfidenceExtraResults)
	}

	for category, strategy := range cfg.Strategies {
		if parsed, err := domain.ParseCategory(string(category)); err != nil {
			return err
		} else if parsed != category {
			return fmt.Errorf("category %q must be written as %q", category, parsed)
		}
		if len(strategy.Roles) == 0 {
			return fmt.Errorf("category %s: no specialist roles", category)
		}
		seen := make(map[domain.Role]struct{}, len(strategy.Roles))
		for _, role := range strategy.Roles {
			if err := canonicalRole(role); err != nil {
				return fmt.Errorf("category %s: %w", category, err)
			}
			if _, dup := seen[role]; dup {
				return fmt.Errorf("category %s: duplicate role %s", category, role)
			}
			seen[role] = struct{}{}
		}
		if strategy.RequiredResults < 1 || strategy.RequiredResults > len(strategy.Roles) {
			return fmt.Errorf("category %s: required results %d outside [1,%d]", category, strategy.RequiredResults, len(strategy.Roles))
		}
		if strategy.RoleTimeout <= 0 {
			return fmt.Errorf("category %s: role timeout must be positive", category)
		}
		if strategy.RetryBudget < 0 {
			return fmt.Errorf("category %s: retry budget must be >= 0", category)
		}
		if math.IsNaN(strategy.MinQuality) || strategy.MinQuality < 0 || strategy.MinQuality > 1 {
			return fmt.Errorf("category %s: min quality %v outside [0,1]", category, strategy.MinQuality)
		}
		if strategy.TestCount.Min < 1 || strategy.TestCount.Max < strategy.TestCount.Min {
			return fmt.Errorf("category %s: invalid test count range %d-%d", category, strategy.TestCount.Min, strategy.TestCount.Max)
		}
	}
	return nil
}

// canonicalRole rejects unknown roles and spellings the registry would not match.
func canonicalRole(role domain.Role) error {
	parsed, err := domain.ParseRole(string(role))
	if err != nil {
		return err
	}
	if parsed != role {
		return fmt.Errorf("role %q must be written as %q", role, parsed)
	}
	return nil
}

func clonePlannerConfig(cfg domain.PlannerConfig) domain.PlannerConfig {
	out := cfg
	out.Strategies = make(map[domain.Category]domain.Strategy, len(cfg.Strategies))
	for category, strategy := range cfg.Strategies {
		strategy.Roles = append([]domain.Role(nil), strategy.Roles...)
		out.Strategies[category] = strategy
	}
	return out
}

func containsRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
