package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// LoadPlannerConfig returns the built-in planner table, overlaid with the YAML
// file at path when path is set, and with a positive threshold override. The
// table is validated later by the planner itself.
func LoadPlannerConfig(path string, threshold float64) (domain.PlannerConfig, error) {
	cfg := domain.DefaultPlannerConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return domain.PlannerConfig{}, domain.WrapError(domain.ErrConfiguration, "read planner config", err)
		}
		cfg, err = ParsePlannerConfig(raw)
		if err != nil {
			return domain.PlannerConfig{}, err
		}
	}
	if threshold > 0 {
		cfg.ConfidenceThreshold = threshold
	}
	return cfg, nil
}

// ParsePlannerConfig decodes a planner table. Categories listed in the document
// replace the built-in strategy for that category entirely; omitted scalar keys
// keep their defaults. Unknown keys are rejected.
func ParsePlannerConfig(raw []byte) (domain.PlannerConfig, error) {
	cfg := domain.DefaultPlannerConfig()

	var file struct {
		Strategies                map[domain.Category]domain.Strategy `yaml:"strategies"`
		ConfidenceThreshold       *float64                            `yaml:"confidence_threshold"`
		ReviewRole                *domain.Role                        `yaml:"review_role"`
		LowConfidenceExtraResults *int                                `yaml:"low_confidence_extra_results"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return domain.PlannerConfig{}, domain.WrapError(domain.ErrConfiguration, "parse planner config", err)
	}

	overridden := make(map[domain.Category]domain.Category, len(file.Strategies))
	for key, strategy := range file.Strategies {
		category, err := domain.ParseCategory(string(key))
		if err != nil {
			return domain.PlannerConfig{}, domain.WrapError(domain.ErrConfiguration, "parse planner config", err)
		}
		if prev, dup := overridden[category]; dup {
			return domain.PlannerConfig{}, domain.WrapError(domain.ErrConfiguration, "parse planner config",
				fmt.Errorf("strategies %q and %q both name category %s", prev, key, category))
		}
		overridden[category] = key

		roles := make([]domain.Role, len(strategy.Roles))
		for i, name := range strategy.Roles {
			role, err := domain.ParseRole(string(name))
			if err != nil {
				return domain.PlannerConfig{}, domain.WrapError(domain.ErrConfiguration, "parse planner config", fmt.Errorf("category %s: %w", category, err))
			}
			roles[i] = role
		}
		strategy.Roles = roles
		cfg.Strategies[category] = strategy
	}
	if file.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *file.ConfidenceThreshold
	}
	if file.ReviewRole != nil {
		role, err := domain.ParseRole(string(*file.ReviewRole))
		if err != nil {
			return domain.PlannerConfig{}, domain.WrapError(domain.ErrConfiguration, "parse planner config", fmt.Errorf("review_role: %w", err))
		}
		cfg.ReviewRole = role
	}
	if file.LowConfidenceExtraResults != nil {
		cfg.LowConfidenceExtraResults = *file.LowConfidenceExtraResults
	}
	return cfg, nil
}
