package usecase

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

func newDefaultPlanner(t *testing.T) *StrategyPlanner {
	t.Helper()
	planner, err := NewStrategyPlanner(domain.DefaultPlannerConfig())
	if err != nil {
		t.Fatalf("NewStrategyPlanner() error = %v", err)
	}
	return planner
}

func TestPlanIsDeterministic(t *testing.T) {
	planner := newDefaultPlanner(t)
	for _, category := range domain.Categories() {
		for _, confidence := range []float64{0, 0.4, 0.6, 0.95, 1} {
			assignment := domain.CategoryAssignment{Category: category, Confidence: confidence}
			first, err := planner.Plan(assignment)
			if err != nil {
				t.Fatalf("Plan(%s, %v) error = %v", category, confidence, err)
			}
			second, err := planner.Plan(assignment)
			if err != nil {
				t.Fatalf("Plan(%s, %v) error = %v", category, confidence, err)
			}
			if diff := cmp.Diff(first, second); diff != "" {
				t.Fatalf("plan not deterministic for %s/%v (-first +second):\n%s", category, confidence, diff)
			}
		}
	}
}

func TestPlanHighRiskRequiresThreeRoles(t *testing.T) {
	plan, err := newDefaultPlanner(t).Plan(domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.95})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := []domain.Role{domain.RoleContext, domain.RoleSME, domain.RoleResearch}
	if diff := cmp.Diff(want, plan.Roles); diff != "" {
		t.Fatalf("unexpected roles (-want +got):\n%s", diff)
	}
	if plan.RequiredResults != 3 || plan.LowConfidence || plan.RequiresReview {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan.TestCount != (domain.TestCountRange{Min: 25, Max: 30}) {
		t.Fatalf("unexpected test count range: %+v", plan.TestCount)
	}
}

func TestPlanLowConfidenceAddsReviewRole(t *testing.T) {
	plan, err := newDefaultPlanner(t).Plan(domain.CategoryAssignment{Category: domain.CategoryInfrastructure, Confidence: 0.4})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !plan.LowConfidence || !plan.RequiresReview {
		t.Fatalf("expected low-confidence plan, got %+v", plan)
	}
	want := []domain.Role{domain.RoleContext, domain.RoleSME}
	if diff := cmp.Diff(want, plan.Roles); diff != "" {
		t.Fatalf("unexpected roles (-want +got):\n%s", diff)
	}
	if plan.RequiredResults != 2 {
		t.Fatalf("expected required results raised to 2, got %d", plan.RequiredResults)
	}
}

func TestPlanLowConfidenceCapsRequiredResults(t *testing.T) {
	plan, err := newDefaultPlanner(t).Plan(domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.4})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.RequiredResults != len(plan.Roles) {
		t.Fatalf("required results %d must not exceed role count %d", plan.RequiredResults, len(plan.Roles))
	}
	if !plan.LowConfidence {
		t.Fatalf("expected low confidence plan")
	}
}

func TestPlanDiffersAcrossConfidence(t *testing.T) {
	planner := newDefaultPlanner(t)
	high, _ := planner.Plan(domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.95})
	low, _ := planner.Plan(domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.4})
	if high.ID == low.ID {
		t.Fatalf("expected distinct plan ids, got %s", high.ID)
	}
}

func TestPlanUnknownCategoryIsConfigurationError(t *testing.T) {
	_, err := newDefaultPlanner(t).Plan(domain.CategoryAssignment{Category: "general", Confidence: 0.9})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestPlanMissingMappingIsConfigurationError(t *testing.T) {
	cfg := domain.DefaultPlannerConfig()
	delete(cfg.Strategies, domain.CategoryMediumRisk)
	planner, err := NewStrategyPlanner(cfg)
	if err != nil {
		t.Fatalf("NewStrategyPlanner() error = %v", err)
	}
	_, err = planner.Plan(domain.CategoryAssignment{Category: domain.CategoryMediumRisk, Confidence: 0.9})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestPlanRejectsOutOfRangeConfidence(t *testing.T) {
	_, err := newDefaultPlanner(t).Plan(domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 1.5})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewStrategyPlannerValidatesTable(t *testing.T) {
	cases := map[string]func(cfg *domain.PlannerConfig){
		"empty table": func(cfg *domain.PlannerConfig) { cfg.Strategies = nil },
		"no roles": func(cfg *domain.PlannerConfig) {
			s := cfg.Strategies[domain.CategoryLowRisk]
			s.Roles = nil
			cfg.Strategies[domain.CategoryLowRisk] = s
		},
		"duplicate role": func(cfg *domain.PlannerConfig) {
			s := cfg.Strategies[domain.CategoryLowRisk]
			s.Roles = []domain.Role{domain.RoleSME, domain.RoleSME}
			cfg.Strategies[domain.CategoryLowRisk] = s
		},
		"unknown role": func(cfg *domain.PlannerConfig) {
			s := cfg.Strategies[domain.CategoryLowRisk]
			s.Roles = []domain.Role{"oracle"}
			cfg.Strategies[domain.CategoryLowRisk] = s
		},
		"required above roles": func(cfg *domain.PlannerConfig) {
			s := cfg.Strategies[domain.CategoryLowRisk]
			s.RequiredResults = 5
			cfg.Strategies[domain.CategoryLowRisk] = s
		},
		"zero timeout": func(cfg *domain.PlannerConfig) {
			s := cfg.Strategies[domain.CategoryLowRisk]
			s.RoleTimeout = 0
			cfg.Strategies[domain.CategoryLowRisk] = s
		},
		"unknown category": func(cfg *domain.PlannerConfig) {
			cfg.Strategies["general"] = cfg.Strategies[domain.CategoryLowRisk]
		},
		"non-canonical category": func(cfg *domain.PlannerConfig) {
			cfg.Strategies["Low-Risk"] = cfg.Strategies[domain.CategoryLowRisk]
		},
		"non-canonical role": func(cfg *domain.PlannerConfig) {
			s := cfg.Strategies[domain.CategoryLowRisk]
			s.Roles = []domain.Role{"SME"}
			cfg.Strategies[domain.CategoryLowRisk] = s
		},
		"NaN min quality": func(cfg *domain.PlannerConfig) {
			s := cfg.Strategies[domain.CategoryLowRisk]
			s.MinQuality = math.NaN()
			cfg.Strategies[domain.CategoryLowRisk] = s
		},
		"bad threshold":             func(cfg *domain.PlannerConfig) { cfg.ConfidenceThreshold = 0 },
		"bad review role":           func(cfg *domain.PlannerConfig) { cfg.ReviewRole = "" },
		"non-canonical review role": func(cfg *domain.PlannerConfig) { cfg.ReviewRole = " Sme" },
	}

	for name, mutate := range cases {
		cfg := domain.DefaultPlannerConfig()
		mutate(&cfg)
		if _, err := NewStrategyPlanner(cfg); !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestPlannerIsolatedFromConfigMutation(t *testing.T) {
	cfg := domain.DefaultPlannerConfig()
	planner, err := NewStrategyPlanner(cfg)
	if err != nil {
		t.Fatalf("NewStrategyPlanner() error = %v", err)
	}
	s := cfg.Strategies[domain.CategoryHighRisk]
	s.Roles[0] = domain.RoleResearch
	s.RoleTimeout = time.Millisecond
	cfg.Strategies[domain.CategoryHighRisk] = s

	plan, err := planner.Plan(domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.9})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.Roles[0] != domain.RoleContext || plan.RoleTimeout != 60*time.Second {
		t.Fatalf("planner observed caller mutation: %+v", plan)
	}
}
