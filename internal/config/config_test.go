package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/usecase"
)

func TestLoadIncludesWorkflowDefaults(t *testing.T) {
	t.Setenv("WORKFLOW_TIMEOUT_SECONDS", "")
	t.Setenv("CLASSIFIER_BACKEND", "")
	t.Setenv("RETRY_MULTIPLIER", "")
	t.Setenv("NATS_ESCALATION_SUBJECT", "")

	cfg := Load()
	if cfg.WorkflowTimeout() != 180*time.Second {
		t.Fatalf("expected default workflow timeout 180s, got %s", cfg.WorkflowTimeout())
	}
	if cfg.ClassifierBackend != "rules" {
		t.Fatalf("expected default classifier backend rules, got %q", cfg.ClassifierBackend)
	}
	if cfg.RetryMultiplier != 2 {
		t.Fatalf("expected default retry multiplier 2, got %v", cfg.RetryMultiplier)
	}
	if cfg.NATSEscalationSubject != "documents.escalated" {
		t.Fatalf("unexpected escalation subject %q", cfg.NATSEscalationSubject)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("WORKFLOW_TIMEOUT_SECONDS", "30")
	t.Setenv("RESEARCH_RPS", "0.5")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg := Load()
	if cfg.WorkflowTimeout() != 30*time.Second {
		t.Fatalf("expected workflow timeout 30s, got %s", cfg.WorkflowTimeout())
	}
	if cfg.ResearchRPS != 0.5 {
		t.Fatalf("expected research rps 0.5, got %v", cfg.ResearchRPS)
	}
	if cfg.ConfidenceThreshold != 0.75 {
		t.Fatalf("expected threshold 0.75, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.ChunkSize != 900 {
		t.Fatalf("expected fallback chunk size on bad input, got %d", cfg.ChunkSize)
	}
}

func TestLoadWarnsOnMalformedNumbers(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	t.Setenv("CONFIDENCE_THRESHOLD", "0,8")
	t.Setenv("WORKFLOW_TIMEOUT_SECONDS", "3m")

	cfg := Load()
	if cfg.ConfidenceThreshold != 0 || cfg.WorkflowTimeout() != 180*time.Second {
		t.Fatalf("expected defaults on bad input, got threshold=%v timeout=%s", cfg.ConfidenceThreshold, cfg.WorkflowTimeout())
	}

	warned := map[string]string{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry struct {
			Msg   string `json:"msg"`
			Level string `json:"level"`
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry.Msg == "config_value_invalid" && entry.Level == "WARN" {
			warned[entry.Key] = entry.Value
		}
	}
	if warned["CONFIDENCE_THRESHOLD"] != "0,8" || warned["WORKFLOW_TIMEOUT_SECONDS"] != "3m" {
		t.Fatalf("expected a warning per malformed key, got %v", warned)
	}
}

func TestResilienceUsesBreakerSettings(t *testing.T) {
	t.Setenv("BREAKER_OPEN_TIMEOUT_SECONDS", "5")
	t.Setenv("BACKEND_RETRY_MAX_ATTEMPTS", "4")

	rc := Load().Resilience()
	if rc.BreakerOpenTimeout != 5*time.Second || rc.RetryMaxAttempts != 4 {
		t.Fatalf("unexpected resilience config: %+v", rc)
	}
}

func TestParsePlannerConfigOverlaysDefaults(t *testing.T) {
	raw := []byte(`
confidence_threshold: 0.7
strategies:
  infrastructure:
    roles: [context, sme]
    required_results: 2
    role_timeout: 15s
    retry_budget: 0
    min_quality: 0.4
    test_count: {min: 2, max: 4}
`)
	cfg, err := ParsePlannerConfig(raw)
	if err != nil {
		t.Fatalf("ParsePlannerConfig() error = %v", err)
	}
	if cfg.ConfidenceThreshold != 0.7 {
		t.Fatalf("expected threshold 0.7, got %v", cfg.ConfidenceThreshold)
	}
	infra := cfg.Strategies[domain.CategoryInfrastructure]
	if infra.RoleTimeout != 15*time.Second || len(infra.Roles) != 2 || infra.TestCount.Max != 4 {
		t.Fatalf("unexpected infrastructure strategy: %+v", infra)
	}
	if cfg.Strategies[domain.CategoryHighRisk].TestCount.Min != 25 {
		t.Fatalf("expected high-risk default to survive overlay")
	}
	if cfg.ReviewRole != domain.RoleSME {
		t.Fatalf("expected default review role, got %q", cfg.ReviewRole)
	}
}

func TestParsePlannerConfigNormalisesKeysAndRoles(t *testing.T) {
	raw := []byte(`
strategies:
  High-Risk:
    roles: [Context, SME]
    required_results: 2
    role_timeout: 5s
    retry_budget: 1
    min_quality: 0.5
    test_count: {min: 10, max: 20}
`)
	cfg, err := ParsePlannerConfig(raw)
	if err != nil {
		t.Fatalf("ParsePlannerConfig() error = %v", err)
	}
	if _, ok := cfg.Strategies["High-Risk"]; ok {
		t.Fatalf("raw key must not be stored")
	}
	highRisk := cfg.Strategies[domain.CategoryHighRisk]
	if len(highRisk.Roles) != 2 || highRisk.Roles[0] != domain.RoleContext || highRisk.Roles[1] != domain.RoleSME {
		t.Fatalf("roles not normalised: %v", highRisk.Roles)
	}

	planner, err := usecase.NewStrategyPlanner(cfg)
	if err != nil {
		t.Fatalf("NewStrategyPlanner() error = %v", err)
	}
	plan, err := planner.Plan(domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.95})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.RoleTimeout != 5*time.Second || plan.TestCount.Max != 20 {
		t.Fatalf("override did not take effect: %+v", plan)
	}
}

func TestParsePlannerConfigRejectsDuplicateCategory(t *testing.T) {
	raw := []byte(`
strategies:
  high-risk:
    roles: [context]
  High-Risk:
    roles: [sme]
`)
	if _, err := ParsePlannerConfig(raw); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestParsePlannerConfigRejectsUnknownInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":           "confidence: 0.5\n",
		"unknown category":      "strategies:\n  general:\n    roles: [context]\n",
		"unknown role":          "review_role: auditor\n",
		"unknown strategy role": "strategies:\n  low-risk:\n    roles: [oracle]\n",
		"bad duration":          "strategies:\n  low-risk:\n    role_timeout: soon\n",
	}
	for name, raw := range cases {
		if _, err := ParsePlannerConfig([]byte(raw)); !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestLoadPlannerConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	if err := os.WriteFile(path, []byte("low_confidence_extra_results: 2\n"), 0o600); err != nil {
		t.Fatalf("write planner file: %v", err)
	}
	cfg, err := LoadPlannerConfig(path, 0.65)
	if err != nil {
		t.Fatalf("LoadPlannerConfig() error = %v", err)
	}
	if cfg.LowConfidenceExtraResults != 2 || cfg.ConfidenceThreshold != 0.65 {
		t.Fatalf("unexpected planner config: %+v", cfg)
	}

	if _, err := LoadPlannerConfig(filepath.Join(t.TempDir(), "missing.yaml"), 0); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing file, got %v", err)
	}
}
