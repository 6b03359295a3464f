package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

type submitFake struct {
	gotName    string
	gotContent string
	gotMeta    domain.DocumentMetadata
	outcome    *domain.AggregatedOutcome
	err        error
}

func (f *submitFake) Submit(_ context.Context, name, content string, meta domain.DocumentMetadata) (*domain.AggregatedOutcome, error) {
	f.gotName = name
	f.gotContent = content
	f.gotMeta = meta
	return f.outcome, f.err
}

type plannerFake struct {
	got domain.CategoryAssignment
	err error
}

func (f *plannerFake) Plan(assignment domain.CategoryAssignment) (domain.WorkPlan, error) {
	f.got = assignment
	if f.err != nil {
		return domain.WorkPlan{}, f.err
	}
	return domain.WorkPlan{
		ID:              "plan-1",
		Category:        assignment.Category,
		Confidence:      assignment.Confidence,
		Roles:           []domain.Role{domain.RoleContext},
		RequiredResults: 1,
	}, nil
}

type classifierFake struct {
	gotContent string
	assignment domain.CategoryAssignment
	err        error
}

func (f *classifierFake) Classify(_ context.Context, doc *domain.Document) (domain.CategoryAssignment, error) {
	f.gotContent = doc.Content
	return f.assignment, f.err
}

type readerFake struct {
	outcome *domain.AggregatedOutcome
	err     error
}

func (f *readerFake) GetDocument(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}

func (f *readerFake) GetOutcome(_ context.Context, id string) (*domain.AggregatedOutcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestRunWorkflowToolReturnsOutcome(t *testing.T) {
	submit := &submitFake{outcome: &domain.AggregatedOutcome{DocumentID: "doc-1", Status: domain.OutcomeCompleted}}
	tool := NewRunWorkflowTool(submit)

	res, err := tool.Handle(context.Background(), callRequest(map[string]any{
		"name":    "urs.md",
		"content": "GAMP 5 configured system",
		"author":  "qa",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if submit.gotName != "urs.md" || submit.gotContent != "GAMP 5 configured system" || submit.gotMeta.Author != "qa" {
		t.Fatalf("unexpected submit args: %+v", submit)
	}

	var decoded domain.AggregatedOutcome
	if err := json.Unmarshal([]byte(resultText(t, res)), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.DocumentID != "doc-1" || decoded.Status != domain.OutcomeCompleted {
		t.Fatalf("unexpected outcome: %+v", decoded)
	}
}

func TestRunWorkflowToolReportsParsingError(t *testing.T) {
	submit := &submitFake{err: domain.WrapError(domain.ErrParsing, "validate document", errors.New("content is empty"))}
	tool := NewRunWorkflowTool(submit)

	res, err := tool.Handle(context.Background(), callRequest(map[string]any{"name": "x.md", "content": " "}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
	if text := resultText(t, res); !strings.Contains(text, "parsing_error") {
		t.Fatalf("expected parsing_error kind, got %q", text)
	}
}

func TestRunWorkflowToolRequiresContent(t *testing.T) {
	tool := NewRunWorkflowTool(&submitFake{})

	res, err := tool.Handle(context.Background(), callRequest(map[string]any{"name": "x.md"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing content")
	}
}

func TestPlanStrategyToolClassifiesContent(t *testing.T) {
	planner := &plannerFake{}
	classifier := &classifierFake{assignment: domain.CategoryAssignment{Category: domain.CategoryHighRisk, Confidence: 0.9}}
	tool := NewPlanStrategyTool(planner, classifier)

	res, err := tool.Handle(context.Background(), callRequest(map[string]any{"content": "custom-developed software"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if classifier.gotContent != "custom-developed software" {
		t.Fatalf("classifier got %q", classifier.gotContent)
	}
	if planner.got.Category != domain.CategoryHighRisk {
		t.Fatalf("planner got %+v", planner.got)
	}

	var decoded planResponse
	if err := json.Unmarshal([]byte(resultText(t, res)), &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded.Plan.ID != "plan-1" {
		t.Fatalf("unexpected plan: %+v", decoded.Plan)
	}
}

func TestPlanStrategyToolUsesExplicitCategory(t *testing.T) {
	planner := &plannerFake{}
	tool := NewPlanStrategyTool(planner, &classifierFake{})

	res, err := tool.Handle(context.Background(), callRequest(map[string]any{"category": "medium-risk", "confidence": 0.4}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if planner.got.Category != domain.CategoryMediumRisk || planner.got.Confidence != 0.4 {
		t.Fatalf("planner got %+v", planner.got)
	}
}

func TestPlanStrategyToolRejectsUnknownCategory(t *testing.T) {
	planner := &plannerFake{}
	tool := NewPlanStrategyTool(planner, &classifierFake{})

	res, err := tool.Handle(context.Background(), callRequest(map[string]any{"category": "category-9"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
	if text := resultText(t, res); !strings.Contains(text, "invalid_input") {
		t.Fatalf("expected invalid_input kind, got %q", text)
	}
	if planner.got.Category != "" {
		t.Fatalf("planner should not be called, got %+v", planner.got)
	}
}

func TestGetOutcomeToolNotFound(t *testing.T) {
	tool := NewGetOutcomeTool(&readerFake{err: domain.WrapError(domain.ErrOutcomeNotFound, "get outcome", errors.New("doc-9"))})

	res, err := tool.Handle(context.Background(), callRequest(map[string]any{"document_id": "doc-9"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "not_found") {
		t.Fatalf("expected not_found tool error, got %+v", res)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer("test", Dependencies{
		Workflows:  &submitFake{},
		Planner:    &plannerFake{},
		Classifier: &classifierFake{},
		Outcomes:   &readerFake{},
	})

	for _, name := range []string{"run_workflow", "plan_strategy", "get_outcome"} {
		if s.GetTool(name) == nil {
			t.Fatalf("tool %s not registered", name)
		}
	}
}
