package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

// AssignmentClassifier turns raw document text into a category assignment.
type AssignmentClassifier interface {
	Classify(ctx context.Context, doc *domain.Document) (domain.CategoryAssignment, error)
}

// RunWorkflowTool runs the full workflow synchronously for inline text.
type RunWorkflowTool struct {
	workflows ports.WorkflowSubmitter
}

func NewRunWorkflowTool(workflows ports.WorkflowSubmitter) *RunWorkflowTool {
	return &RunWorkflowTool{workflows: workflows}
}

func (t *RunWorkflowTool) Definition() mcp.Tool {
	return mcp.NewTool("run_workflow",
		mcp.WithDescription("Categorize a URS document, dispatch specialists and return the aggregated outcome. "+
			"The outcome is either a completed OQ test suite or an escalation with the reasons."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Document name, e.g. urs-lims.md")),
		mcp.WithString("content", mcp.Required(), mcp.MinLength(1), mcp.Description("Full document text")),
		mcp.WithString("author", mcp.Description("Document author")),
		mcp.WithString("version", mcp.Description("Document version")),
	)
}

func (t *RunWorkflowTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta := domain.DocumentMetadata{
		Author:  req.GetString("author", ""),
		Version: req.GetString("version", ""),
	}

	outcome, err := t.workflows.Submit(ctx, name, content, meta)
	if outcome != nil {
		if err != nil {
			slog.Warn("workflow_report_failed", "document_id", outcome.DocumentID, "error", err)
		}
		return mcp.NewToolResultJSON(outcome)
	}
	return toolError("run workflow", err), nil
}

// PlanStrategyTool previews the work plan without dispatching anything.
type PlanStrategyTool struct {
	planner    ports.StrategyPlanner
	classifier AssignmentClassifier
}

func NewPlanStrategyTool(planner ports.StrategyPlanner, classifier AssignmentClassifier) *PlanStrategyTool {
	return &PlanStrategyTool{planner: planner, classifier: classifier}
}

func (t *PlanStrategyTool) Definition() mcp.Tool {
	categories := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		categories = append(categories, string(c))
	}
	return mcp.NewTool("plan_strategy",
		mcp.WithDescription("Return the specialist work plan for a document. Pass content to classify it first, "+
			"or pass category and confidence to plan directly."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("content", mcp.Description("Document text to classify")),
		mcp.WithString("category", mcp.Enum(categories...), mcp.Description("Known category; ignored when content is set")),
		mcp.WithNumber("confidence", mcp.Min(0), mcp.Max(1), mcp.Description("Confidence for category, default 1")),
	)
}

type planResponse struct {
	Assignment domain.CategoryAssignment `json:"assignment"`
	Plan       domain.WorkPlan           `json:"plan"`
}

func (t *PlanStrategyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var assignment domain.CategoryAssignment
	if content := req.GetString("content", ""); strings.TrimSpace(content) != "" {
		doc := &domain.Document{ID: "preview", Name: "preview", Content: content}
		classified, err := t.classifier.Classify(ctx, doc)
		if err != nil {
			return toolError("plan strategy", err), nil
		}
		assignment = classified
	} else {
		category, err := domain.ParseCategory(req.GetString("category", ""))
		if err != nil {
			return toolError("plan strategy", domain.WrapError(domain.ErrInvalidInput, "parse category", err)), nil
		}
		assignment = domain.CategoryAssignment{
			Category:   category,
			Confidence: req.GetFloat("confidence", 1),
			Rationale:  "supplied by caller",
		}
	}

	plan, err := t.planner.Plan(assignment)
	if err != nil {
		return toolError("plan strategy", err), nil
	}
	return mcp.NewToolResultJSON(planResponse{Assignment: assignment, Plan: plan})
}

// GetOutcomeTool reads a stored outcome.
type GetOutcomeTool struct {
	reader ports.OutcomeReader
}

func NewGetOutcomeTool(reader ports.OutcomeReader) *GetOutcomeTool {
	return &GetOutcomeTool{reader: reader}
}

func (t *GetOutcomeTool) Definition() mcp.Tool {
	return mcp.NewTool("get_outcome",
		mcp.WithDescription("Fetch the aggregated outcome recorded for a document."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document identifier")),
	)
}

func (t *GetOutcomeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outcome, err := t.reader.GetOutcome(ctx, id)
	if err != nil {
		return toolError("get outcome", err), nil
	}
	return mcp.NewToolResultJSON(outcome)
}

// toolError reports failures in the tool result so the calling model can see them.
func toolError(op string, err error) *mcp.CallToolResult {
	if err == nil {
		err = errors.New("no outcome produced")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed (%s): %v", op, errorKind(err), err))
}

func errorKind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrParsing):
		return "parsing_error"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrConfiguration):
		return "configuration_error"
	case domain.IsKind(err, domain.ErrDocumentNotFound), domain.IsKind(err, domain.ErrOutcomeNotFound):
		return "not_found"
	case domain.IsKind(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary"
	default:
		return "internal"
	}
}
