package mcpadapter

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/oq-testgen/internal/core/ports"
)

const instructions = `oq-testgen turns URS documents into OQ test suites.
Use plan_strategy to preview which specialists a document needs.
Use run_workflow to produce a suite; an escalated outcome lists the reasons a human must review.
Use get_outcome to re-read a previous result by document_id.`

// Dependencies are the inbound ports exposed as tools.
type Dependencies struct {
	Workflows  ports.WorkflowSubmitter
	Planner    ports.StrategyPlanner
	Classifier AssignmentClassifier
	Outcomes   ports.OutcomeReader
}

// NewServer builds the MCP server with every tool registered.
func NewServer(version string, deps Dependencies) *server.MCPServer {
	s := server.NewMCPServer(
		"oq-testgen",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	runTool := NewRunWorkflowTool(deps.Workflows)
	s.AddTool(runTool.Definition(), runTool.Handle)

	planTool := NewPlanStrategyTool(deps.Planner, deps.Classifier)
	s.AddTool(planTool.Definition(), planTool.Handle)

	outcomeTool := NewGetOutcomeTool(deps.Outcomes)
	s.AddTool(outcomeTool.Definition(), outcomeTool.Handle)

	return s
}
