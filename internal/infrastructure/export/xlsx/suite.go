package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

const (
	suiteSheet   = "OQ Suite"
	summarySheet = "Summary"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var suiteHeader = []any{"Test ID", "Title", "Objective", "Steps", "Expected Result", "Requirements", "Risk"}

// WriteSuite renders the completed outcome's suite as a workbook with one row
// per test case and a summary sheet. Escalated outcomes have no suite.
func WriteSuite(w io.Writer, outcome *domain.AggregatedOutcome) error {
	if outcome == nil || !outcome.Completed() {
		return domain.WrapError(domain.ErrInvalidTransition, "export suite", fmt.Errorf("outcome has no completed suite"))
	}
	suite := outcome.Artifact.Suite

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", suiteSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(suiteSheet, "A1", &suiteHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(suiteSheet, "A1", "G1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, tc := range suite.Tests {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := []any{
			tc.ID,
			tc.Title,
			tc.Objective,
			numberedSteps(tc.Steps),
			tc.ExpectedResult,
			strings.Join(tc.RequirementRefs, ", "),
			tc.Risk,
		}
		if err := f.SetSheetRow(suiteSheet, cell, &row); err != nil {
			return fmt.Errorf("write test %s: %w", tc.ID, err)
		}
	}
	_ = f.SetColWidth(suiteSheet, "B", "E", 40)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Document ID", outcome.DocumentID},
		{"Suite ID", suite.ID},
		{"Category", string(suite.Category)},
		{"GAMP Category", suite.GAMP},
		{"Confidence", outcome.Assignment.Confidence},
		{"Plan ID", outcome.Plan.ID},
		{"Tests", len(suite.Tests)},
		{"Source Roles", joinRoles(outcome.Artifact.SourceRoles)},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func numberedSteps(steps []string) string {
	lines := make([]string, 0, len(steps))
	for i, s := range steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s))
	}
	return strings.Join(lines, "\n")
}

func joinRoles(roles []domain.Role) string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return strings.Join(out, ", ")
}
