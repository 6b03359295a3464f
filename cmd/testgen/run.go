package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/oq-testgen/internal/bootstrap"
	"github.com/kirillkom/oq-testgen/internal/config"
	"github.com/kirillkom/oq-testgen/internal/core/domain"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/export/xlsx"
)

func runCmd() *cobra.Command {
	var (
		author     string
		docVersion string
		xlsxPath   string
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run the full workflow for a document and print the outcome",
		Long: `run records the document, runs categorization, planning, specialist
dispatch and aggregation, and prints the outcome as JSON.

An escalated outcome exits with status 2.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := bootstrap.New(ctx, config.Load(), nil)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer app.Close()

			meta := domain.DocumentMetadata{Author: author, Version: docVersion}
			outcome, err := app.WorkflowUC.Submit(ctx, filepath.Base(args[0]), text, meta)
			if outcome == nil {
				return err
			}
			if err != nil {
				slog.Warn("workflow_report_failed", "document_id", outcome.DocumentID, "error", err)
			}

			if err := printJSON(cmd.OutOrStdout(), outcome); err != nil {
				return err
			}
			if !outcome.Completed() {
				return errEscalated
			}
			if xlsxPath != "" {
				return writeSuiteFile(xlsxPath, outcome)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "document author")
	cmd.Flags().StringVar(&docVersion, "doc-version", "", "document version")
	cmd.Flags().StringVarP(&xlsxPath, "xlsx", "x", "", "write the completed suite to this XLSX file")
	return cmd
}

func writeSuiteFile(path string, outcome *domain.AggregatedOutcome) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return xlsx.WriteSuite(f, outcome)
}
