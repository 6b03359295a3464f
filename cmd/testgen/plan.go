package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/oq-testgen/internal/bootstrap"
	"github.com/kirillkom/oq-testgen/internal/config"
	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

type planOutput struct {
	Assignment domain.CategoryAssignment `json:"assignment"`
	Plan       domain.WorkPlan           `json:"plan"`
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Classify a document with the rules classifier and print its work plan",
		Long: `plan runs only the offline steps: rules-based categorization and strategy
planning. No database, queue or model is contacted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}
			planner, classifier, err := bootstrap.NewPlanner(config.Load())
			if err != nil {
				return err
			}

			doc := &domain.Document{ID: "offline", Name: filepath.Base(args[0]), Content: text}
			assignment, err := classifier.Classify(cmd.Context(), doc)
			if err != nil {
				return err
			}
			plan, err := planner.Plan(assignment)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), planOutput{Assignment: assignment, Plan: plan})
		},
	}
}
