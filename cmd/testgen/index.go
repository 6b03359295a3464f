package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kirillkom/oq-testgen/internal/bootstrap"
	"github.com/kirillkom/oq-testgen/internal/config"
	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

func indexCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "index <file>...",
		Short: "Seed the precedent index with validated documents",
		Long: `index chunks and embeds previously validated documents so the context
specialist can cite them as precedents. Re-indexing the same file overwrites its
chunks because document IDs are derived from the content.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := domain.ParseCategory(category)
			if err != nil {
				return err
			}
			seeder := bootstrap.NewPrecedentSeeder(config.Load())

			total := 0
			for _, path := range args {
				text, err := readDocument(path)
				if err != nil {
					return err
				}
				src := domain.PrecedentSource{
					DocumentID: precedentID(text),
					Name:       filepath.Base(path),
					Category:   cat,
				}
				n, err := seeder.Seed(cmd.Context(), src, text)
				if err != nil {
					return fmt.Errorf("index %s: %w", path, err)
				}
				slog.Info("precedent_indexed", "document_id", src.DocumentID, "name", src.Name, "chunks", n)
				total += n
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks from %d documents\n", total, len(args))
			return err
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "category the documents were validated under")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func precedentID(text string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(text)).String()
}
