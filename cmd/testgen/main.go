// Command testgen runs the OQ test generation workflow from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/oq-testgen/internal/config"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/oq-testgen/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/oq-testgen/internal/observability/logging"
)

var version = "dev"

// errEscalated marks a workflow that ended without a suite.
var errEscalated = errors.New("workflow escalated for human review")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	switch {
	case errors.Is(err, errEscalated):
		os.Exit(2)
	case err != nil:
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "testgen",
		Short: "Generate OQ test suites from URS documents",
		Long: `testgen categorizes a URS document, plans the specialist consultation and
produces an OQ test suite or an escalation report.

Examples:
  testgen plan urs-lims.md              # classify and print the work plan (offline)
  testgen run urs-lims.md --xlsx oq.xlsx  # full workflow, export the suite
  testgen index --category high-risk validated/*.md  # seed the precedent index`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if logLevel == "" {
				logLevel = config.Load().LogLevel
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), "testgen", logLevel))
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")

	cmd.AddCommand(
		runCmd(),
		planCmd(),
		indexCmd(),
	)
	return cmd
}

// readDocument loads a file and returns its text, decoding PDFs by extension.
func readDocument(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return decodeDocument(filepath.Base(path), raw)
}

func decodeDocument(name string, raw []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return pdf.ExtractBytes(name, raw)
	}
	return plaintext.Decode(name, raw)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
