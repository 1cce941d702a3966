package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/groundqa-go/internal/qa"
	"github.com/54b3r/groundqa-go/internal/tracing"
)

// NewAskCmd constructs the `groundqa ask` command, which answers a single
// question from the indexed corpus and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the ingested corpus",
		Long: `Answer a natural language question using only the ingested corpus.

The most relevant passages are retrieved, the model is instructed to answer
from them alone, and the passages it relied on are listed as sources. When
nothing relevant is found, or the model cannot answer from the passages, the
reply is exactly "I don't know."

Examples:
  groundqa ask "How do I reset my trading PIN?"
  groundqa ask --json "What are the withdrawal limits?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			flush, _ := tracing.Enable()
			defer flush()

			a, cleanup, err := buildApp(ctx, buildOptions{generation: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			question := strings.Join(args, " ")
			if err := a.svc.CheckQuestion(question); err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			resp := a.svc.Ask(ctx, question)
			return printAnswer(cmd.OutOrStdout(), resp, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer and citations as JSON")

	return cmd
}

// printAnswer writes resp as plain text with a source list, or as JSON.
func printAnswer(w io.Writer, resp qa.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp) //nolint:wrapcheck // CLI entry point
	}

	if _, err := fmt.Fprintln(w, resp.Answer); err != nil {
		return err //nolint:wrapcheck // CLI entry point
	}
	if len(resp.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:") //nolint:errcheck
		for _, c := range resp.Citations {
			line := fmt.Sprintf("  %s %s", c.Marker, c.Title)
			if c.Origin != "" && c.Origin != c.Title {
				line += " (" + c.Origin + ")"
			}
			fmt.Fprintln(w, line) //nolint:errcheck
		}
	}
	if len(resp.SimilarQuestions) > 0 {
		fmt.Fprintln(w, "\nRelated questions:") //nolint:errcheck
		for _, q := range resp.SimilarQuestions {
			fmt.Fprintln(w, "  - "+q) //nolint:errcheck
		}
	}
	return nil
}
