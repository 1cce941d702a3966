package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewSourcesCmd constructs the `groundqa sources` command, which lists the
// indexed documents recorded in the catalog.
func NewSourcesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the documents in the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, cleanup, err := buildApp(ctx, buildOptions{generation: true})
			if err != nil {
				return fmt.Errorf("sources: %w", err)
			}
			defer cleanup()
			if a.catalog == nil {
				return fmt.Errorf("sources: %w", errNoCatalog)
			}

			sources, err := a.svc.Sources(ctx)
			if err != nil {
				return fmt.Errorf("sources: %w", err)
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), sources)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tCHUNKS\tINGESTED") //nolint:errcheck
			for _, s := range sources {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.Chunks, s.IngestedAt.Format(time.DateTime)) //nolint:errcheck
			}
			return tw.Flush() //nolint:wrapcheck // CLI entry point
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

// NewStatusCmd constructs the `groundqa status` command, which reports the
// vector index backend, embedding model and size.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the vector index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, cleanup, err := buildApp(ctx, buildOptions{generation: true})
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer cleanup()

			st, err := a.svc.Status(ctx)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			return writeIndented(cmd.OutOrStdout(), st)
		},
	}
}

// NewHistoryCmd constructs the `groundqa history` command, which prints the
// most recently asked questions and how they were answered.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently asked questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, cleanup, err := buildApp(ctx, buildOptions{generation: true})
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer cleanup()
			if a.catalog == nil {
				return fmt.Errorf("history: %w", errNoCatalog)
			}

			entries, err := a.svc.History(ctx, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ASKED\tGROUNDED\tREASON\tQUESTION") //nolint:errcheck
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", e.AskedAt.Format(time.DateTime), e.Grounded, e.Reason, e.Question) //nolint:errcheck
			}
			return tw.Flush() //nolint:wrapcheck // CLI entry point
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of questions to show")
	return cmd
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v) //nolint:wrapcheck // CLI entry point
}
