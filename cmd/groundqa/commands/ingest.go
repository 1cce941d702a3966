package commands

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/groundqa-go/internal/audit"
	"github.com/54b3r/groundqa-go/internal/extract"
	"github.com/54b3r/groundqa-go/internal/ingestion"
	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/rag"
)

// NewIngestCmd constructs the `groundqa ingest` command, which extracts,
// chunks and embeds documents into the vector index.
func NewIngestCmd() *cobra.Command {
	var (
		rebuild    bool
		prune      bool
		force      bool
		progress   bool
		crawlDepth int
	)

	cmd := &cobra.Command{
		Use:   "ingest [path or URL]...",
		Short: "Ingest documents into the corpus",
		Long: `Extract, chunk and embed documents into the vector index.

Sources may be files, directories (walked recursively, hidden entries
skipped) or http(s) URLs. Supported formats: .txt, .md, .html, .pdf, .docx,
.xlsx. URL sources follow links below the start URL up to --crawl-depth.

Re-running ingest is incremental: documents whose content is unchanged are
skipped, and changed documents have their old chunks replaced. Switching
embedding model requires --rebuild.

Examples:
  groundqa ingest ./docs
  groundqa ingest --prune ./docs ./faq.pdf
  groundqa ingest --crawl-depth 2 https://help.example.com/
  EMBEDDING_PROVIDER=openai groundqa ingest --rebuild ./docs`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			a, cleanup, err := buildApp(ctx, buildOptions{rebuild: rebuild})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer cleanup()

			fetchCfg := a.settings.Fetch
			if cmd.Flags().Changed("crawl-depth") {
				fetchCfg.MaxDepth = crawlDepth
			}
			loader := extract.NewLoader(extract.NewFetcher(&fetchCfg))

			start := time.Now()
			loaded, err := loader.Load(ctx, args...)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			for _, f := range loaded.Failures {
				log.Warn("ingest: could not extract source", slog.String("origin", f.Origin), slog.Any("error", f.Err))
			}
			for _, s := range loaded.Skipped {
				log.Info("ingest: skipped navigation-only page", slog.String("origin", s))
			}
			log.Info("ingest: extracted documents",
				slog.Int("documents", len(loaded.Documents)),
				slog.Int("failures", len(loaded.Failures)),
			)

			opts := ingestion.Options{
				Rebuild: rebuild,
				Prune:   prune,
				Force:   force,
				Progress: func(msg string) {
					log.Info(msg)
				},
			}
			if progress {
				bar := newProgressBar(len(loaded.Documents), cmd.ErrOrStderr())
				opts.Done = func(_ rag.Document, _ ingestion.Outcome) {
					_ = bar.Add(1)
				}
				defer bar.Finish() //nolint:errcheck
			}

			summary, ingestErr := a.pipeline.Ingest(ctx, loaded.Documents, opts)
			audit.LogIngest(ctx, log, audit.IngestRecord{
				Sources:          args,
				Model:            a.embedder.Model(),
				Rebuild:          rebuild,
				DocumentsIndexed: summary.DocumentsIndexed,
				ChunksIndexed:    summary.ChunksIndexed,
				Unchanged:        summary.Unchanged,
				Pruned:           summary.Pruned,
				Failures:         len(summary.Failures) + len(loaded.Failures),
				Duration:         time.Since(start),
				Err:              ingestErr,
			})
			if ingestErr != nil {
				return fmt.Errorf("ingest: %w", ingestErr)
			}

			printSummary(cmd.OutOrStdout(), summary, loaded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Clear the index and catalog before ingesting (required to change embedding model)")
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove previously ingested documents that are not part of this run")
	cmd.Flags().BoolVar(&force, "force", false, "Re-embed documents even when their content is unchanged")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show a progress bar on stderr")
	cmd.Flags().IntVar(&crawlDepth, "crawl-depth", 0, "Link levels to follow below URL sources (overrides CRAWL_MAX_DEPTH)")

	return cmd
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("embedding"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

func printSummary(w io.Writer, s ingestion.Summary, loaded extract.Result) {
	fmt.Fprintf(w, "indexed %d documents (%d chunks), %d unchanged, %d pruned in %s\n", //nolint:errcheck
		s.DocumentsIndexed, s.ChunksIndexed, s.Unchanged, s.Pruned, s.Duration.Round(time.Millisecond))
	for _, f := range loaded.Failures {
		fmt.Fprintf(w, "  failed: %s: %v\n", f.Origin, f.Err) //nolint:errcheck
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  failed: %s: %s\n", f.Origin, f.Error) //nolint:errcheck
	}
}
