package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/groundqa-go/internal/catalog"
	"github.com/54b3r/groundqa-go/internal/config"
	"github.com/54b3r/groundqa-go/internal/embedder"
	"github.com/54b3r/groundqa-go/internal/grounded"
	"github.com/54b3r/groundqa-go/internal/ingestion"
	"github.com/54b3r/groundqa-go/internal/logging"
	"github.com/54b3r/groundqa-go/internal/provider"
	"github.com/54b3r/groundqa-go/internal/qa"
	"github.com/54b3r/groundqa-go/internal/rag"
)

// app holds the components shared by the CLI commands.
type app struct {
	settings *config.Pipeline
	embedder *embedder.Versioned
	index    rag.VectorIndex
	catalog  *catalog.Store
	pipeline *ingestion.Pipeline

	// chatModel, providerCfg and svc are only set when generation was requested.
	chatModel   model.BaseChatModel
	providerCfg *provider.Config
	svc         *qa.Service
}

// buildOptions selects what buildApp constructs.
type buildOptions struct {
	// generation also constructs the chat model and the qa service.
	generation bool
	// rebuild opens the index without its previous contents and skips the
	// embedding model check, so a rebuild can switch models.
	rebuild bool
}

// buildApp resolves the pipeline settings and opens the embedder, vector
// index and catalog. With opts.generation it also constructs the chat model
// and the question answering service. The returned cleanup closes
// everything that was opened and must be called even on error paths after a
// successful return.
func buildApp(ctx context.Context, opts buildOptions) (*app, func(), error) {
	log := logging.FromContext(ctx)

	settings, err := config.PipelineFromEnv()
	if err != nil {
		return nil, nil, err
	}

	embCfg := embedder.ConfigFromEnv()
	if err := embedder.Preflight(embCfg, log); err != nil {
		return nil, nil, err
	}
	emb, err := embedder.New(ctx, embCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("model", emb.Model()))

	a := &app{settings: settings, embedder: emb}
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("cleanup failed", slog.Any("error", err))
			}
		}
	}
	fail := func(err error) (*app, func(), error) {
		cleanup()
		return nil, nil, err
	}

	indexCfg := settings.Index
	indexCfg.Discard = opts.rebuild
	a.index, err = rag.OpenIndex(ctx, indexCfg, emb.Model(), emb.Dimensions())
	if err != nil {
		return fail(fmt.Errorf("failed to open vector index: %w", err))
	}
	closers = append(closers, a.index.Close)
	log.Info("vector index ready", slog.String("backend", settings.Index.Backend))

	if settings.CatalogPath != "" {
		cat, err := catalog.Open(settings.CatalogPath)
		if err != nil {
			return fail(err)
		}
		a.catalog = cat
		closers = append(closers, cat.Close)
		log.Debug("catalog opened", slog.String("path", settings.CatalogPath))
		if !opts.rebuild {
			if err := ingestion.CheckIndexModel(ctx, cat, emb.Model()); err != nil {
				return fail(err)
			}
		}
	} else {
		log.Info("catalog disabled via GROUNDQA_CATALOG_DB=disabled")
	}

	a.pipeline, err = ingestion.NewPipeline(emb, a.index, a.catalog, &settings.Ingestion)
	if err != nil {
		return fail(err)
	}

	if !opts.generation {
		return a, cleanup, nil
	}

	a.providerCfg = provider.ConfigFromEnv()
	a.chatModel, err = provider.New(ctx, a.providerCfg)
	if err != nil {
		return fail(fmt.Errorf("failed to initialise model provider: %w", err))
	}
	log.Info("provider initialised",
		slog.String("provider", string(a.providerCfg.Backend)),
		slog.String("model", a.providerCfg.ModelName()),
	)

	controller, err := grounded.New(&grounded.Config{
		ChatModel:       a.chatModel,
		Retry:           settings.GenerationRetry,
		MaxPromptTokens: settings.MaxPromptTokens,
	})
	if err != nil {
		return fail(err)
	}
	retriever, err := rag.NewRetriever(emb, a.index)
	if err != nil {
		return fail(err)
	}
	a.svc, err = qa.New(&qa.Config{
		Retriever:        retriever,
		Controller:       controller,
		Index:            a.index,
		Pipeline:         a.pipeline,
		Catalog:          a.catalog,
		TopK:             settings.TopK,
		MinScore:         settings.MinScore,
		MaxContextLength: settings.MaxContextChars,

		MaxQuestionLength: settings.MaxQuestionChars,
		MaxCitations:      settings.MaxCitations,
	})
	if err != nil {
		return fail(err)
	}
	return a, cleanup, nil
}

// errNoCatalog is returned by commands that need the catalog when it is off.
var errNoCatalog = errors.New("the catalog is disabled (GROUNDQA_CATALOG_DB=disabled)")
